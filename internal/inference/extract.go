package inference

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

var responseField = regexp.MustCompile(`"response"\s*:\s*"((?:[^"\\]|\\.)*)"`)

// extractResponse returns the generated text from a 2xx body. A well-formed
// body is decoded strictly; otherwise the text is salvaged from JSON lines
// (a server that streamed despite stream:false), from a lenient gjson
// lookup, then from a regular expression.
func extractResponse(body []byte) (string, bool) {
	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Response != nil {
		return *resp.Response, true
	}

	if text, ok := fromJSONLines(body); ok {
		return text, true
	}

	if r := gjson.GetBytes(body, "response"); r.Exists() && r.Type == gjson.String {
		return r.String(), true
	}

	if m := responseField.FindSubmatch(body); m != nil {
		return unescape(string(m[1])), true
	}
	return "", false
}

func fromJSONLines(body []byte) (string, bool) {
	if bytes.Count(bytes.TrimSpace(body), []byte("\n")) == 0 {
		return "", false
	}
	parts := gjson.GetBytes(body, "..#.response")
	if !parts.IsArray() {
		return "", false
	}
	var b strings.Builder
	found := false
	for _, p := range parts.Array() {
		if p.Type != gjson.String {
			continue
		}
		b.WriteString(p.String())
		found = true
	}
	return b.String(), found
}

// unescape decodes JSON string escapes, returning s unchanged when it does
// not form a valid quoted string.
func unescape(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err == nil {
		return out
	}
	if out, err := strconv.Unquote(`"` + s + `"`); err == nil {
		return out
	}
	return s
}
