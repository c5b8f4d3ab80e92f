package chat

import (
	"encoding/json"
	"fmt"
	"time"
)

// record is the persisted shape of a ChatTurn.
type record struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Origin    string `json:"origin"`
	Timestamp string `json:"timestamp"`
}

// EncodeLog serializes a conversation as a JSON array.
func EncodeLog(turns []ChatTurn) ([]byte, error) {
	records := make([]record, 0, len(turns))
	for _, t := range turns {
		records = append(records, record{
			ID:        t.ID,
			Content:   t.Content,
			Origin:    string(t.Origin),
			Timestamp: t.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("chat: encoding log: %w", err)
	}
	return data, nil
}

// DecodeLog parses a conversation produced by EncodeLog. Entries with a
// missing id, an unknown origin or an unparsable timestamp are skipped.
// A body that is not a JSON array is an error.
func DecodeLog(data []byte) ([]ChatTurn, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("chat: decoding log: %w", err)
	}

	turns := make([]ChatTurn, 0, len(raw))
	for _, item := range raw {
		var r record
		if err := json.Unmarshal(item, &r); err != nil {
			continue
		}
		turn, ok := r.turn()
		if !ok {
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (r record) turn() (ChatTurn, bool) {
	if r.ID == "" {
		return ChatTurn{}, false
	}
	origin, err := ParseOrigin(r.Origin)
	if err != nil {
		return ChatTurn{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, r.Timestamp)
	if err != nil {
		return ChatTurn{}, false
	}
	return ChatTurn{
		ID:        r.ID,
		Content:   r.Content,
		Origin:    origin,
		CreatedAt: ts.UTC(),
	}, true
}
