package inference

// Options are the sampling parameters sent with a generate request.
type Options struct {
	NumCtx      int     `json:"num_ctx"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	TopK        int     `json:"top_k"`
	NumPredict  int     `json:"num_predict"`
}

type generateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Stream  bool    `json:"stream"`
	Raw     bool    `json:"raw"`
	Options Options `json:"options"`
}

type generateResponse struct {
	Model    string  `json:"model"`
	Response *string `json:"response"`
	Done     bool    `json:"done"`
}

type tagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// StatusKind is the coarse state of the connection to the server.
type StatusKind int

const (
	StatusUnknown StatusKind = iota
	StatusConnected
	StatusDisconnected
	StatusError
)

func (k StatusKind) String() string {
	switch k {
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// Status is the last known connection state. It is never persisted.
type Status struct {
	Kind    StatusKind `json:"kind"`
	Message string     `json:"message,omitempty"`
}

// Healthy reports whether the status is not a failure.
func (s Status) Healthy() bool {
	return s.Kind != StatusDisconnected && s.Kind != StatusError
}

func (s Status) String() string {
	switch s.Kind {
	case StatusConnected:
		return "Connected"
	case StatusDisconnected:
		return "Disconnected: " + s.Message
	case StatusError:
		return "Error: " + s.Message
	}
	return "Unknown"
}

// MarshalText encodes the kind as its name in JSON output.
func (k StatusKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name.
func (k *StatusKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "connected":
		*k = StatusConnected
	case "disconnected":
		*k = StatusDisconnected
	case "error":
		*k = StatusError
	default:
		*k = StatusUnknown
	}
	return nil
}
