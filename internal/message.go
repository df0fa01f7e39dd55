package internal

import "encoding/json"

type Message[T any] struct {
	Type string `json:"type"`
	Data T      `json:"data"`
}

// Relay message types
const (
	MessageRequest  = "request"
	MessageResponse = "response"
	MessageEvent    = "event"
)

// Relay operations
const (
	OpGet                = "get"
	OpList               = "list"
	OpSet                = "set"
	OpUpdate             = "update"
	OpCompareAndUpdate   = "cas"
	OpRemove             = "remove"
	OpOnDisconnectRemove = "on_disconnect_remove"
	OpCancelOnDisconnect = "cancel_on_disconnect"
	OpWatch              = "watch"
	OpWatchChildren      = "watch_children"
	OpUnwatch            = "unwatch"
)

type RequestData struct {
	ID     uint64         `json:"id"`
	Op     string         `json:"op"`
	Path   string         `json:"path,omitempty"`
	Field  string         `json:"field,omitempty"`
	Expect string         `json:"expect,omitempty"`
	Doc    map[string]any `json:"doc,omitempty"`
	SubID  string         `json:"subId,omitempty"`
}

type ResponseData struct {
	ID    uint64                    `json:"id"`
	Error string                    `json:"error,omitempty"`
	Code  string                    `json:"code,omitempty"`
	Doc   map[string]any            `json:"doc,omitempty"`
	Docs  map[string]map[string]any `json:"docs,omitempty"`
	OK    bool                      `json:"ok,omitempty"`
	SubID string                    `json:"subId,omitempty"`
}

type EventData struct {
	SubID string         `json:"subId"`
	Kind  string         `json:"kind"`
	Path  string         `json:"path"`
	Key   string         `json:"key"`
	Doc   map[string]any `json:"doc"`
}

// DecodeMessage splits a raw frame into its type and undecoded payload.
func DecodeMessage(raw []byte) (Message[json.RawMessage], error) {
	var msg Message[json.RawMessage]
	err := json.Unmarshal(raw, &msg)
	return msg, err
}
