package models

type StreamMessageType string

const (
	StreamInit    StreamMessageType = "init"
	StreamLoading StreamMessageType = "loading"
	StreamStatus  StreamMessageType = "status"
	StreamError   StreamMessageType = "error"
)

// StreamMessage is pushed to status stream subscribers.
type StreamMessage struct {
	Type    StreamMessageType `json:"type"`
	Data    any               `json:"data,omitempty"`
	Message string            `json:"message,omitempty"`
	Code    string            `json:"code,omitempty"`
	TaskID  *int64            `json:"task_id,omitempty"`
	JobID   *int64            `json:"job_id,omitempty"`
}
