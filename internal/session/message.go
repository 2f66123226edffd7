package session

import "time"

// MessageType identifies a message on the live channel
type MessageType string

// Server to client
const (
	MessageConnected  MessageType = "connected"
	MessageStatus     MessageType = "status"
	MessagePong       MessageType = "pong"
	MessageActiveJobs MessageType = "active-jobs"
)

// Client to server
const (
	RequestSubscribe   MessageType = "subscribe"
	RequestUnsubscribe MessageType = "unsubscribe"
	RequestPing        MessageType = "ping"
	RequestListActive  MessageType = "list-active"
)

// SubscribeAll subscribes a session to every job
const SubscribeAll = "all"

// Message is sent from the server to a live connection. Timestamp is in
// unix milliseconds.
type Message struct {
	Type      MessageType `json:"type"`
	JobID     string      `json:"jobId,omitempty"`
	Data      any         `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Request is a message received from a live connection
type Request struct {
	Type  MessageType `json:"type"`
	JobID string      `json:"jobId,omitempty"`
}

func newMessage(t MessageType, jobID string, data any, now time.Time) Message {
	return Message{
		Type:      t,
		JobID:     jobID,
		Data:      data,
		Timestamp: now.UnixMilli(),
	}
}
