package chat

import "sync"

// MessageStatus is the delivery status carried on a chat message.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusSeen      MessageStatus = "seen"
)

// Message is a single chat message. Once appended to a MessageLog it is never
// modified.
type Message struct {
	ID        string        `json:"id"`
	SenderID  string        `json:"senderId"`
	Content   string        `json:"content"`
	Timestamp string        `json:"timestamp"`
	Status    MessageStatus `json:"status"`
	Sender    *Identity     `json:"sender,omitempty"`
}

// MessageLog is the append-only, in-memory message history, partitioned by
// scope key. It has no size bound and no eviction.
type MessageLog struct {
	mu     sync.RWMutex
	scopes map[string][]Message
}

// NewMessageLog returns an empty message log.
func NewMessageLog() *MessageLog {
	return &MessageLog{
		scopes: make(map[string][]Message),
	}
}

// Append adds msg to the end of scope.
func (l *MessageLog) Append(scope string, msg Message) {
	if msg.Sender != nil {
		sender := *msg.Sender
		msg.Sender = &sender
	}

	l.mu.Lock()
	l.scopes[scope] = append(l.scopes[scope], msg)
	l.mu.Unlock()
}

// Read returns a copy of the full history of scope, oldest first.
func (l *MessageLog) Read(scope string) []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	history := l.scopes[scope]
	out := make([]Message, len(history))
	for i, msg := range history {
		if msg.Sender != nil {
			sender := *msg.Sender
			msg.Sender = &sender
		}
		out[i] = msg
	}
	return out
}

// Len returns the number of messages stored under scope.
func (l *MessageLog) Len(scope string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.scopes[scope])
}
