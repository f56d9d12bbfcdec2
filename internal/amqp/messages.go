package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"homebudget/internal/docstore"
)

// DocumentChangedMessage announces a write to one document. It carries only
// the path; consumers read the current document from the store.
type DocumentChangedMessage struct {
	Path      string            `json:"path"`
	Op        docstore.ChangeOp `json:"op"`
	Origin    string            `json:"origin,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewDocumentChangedMessage creates a change message stamped with the current time.
func NewDocumentChangedMessage(p docstore.Path, op docstore.ChangeOp, origin string) *DocumentChangedMessage {
	return &DocumentChangedMessage{
		Path:      p.String(),
		Op:        op,
		Origin:    origin,
		Timestamp: time.Now().UTC(),
	}
}

// RoutingKey is the topic routing key of the message, e.g. doc.set.
func (m *DocumentChangedMessage) RoutingKey() string {
	return routingKeyPrefix + string(m.Op)
}

// DocPath returns the changed document path.
func (m *DocumentChangedMessage) DocPath() docstore.Path {
	return docstore.Path(m.Path)
}

func (m *DocumentChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// DocumentChangedMessageFromJSON parses and checks a change message.
func DocumentChangedMessageFromJSON(data []byte) (*DocumentChangedMessage, error) {
	var msg DocumentChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := docstore.CheckDocument(msg.DocPath()); err != nil {
		return nil, err
	}
	switch msg.Op {
	case docstore.ChangeSet, docstore.ChangeDelete:
	default:
		return nil, fmt.Errorf("unknown change op %q", msg.Op)
	}
	return &msg, nil
}
