// Package docstore describes the remote document store the budget controller
// persists to: keyed JSON documents addressed by hierarchical paths, with
// realtime subscriptions on single documents.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when no document exists at a path.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidPath is returned for paths that do not address a document or collection.
	ErrInvalidPath = errors.New("invalid document path")
)

type (
	// Document is a stored JSON payload.
	Document struct {
		Path      Path
		Data      json.RawMessage
		UpdatedAt time.Time
		// Rev grows with every write of the document.
		Rev uint64
	}

	// Snapshot is the state of a subscribed document delivered to a callback.
	// Err is set when the subscription itself failed. Rev is the revision of
	// the write the snapshot reflects, zero when the document does not exist.
	Snapshot struct {
		Path   Path
		Exists bool
		Data   json.RawMessage
		Rev    uint64
		Err    error
	}

	// Unsubscribe releases a subscription. It never blocks on the callback and
	// may be called more than once.
	Unsubscribe func()

	// Reader reads documents and collections.
	Reader interface {
		// Get returns the document at p or ErrNotFound.
		Get(ctx context.Context, p Path) (Document, error)
		// List returns the documents directly under the collection c in
		// creation order.
		List(ctx context.Context, c Path) ([]Document, error)
	}

	// Writer mutates documents.
	Writer interface {
		// Set creates or replaces the whole document at p.
		Set(ctx context.Context, p Path, v any) error
		// Put is Set returning the revision the write was stamped with.
		Put(ctx context.Context, p Path, v any) (uint64, error)
		// Delete removes the document at p. Deleting a missing document is not an error.
		Delete(ctx context.Context, p Path) error
		// Add stores v under the collection c with a generated id and returns its path.
		Add(ctx context.Context, c Path, v any) (Path, error)
	}

	// Subscriber opens realtime subscriptions on single documents.
	Subscriber interface {
		// Subscribe calls fn with the current state of p and again after
		// every change. Callbacks for one subscription never run concurrently.
		Subscribe(ctx context.Context, p Path, fn func(Snapshot)) (Unsubscribe, error)
	}

	// Store is the full remote document store.
	Store interface {
		Reader
		Writer
		Subscriber
	}
)

// Decode unmarshals the document payload into v.
func (d Document) Decode(v any) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", d.Path, err)
	}
	return nil
}

// Decode unmarshals the snapshot payload into v.
func (s Snapshot) Decode(v any) error {
	if !s.Exists {
		return fmt.Errorf("decode %s: %w", s.Path, ErrNotFound)
	}
	if err := json.Unmarshal(s.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", s.Path, err)
	}
	return nil
}

// Encode marshals v for storage, passing raw JSON through untouched.
func Encode(v any) (json.RawMessage, error) {
	switch raw := v.(type) {
	case json.RawMessage:
		return raw, nil
	case []byte:
		return json.RawMessage(raw), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

// ChangeOp is the kind of write reported by a change feed.
type ChangeOp string

const (
	ChangeSet    ChangeOp = "set"
	ChangeDelete ChangeOp = "delete"
)

// ArchiveLister enumerates the non-empty archive collections of every user.
// Stores shared between processes implement it for background exports.
type ArchiveLister interface {
	ArchiveCollections(ctx context.Context) ([]Path, error)
}
