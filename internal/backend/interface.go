// Package backend builds the document store selected by configuration and
// wires it to the change feed.
package backend

import (
	"homebudget/internal/amqp"
	"homebudget/internal/docstore"
)

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{SQLiteBackend, MemoryBackend}
}

// CleanupFunc releases the resources of a backend.
type CleanupFunc func() error

// BackendResult is a ready store, the change feed client when one was
// configured, and the function releasing both.
type BackendResult struct {
	Store   docstore.Store
	Feed    *amqp.Client
	Cleanup CleanupFunc
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Memory specific
	MemorySeedFile string

	// Change feed, sqlite only and optional
	AMQPURL      string
	AMQPExchange string
	// Origin identifies this process on the change feed.
	Origin string
}
