package backend

import (
	"context"
	"errors"
	"fmt"

	"homebudget/internal/amqp"
	"homebudget/internal/docstore"
	"homebudget/internal/docstore/memory"
	"homebudget/internal/docstore/sqlite"
	"homebudget/internal/log"
)

// Factory creates backends based on configuration
type Factory struct {
	logger *log.Logger
}

// NewFactory creates a backend factory that logs as the backend component.
func NewFactory(logger *log.Logger) *Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Factory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateBackend builds the store described by config.
func (f *Factory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *Factory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store, err := sqlite.NewStore(config.SQLiteDBPath, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
	}

	// the change feed is optional
	var feed *amqp.Client
	if config.AMQPURL != "" {
		feed, err = amqp.NewInstanceClient(config.AMQPURL, config.AMQPExchange, config.Origin)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without change feed", log.FieldError, err)
		} else {
			store.SetPublisher(feed)
			f.logger.InfoContext(ctx, "Joined change feed",
				"exchange", config.AMQPExchange,
				"origin", config.Origin)
		}
	}

	f.logger.InfoContext(ctx, "Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", feed != nil)

	return &BackendResult{
		Store: store,
		Feed:  feed,
		Cleanup: func() error {
			var errs []error
			if feed != nil {
				errs = append(errs, feed.Close())
			}
			errs = append(errs, store.Close())
			return errors.Join(errs...)
		},
	}, nil
}

func (f *Factory) createMemoryBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store := memory.New()
	if config.MemorySeedFile != "" {
		seeded, err := memory.NewFromFile(config.MemorySeedFile)
		if err != nil {
			return nil, fmt.Errorf("failed to seed memory store: %w", err)
		}
		store = seeded
	}

	f.logger.InfoContext(ctx, "Initialized memory backend",
		"seed_file", config.MemorySeedFile,
		"documents", store.Len())

	return &BackendResult{Store: store, Cleanup: store.Close}, nil
}

// Refresher re-delivers the current state of a document to local subscribers.
type Refresher interface {
	Refresh(ctx context.Context, p docstore.Path) error
}

// RefreshHandler applies change feed messages from other processes to the
// local subscriptions of store. Messages this process published are skipped.
func RefreshHandler(store Refresher, origin string) amqp.Handler {
	return func(ctx context.Context, msg *amqp.DocumentChangedMessage) error {
		if msg.Origin == origin {
			return nil
		}
		return store.Refresh(ctx, msg.DocPath())
	}
}
