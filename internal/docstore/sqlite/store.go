// Package sqlite persists documents in a single SQLite table and serves
// realtime subscriptions for writes made through this process. Writes made by
// other processes reach local subscribers through Refresh, driven by the
// change feed.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"homebudget/internal/docstore"
	"homebudget/internal/docstore/watch"
	"homebudget/internal/log"
)

// ChangePublisher receives every successful write.
type ChangePublisher interface {
	PublishDocumentChange(ctx context.Context, p docstore.Path, op docstore.ChangeOp) error
}

// Store is a docstore.Store kept in SQLite.
type Store struct {
	db      *sql.DB
	queries *Queries
	hub     *watch.Hub
	logger  *log.Logger
	now     func() time.Time

	// mu orders writes with the snapshots published for them
	mu        sync.Mutex
	publisher ChangePublisher
}

// NewStore opens (creating if needed) the database at dbPath and migrates it.
func NewStore(dbPath string, logger *log.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{
		db:      db,
		queries: NewQueries(db),
		hub:     watch.NewHub(),
		logger:  logger.WithComponent(log.ComponentStorage),
		now:     time.Now,
	}, nil
}

// SetPublisher attaches the change feed. Pass nil to detach.
func (s *Store) SetPublisher(p ChangePublisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publisher = p
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	s.hub.Close()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Get(ctx context.Context, p docstore.Path) (docstore.Document, error) {
	if err := docstore.CheckDocument(p); err != nil {
		return docstore.Document{}, err
	}
	row, err := s.queries.GetDocument(ctx, string(p))
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Document{}, fmt.Errorf("%s: %w", p, docstore.ErrNotFound)
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("get document %s: %w", p, err)
	}
	return toDocument(row), nil
}

func (s *Store) Set(ctx context.Context, p docstore.Path, v any) error {
	_, err := s.Put(ctx, p, v)
	return err
}

// Put writes v at p. Revisions count per document and are assigned by the
// database, so writes from other processes keep them increasing.
func (s *Store) Put(ctx context.Context, p docstore.Path, v any) (uint64, error) {
	if err := docstore.CheckDocument(p); err != nil {
		return 0, err
	}
	data, err := docstore.Encode(v)
	if err != nil {
		return 0, err
	}
	return s.put(ctx, p, data)
}

func (s *Store) Add(ctx context.Context, c docstore.Path, v any) (docstore.Path, error) {
	if err := docstore.CheckCollection(c); err != nil {
		return "", err
	}
	data, err := docstore.Encode(v)
	if err != nil {
		return "", err
	}
	p := c.Child(uuid.NewString())
	if _, err := s.put(ctx, p, data); err != nil {
		return "", err
	}
	return p, nil
}

func (s *Store) Delete(ctx context.Context, p docstore.Path) error {
	if err := docstore.CheckDocument(p); err != nil {
		return err
	}
	s.mu.Lock()
	n, err := s.queries.DeleteDocument(ctx, string(p))
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("delete document %s: %w", p, err)
	}
	if n > 0 {
		s.hub.Publish(docstore.Snapshot{Path: p})
	}
	publisher := s.publisher
	s.mu.Unlock()

	if n > 0 {
		s.announce(ctx, publisher, p, docstore.ChangeDelete)
	}
	return nil
}

func (s *Store) List(ctx context.Context, c docstore.Path) ([]docstore.Document, error) {
	if err := docstore.CheckCollection(c); err != nil {
		return nil, err
	}
	rows, err := s.queries.ListDocuments(ctx, string(c))
	if err != nil {
		return nil, fmt.Errorf("list collection %s: %w", c, err)
	}
	docs := make([]docstore.Document, len(rows))
	for i, row := range rows {
		docs[i] = toDocument(row)
	}
	return docs, nil
}

func (s *Store) Subscribe(ctx context.Context, p docstore.Path, fn func(docstore.Snapshot)) (docstore.Unsubscribe, error) {
	if err := docstore.CheckDocument(p); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	initial, err := s.snapshot(ctx, p)
	if err != nil {
		return nil, err
	}
	return s.hub.Subscribe(ctx, p, initial, fn), nil
}

// Refresh re-reads p and delivers its current state to local subscribers.
// The change feed calls it for writes made by other processes.
func (s *Store) Refresh(ctx context.Context, p docstore.Path) error {
	if err := docstore.CheckDocument(p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hub.Subscribers(p) == 0 {
		return nil
	}
	snap, err := s.snapshot(ctx, p)
	if err != nil {
		s.hub.Publish(docstore.Snapshot{Path: p, Err: err})
		return err
	}
	s.hub.Publish(snap)
	return nil
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.queries.CountDocuments(ctx)
}

func (s *Store) put(ctx context.Context, p docstore.Path, data json.RawMessage) (uint64, error) {
	s.mu.Lock()
	rev, err := s.queries.UpsertDocument(ctx, UpsertDocumentParams{
		Path:       string(p),
		Collection: string(p.Parent()),
		DocID:      p.ID(),
		Body:       string(data),
		UpdatedAt:  s.now().UnixMilli(),
	})
	if err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("write document %s: %w", p, err)
	}
	s.hub.Publish(docstore.Snapshot{Path: p, Exists: true, Data: data, Rev: uint64(rev)})
	publisher := s.publisher
	s.mu.Unlock()

	s.announce(ctx, publisher, p, docstore.ChangeSet)
	return uint64(rev), nil
}

// announce tells other processes about a committed write. The write already
// succeeded, so failures are only logged.
func (s *Store) announce(ctx context.Context, publisher ChangePublisher, p docstore.Path, op docstore.ChangeOp) {
	if publisher == nil {
		return
	}
	if err := publisher.PublishDocumentChange(ctx, p, op); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish document change",
			log.FieldDocPath, string(p),
			log.FieldOperation, string(op),
			log.FieldError, err)
	}
}

func (s *Store) snapshot(ctx context.Context, p docstore.Path) (docstore.Snapshot, error) {
	row, err := s.queries.GetDocument(ctx, string(p))
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Snapshot{Path: p}, nil
	}
	if err != nil {
		return docstore.Snapshot{}, fmt.Errorf("read document %s: %w", p, err)
	}
	return docstore.Snapshot{Path: p, Exists: true, Data: json.RawMessage(row.Body), Rev: uint64(row.Rev)}, nil
}

func toDocument(row DocumentRow) docstore.Document {
	return docstore.Document{
		Path:      docstore.Path(row.Path),
		Data:      json.RawMessage(row.Body),
		UpdatedAt: time.UnixMilli(row.UpdatedAt),
		Rev:       uint64(row.Rev),
	}
}

var (
	_ docstore.Store         = (*Store)(nil)
	_ docstore.ArchiveLister = (*Store)(nil)
)

// ArchiveCollections lists every archive collection holding a snapshot.
func (s *Store) ArchiveCollections(ctx context.Context) ([]docstore.Path, error) {
	rows, err := s.queries.ListCollectionsLike(ctx, "users/%/budgets/%/archive")
	if err != nil {
		return nil, fmt.Errorf("list archive collections: %w", err)
	}
	out := make([]docstore.Path, 0, len(rows))
	for _, c := range rows {
		if _, _, ok := docstore.ParseArchiveCollection(docstore.Path(c)); ok {
			out = append(out, docstore.Path(c))
		}
	}
	return out, nil
}
