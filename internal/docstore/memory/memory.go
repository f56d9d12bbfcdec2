// Package memory is an in-process document store. It backs development
// servers, the CLI demo mode and every controller test.
package memory

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"homebudget/internal/docstore"
	"homebudget/internal/docstore/watch"
)

// Op names a store call for fault injection.
type Op string

const (
	OpGet       Op = "get"
	OpSet       Op = "set"
	OpDelete    Op = "delete"
	OpAdd       Op = "add"
	OpList      Op = "list"
	OpSubscribe Op = "subscribe"
)

// FaultFunc may return an error to make the call with op on p fail.
type FaultFunc func(op Op, p docstore.Path) error

type entry struct {
	data    json.RawMessage
	seq     uint64
	rev     uint64
	updated time.Time
}

// Store keeps documents in a map. Every write takes a store-wide revision.
type Store struct {
	mu    sync.Mutex
	docs  map[docstore.Path]entry
	seq   uint64
	rev   uint64
	hub   *watch.Hub
	fault FaultFunc
	now   func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		docs: make(map[docstore.Path]entry),
		hub:  watch.NewHub(),
		now:  time.Now,
	}
}

// NewFromFile seeds a store from a JSON object mapping document paths to
// documents. A missing file yields an empty store.
func NewFromFile(path string) (*Store, error) {
	s := New()
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed map[string]json.RawMessage
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	keys := make([]string, 0, len(seed))
	for k := range seed {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if err := s.Set(context.Background(), docstore.Path(k), seed[k]); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// FailWith installs a fault hook; nil removes it.
func (s *Store) FailWith(fn FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

// Disconnect delivers err to every live subscription.
func (s *Store) Disconnect(err error) {
	s.hub.Broadcast(err)
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// Subscribers returns the number of live subscriptions on p.
func (s *Store) Subscribers(p docstore.Path) int {
	return s.hub.Subscribers(p)
}

// Close ends all subscriptions.
func (s *Store) Close() error {
	s.hub.Close()
	return nil
}

func (s *Store) check(op Op, p docstore.Path) error {
	if s.fault == nil {
		return nil
	}
	return s.fault(op, p)
}

func (s *Store) Get(_ context.Context, p docstore.Path) (docstore.Document, error) {
	if err := docstore.CheckDocument(p); err != nil {
		return docstore.Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpGet, p); err != nil {
		return docstore.Document{}, err
	}
	e, ok := s.docs[p]
	if !ok {
		return docstore.Document{}, fmt.Errorf("%s: %w", p, docstore.ErrNotFound)
	}
	return e.document(p), nil
}

func (s *Store) Set(ctx context.Context, p docstore.Path, v any) error {
	_, err := s.Put(ctx, p, v)
	return err
}

func (s *Store) Put(_ context.Context, p docstore.Path, v any) (uint64, error) {
	if err := docstore.CheckDocument(p); err != nil {
		return 0, err
	}
	data, err := docstore.Encode(v)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpSet, p); err != nil {
		return 0, err
	}
	return s.put(p, data), nil
}

func (s *Store) Add(_ context.Context, c docstore.Path, v any) (docstore.Path, error) {
	if err := docstore.CheckCollection(c); err != nil {
		return "", err
	}
	data, err := docstore.Encode(v)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpAdd, c); err != nil {
		return "", err
	}
	p := c.Child(uuid.NewString())
	s.put(p, data)
	return p, nil
}

func (s *Store) Delete(_ context.Context, p docstore.Path) error {
	if err := docstore.CheckDocument(p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpDelete, p); err != nil {
		return err
	}
	if _, ok := s.docs[p]; !ok {
		return nil
	}
	delete(s.docs, p)
	s.hub.Publish(docstore.Snapshot{Path: p})
	return nil
}

func (s *Store) List(_ context.Context, c docstore.Path) ([]docstore.Document, error) {
	if err := docstore.CheckCollection(c); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpList, c); err != nil {
		return nil, err
	}
	type ordered struct {
		doc docstore.Document
		seq uint64
	}
	var found []ordered
	for p, e := range s.docs {
		if p.Parent() == c {
			found = append(found, ordered{
				doc: e.document(p),
				seq: e.seq,
			})
		}
	}
	slices.SortFunc(found, func(a, b ordered) int { return cmp.Compare(a.seq, b.seq) })
	out := make([]docstore.Document, len(found))
	for i, f := range found {
		out[i] = f.doc
	}
	return out, nil
}

func (s *Store) Subscribe(ctx context.Context, p docstore.Path, fn func(docstore.Snapshot)) (docstore.Unsubscribe, error) {
	if err := docstore.CheckDocument(p); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpSubscribe, p); err != nil {
		return nil, err
	}
	initial := docstore.Snapshot{Path: p}
	if e, ok := s.docs[p]; ok {
		initial.Exists = true
		initial.Data = slices.Clone(e.data)
		initial.Rev = e.rev
	}
	return s.hub.Subscribe(ctx, p, initial, fn), nil
}

// put stores data at p, notifies subscribers and returns the new revision.
// Callers hold s.mu.
func (s *Store) put(p docstore.Path, data json.RawMessage) uint64 {
	e, ok := s.docs[p]
	if !ok {
		s.seq++
		e.seq = s.seq
	}
	s.rev++
	e.rev = s.rev
	e.data = slices.Clone(data)
	e.updated = s.now()
	s.docs[p] = e
	s.hub.Publish(docstore.Snapshot{Path: p, Exists: true, Data: slices.Clone(data), Rev: e.rev})
	return e.rev
}

func (e entry) document(p docstore.Path) docstore.Document {
	return docstore.Document{Path: p, Data: slices.Clone(e.data), UpdatedAt: e.updated, Rev: e.rev}
}

var (
	_ docstore.Store         = (*Store)(nil)
	_ docstore.ArchiveLister = (*Store)(nil)
)

// ArchiveCollections lists every archive collection holding a snapshot.
func (s *Store) ArchiveCollections(_ context.Context) ([]docstore.Path, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []docstore.Path
	for p := range s.docs {
		if _, _, _, ok := docstore.ParseArchiveDoc(p); ok && !slices.Contains(out, p.Parent()) {
			out = append(out, p.Parent())
		}
	}
	slices.Sort(out)
	return out, nil
}
