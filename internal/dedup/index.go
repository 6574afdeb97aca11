package dedup

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

// Index is the persistent set of fingerprints already processed.
type Index interface {
	Seen(ctx context.Context, fp string) (bool, error)
	Record(ctx context.Context, fp string) error
	// SeenAndRecord inserts fp and reports whether it was already present,
	// as one atomic step.
	SeenAndRecord(ctx context.Context, fp string) (bool, error)
	Purge(ctx context.Context) error
	Size(ctx context.Context) (int64, error)
}

// MemoryIndex is a mutex-guarded in-process Index.
type MemoryIndex struct {
	mu  sync.Mutex
	set map[string]struct{}
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{set: make(map[string]struct{})}
}

// Seen implements Index.
func (m *MemoryIndex) Seen(_ context.Context, fp string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.set[fp]
	return ok, nil
}

// Record implements Index.
func (m *MemoryIndex) Record(_ context.Context, fp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set[fp] = struct{}{}
	return nil
}

// SeenAndRecord implements Index.
func (m *MemoryIndex) SeenAndRecord(_ context.Context, fp string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.set[fp]; ok {
		return true, nil
	}
	m.set[fp] = struct{}{}
	return false, nil
}

// Purge implements Index.
func (m *MemoryIndex) Purge(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set = make(map[string]struct{})
	return nil
}

// Size implements Index.
func (m *MemoryIndex) Size(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.set)), nil
}

// FingerprintStore is the storage surface a StoreIndex needs.
type FingerprintStore interface {
	// InsertFingerprint returns inserted=false when fp already existed.
	InsertFingerprint(ctx context.Context, fp string) (bool, error)
	HasFingerprint(ctx context.Context, fp string) (bool, error)
	PurgeFingerprints(ctx context.Context) (int64, error)
	CountFingerprints(ctx context.Context) (int64, error)
}

// StoreIndex is an Index backed by a database table. Compare-and-insert is
// a single conflict-ignoring INSERT, so it is atomic across processes.
type StoreIndex struct {
	st FingerprintStore
}

// NewStoreIndex wraps st.
func NewStoreIndex(st FingerprintStore) *StoreIndex {
	return &StoreIndex{st: st}
}

// Seen implements Index.
func (s *StoreIndex) Seen(ctx context.Context, fp string) (bool, error) {
	ok, err := s.st.HasFingerprint(ctx, fp)
	if err != nil {
		return false, eris.Wrap(err, "dedup: lookup fingerprint")
	}
	return ok, nil
}

// Record implements Index.
func (s *StoreIndex) Record(ctx context.Context, fp string) error {
	if _, err := s.st.InsertFingerprint(ctx, fp); err != nil {
		return eris.Wrap(err, "dedup: record fingerprint")
	}
	return nil
}

// SeenAndRecord implements Index.
func (s *StoreIndex) SeenAndRecord(ctx context.Context, fp string) (bool, error) {
	inserted, err := s.st.InsertFingerprint(ctx, fp)
	if err != nil {
		return false, eris.Wrap(err, "dedup: record fingerprint")
	}
	return !inserted, nil
}

// Purge implements Index.
func (s *StoreIndex) Purge(ctx context.Context) error {
	if _, err := s.st.PurgeFingerprints(ctx); err != nil {
		return eris.Wrap(err, "dedup: purge fingerprints")
	}
	return nil
}

// Size implements Index.
func (s *StoreIndex) Size(ctx context.Context) (int64, error) {
	n, err := s.st.CountFingerprints(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "dedup: count fingerprints")
	}
	return n, nil
}
