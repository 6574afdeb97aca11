package dedup

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/deal-engine/internal/model"
)

func TestFingerprint_Normalization(t *testing.T) {
	t.Parallel()

	base := Fingerprint("12 Elm St, Austin, TX", "200000", "Great starter home")

	tests := []struct {
		name  string
		addr  string
		price string
		desc  string
		same  bool
	}{
		{"identical", "12 Elm St, Austin, TX", "200000", "Great starter home", true},
		{"case and spacing", "  12  ELM st,   austin, tx ", "200000", "great   starter\nhome", true},
		{"currency formatting", "12 Elm St, Austin, TX", "$200,000.00", "Great starter home", true},
		{"different price", "12 Elm St, Austin, TX", "210000", "Great starter home", false},
		{"different address", "14 Elm St, Austin, TX", "200000", "Great starter home", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Fingerprint(tt.addr, tt.price, tt.desc)
			assert.Len(t, got, 64)
			if tt.same {
				assert.Equal(t, base, got)
			} else {
				assert.NotEqual(t, base, got)
			}
		})
	}
}

func TestFingerprint_Accents(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		Fingerprint("1 Calle Peña", "1", ""),
		Fingerprint("1 calle pena", "1", ""),
	)
}

func TestFingerprint_DescriptionExcerpt(t *testing.T) {
	t.Parallel()

	prefix := make([]rune, DescriptionExcerpt)
	for i := range prefix {
		prefix[i] = 'a'
	}
	a := Fingerprint("1 Main", "1", string(prefix)+" tail one")
	b := Fingerprint("1 Main", "1", string(prefix)+" different tail")
	assert.Equal(t, a, b)
}

func TestPropertyFingerprint(t *testing.T) {
	t.Parallel()

	p := &model.Property{Address: "12 Elm St", City: "Austin", Price: model.Float(200000), Description: "x"}
	assert.Equal(t, Fingerprint("12 Elm St, Austin", "$200,000", "x"), PropertyFingerprint(p))
}

func TestMemoryIndex(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	idx := NewMemoryIndex()

	seen, err := idx.Seen(ctx, "a")
	require.NoError(t, err)
	assert.False(t, seen)

	dup, err := idx.SeenAndRecord(ctx, "a")
	require.NoError(t, err)
	assert.False(t, dup)

	dup, err = idx.SeenAndRecord(ctx, "a")
	require.NoError(t, err)
	assert.True(t, dup)

	require.NoError(t, idx.Record(ctx, "b"))
	n, _ := idx.Size(ctx)
	assert.Equal(t, int64(2), n)

	require.NoError(t, idx.Purge(ctx))
	seen, _ = idx.Seen(ctx, "a")
	assert.False(t, seen)
	n, _ = idx.Size(ctx)
	assert.Zero(t, n)
}

func TestMemoryIndex_ConcurrentClaimsSingleWinner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	idx := NewMemoryIndex()
	var winners atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dup, err := idx.SeenAndRecord(ctx, "same")
			if err == nil && !dup {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners.Load())
}

type mockFingerprintStore struct {
	mock.Mock
}

func (m *mockFingerprintStore) InsertFingerprint(ctx context.Context, fp string) (bool, error) {
	args := m.Called(ctx, fp)
	return args.Bool(0), args.Error(1)
}

func (m *mockFingerprintStore) HasFingerprint(ctx context.Context, fp string) (bool, error) {
	args := m.Called(ctx, fp)
	return args.Bool(0), args.Error(1)
}

func (m *mockFingerprintStore) PurgeFingerprints(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockFingerprintStore) CountFingerprints(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func TestStoreIndex(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := &mockFingerprintStore{}
	st.On("InsertFingerprint", ctx, "new").Return(true, nil)
	st.On("InsertFingerprint", ctx, "old").Return(false, nil)
	st.On("HasFingerprint", ctx, "old").Return(true, nil)
	st.On("CountFingerprints", ctx).Return(int64(7), nil)
	st.On("PurgeFingerprints", ctx).Return(int64(7), nil)

	idx := NewStoreIndex(st)

	dup, err := idx.SeenAndRecord(ctx, "new")
	require.NoError(t, err)
	assert.False(t, dup)

	dup, err = idx.SeenAndRecord(ctx, "old")
	require.NoError(t, err)
	assert.True(t, dup)

	seen, err := idx.Seen(ctx, "old")
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, idx.Record(ctx, "new"))

	n, err := idx.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	require.NoError(t, idx.Purge(ctx))
	st.AssertExpectations(t)
}

func TestStoreIndex_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := &mockFingerprintStore{}
	boom := errors.New("db down")
	st.On("InsertFingerprint", ctx, "x").Return(false, boom)
	st.On("HasFingerprint", ctx, "x").Return(false, boom)

	idx := NewStoreIndex(st)
	_, err := idx.SeenAndRecord(ctx, "x")
	assert.ErrorIs(t, err, boom)
	_, err = idx.Seen(ctx, "x")
	assert.ErrorIs(t, err, boom)
}

func TestDeduper(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := New(NewMemoryIndex(), nil)
	p := &model.Property{ID: "c1", Address: "12 Elm St", Price: model.Float(200000)}

	dup, err := d.IsDuplicate(ctx, p)
	require.NoError(t, err)
	assert.False(t, dup)

	fp, dup, err := d.Claim(ctx, p)
	require.NoError(t, err)
	assert.False(t, dup)
	assert.Len(t, fp, 64)

	_, dup, err = d.Claim(ctx, p)
	require.NoError(t, err)
	assert.True(t, dup)

	assert.ErrorIs(t, d.Purge(ctx, " "), ErrOperatorRequired)

	require.NoError(t, d.Purge(ctx, "ops-1"))
	dup, err = d.IsDuplicate(ctx, p)
	require.NoError(t, err)
	assert.False(t, dup)

	require.NoError(t, d.RecordSeen(ctx, p))
	n, err := d.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
