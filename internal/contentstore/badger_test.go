package contentstore

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-search-service/internal/content"
	"github.com/helixir/paper-search-service/internal/domain"
)

type recordingCatalog struct {
	mu      sync.Mutex
	records map[string]*domain.ContentReference
	err     error
}

func newRecordingCatalog() *recordingCatalog {
	return &recordingCatalog{records: make(map[string]*domain.ContentReference)}
}

func (c *recordingCatalog) Upsert(_ context.Context, ref *domain.ContentReference) error {
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[ref.FileName] = ref
	return nil
}

func (c *recordingCatalog) DeleteByFileName(_ context.Context, name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.records[name]
	delete(c.records, name)
	return ok, nil
}

func openTestStore(t *testing.T, catalog Catalog) *BadgerStore {
	t.Helper()
	s, err := OpenBadgerStore(BadgerConfig{InMemory: true, PublicBaseURL: "https://papers.example.org/content/"}, catalog, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func samplePDF() *content.Content {
	return &content.Content{
		Data:      append([]byte("%PDF-1.5\n"), bytes.Repeat([]byte("z"), 4096)...),
		SHA256:    "abc123",
		SourceURL: "https://arxiv.org/pdf/2301.00001",
	}
}

func TestBadgerStore_PersistAndLookup(t *testing.T) {
	catalog := newRecordingCatalog()
	s := openTestStore(t, catalog)
	ctx := context.Background()
	p := &domain.Paper{Title: "Stored", DOI: "10.1/stored"}

	ref, ok, err := s.ExistingReference(ctx, p)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, ref)

	ref, err = s.Persist(ctx, p, samplePDF())
	require.NoError(t, err)
	assert.Equal(t, "https://papers.example.org/content/doi_10.1_stored.pdf", ref)

	again, ok, err := s.ExistingReference(ctx, p.Clone())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ref, again)

	require.Contains(t, catalog.records, "doi_10.1_stored.pdf")
	assert.Equal(t, int64(len(samplePDF().Data)), catalog.records["doi_10.1_stored.pdf"].SizeBytes)

	data, meta, err := s.Open("doi_10.1_stored.pdf")
	require.NoError(t, err)
	assert.Equal(t, samplePDF().Data, data)
	assert.Equal(t, "Stored", meta.Title)
}

func TestBadgerStore_CatalogFailureDoesNotFailPersist(t *testing.T) {
	catalog := newRecordingCatalog()
	catalog.err = errors.New("db down")
	s := openTestStore(t, catalog)

	_, err := s.Persist(context.Background(), &domain.Paper{DOI: "10.1/x"}, samplePDF())
	assert.NoError(t, err)
}

func TestBadgerStore_RejectsEmptyContent(t *testing.T) {
	s := openTestStore(t, nil)

	_, err := s.Persist(context.Background(), &domain.Paper{DOI: "10.1/x"}, &content.Content{})
	assert.Error(t, err)
}

func TestBadgerStore_Delete(t *testing.T) {
	catalog := newRecordingCatalog()
	s := openTestStore(t, catalog)
	ctx := context.Background()
	p := &domain.Paper{DOI: "10.1/gone"}

	_, err := s.Persist(ctx, p, samplePDF())
	require.NoError(t, err)

	deleted, err := s.Delete(ctx, p)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Empty(t, catalog.records)

	_, ok, err := s.ExistingReference(ctx, p)
	require.NoError(t, err)
	assert.False(t, ok)

	deleted, err = s.Delete(ctx, p)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, _, err = s.Open("doi_10.1_gone.pdf")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBadgerStore_UnidentifiedPapersNeverMatch(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	_, err := s.Persist(ctx, &domain.Paper{}, samplePDF())
	require.NoError(t, err)

	_, ok, err := s.ExistingReference(ctx, &domain.Paper{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBadgerStore_Stats(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	for _, doi := range []string{"10.1/a", "10.1/b"} {
		_, err := s.Persist(ctx, &domain.Paper{DOI: doi}, samplePDF())
		require.NoError(t, err)
	}

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "badger", stats["backend"])
	assert.Equal(t, 2, stats["object_count"])
	assert.Equal(t, int64(2*len(samplePDF().Data)), stats["total_bytes"])
	assert.Equal(t, ":memory:", stats["path"])
	assert.NoError(t, s.Ping(ctx))
}

func TestBadgerStore_OnDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	p := &domain.Paper{DOI: "10.1/persisted"}

	s, err := OpenBadgerStore(BadgerConfig{Path: dir, PublicBaseURL: "http://localhost"}, nil, zerolog.Nop())
	require.NoError(t, err)
	_, err = s.Persist(ctx, p, samplePDF())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := OpenBadgerStore(BadgerConfig{Path: dir, PublicBaseURL: "http://localhost"}, nil, zerolog.Nop())
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	ref, ok, err := reopened.ExistingReference(ctx, p)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "http://localhost/doi_10.1_persisted.pdf", ref)
}

func TestOpenBadgerStore_RequiresPath(t *testing.T) {
	_, err := OpenBadgerStore(BadgerConfig{}, nil, zerolog.Nop())
	assert.Error(t, err)
}
