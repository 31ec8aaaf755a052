package content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-search-service/internal/domain"
)

type memStore struct {
	mu         sync.Mutex
	objects    map[string][]byte
	persistErr error
	lookupErr  error
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (s *memStore) ExistingReference(_ context.Context, p *domain.Paper) (string, bool, error) {
	if s.lookupErr != nil {
		return "", false, s.lookupErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	name := FileName(p)
	if _, ok := s.objects[name]; ok {
		return "mem://" + name, true, nil
	}
	return "", false, nil
}

func (s *memStore) Persist(_ context.Context, p *domain.Paper, c *Content) (string, error) {
	if s.persistErr != nil {
		return "", s.persistErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	name := FileName(p)
	s.objects[name] = c.Data
	return "mem://" + name, nil
}

func (s *memStore) Delete(_ context.Context, p *domain.Paper) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := FileName(p)
	_, ok := s.objects[name]
	delete(s.objects, name)
	return ok, nil
}

func (s *memStore) Stats(context.Context) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]any{"object_count": len(s.objects)}, nil
}

type funcAcquirer struct {
	calls atomic.Int32
	fn    func(p *domain.Paper) (*Content, error)
}

func (a *funcAcquirer) Acquire(_ context.Context, p *domain.Paper) (*Content, error) {
	a.calls.Add(1)
	return a.fn(p)
}

func pdfBytes() []byte {
	return append([]byte("%PDF-1.7\n"), bytes.Repeat([]byte("x"), MinContentBytes)...)
}

func candidates(n int) []*domain.Paper {
	out := make([]*domain.Paper, n)
	for i := range out {
		out[i] = &domain.Paper{Title: fmt.Sprintf("Paper %d", i), DOI: fmt.Sprintf("10.1/%d", i)}
	}
	return out
}

func TestEnforce_KeepsOnlyPapersWithContent(t *testing.T) {
	store := newMemStore()
	acq := &funcAcquirer{fn: func(p *domain.Paper) (*Content, error) {
		if p.DOI == "10.1/1" || p.DOI == "10.1/3" {
			return nil, domain.ErrContentUnavailable
		}
		return &Content{Data: pdfBytes()}, nil
	}}
	e := NewEnforcer(store, acq, zerolog.Nop(), nil)

	kept, report, err := e.Enforce(context.Background(), candidates(5), 2)
	require.NoError(t, err)

	require.Len(t, kept, 3)
	assert.Equal(t, []string{"10.1/0", "10.1/2", "10.1/4"}, []string{kept[0].DOI, kept[1].DOI, kept[2].DOI})
	for _, p := range kept {
		assert.NotEmpty(t, p.ContentRef)
	}
	assert.Equal(t, Report{Kept: 3, Discarded: 2}, report)
}

func TestEnforce_ReusesExistingReference(t *testing.T) {
	store := newMemStore()
	papers := candidates(2)
	store.objects[FileName(papers[0])] = pdfBytes()

	acq := &funcAcquirer{fn: func(*domain.Paper) (*Content, error) {
		return &Content{Data: pdfBytes()}, nil
	}}
	e := NewEnforcer(store, acq, zerolog.Nop(), nil)

	kept, report, err := e.Enforce(context.Background(), papers, 8)
	require.NoError(t, err)
	assert.Len(t, kept, 2)
	assert.Equal(t, 1, report.Reused)
	assert.Equal(t, int32(1), acq.calls.Load(), "stored paper is not fetched again")
	assert.Equal(t, "mem://doi_10.1_0.pdf", kept[0].ContentRef)
}

func TestEnforce_AllAcquisitionsFail(t *testing.T) {
	acq := &funcAcquirer{fn: func(*domain.Paper) (*Content, error) {
		return nil, errors.New("no pdf anywhere")
	}}
	e := NewEnforcer(newMemStore(), acq, zerolog.Nop(), nil)

	kept, report, err := e.Enforce(context.Background(), candidates(6), 4)
	require.NoError(t, err)
	assert.Empty(t, kept)
	assert.Equal(t, 0, report.Kept)
	assert.Equal(t, 6, report.Discarded)
}

func TestEnforce_PersistFailureDropsPaper(t *testing.T) {
	store := newMemStore()
	store.persistErr = errors.New("disk full")
	acq := &funcAcquirer{fn: func(*domain.Paper) (*Content, error) {
		return &Content{Data: pdfBytes()}, nil
	}}
	e := NewEnforcer(store, acq, zerolog.Nop(), nil)

	kept, report, err := e.Enforce(context.Background(), candidates(3), 8)
	require.NoError(t, err)
	assert.Empty(t, kept)
	assert.Equal(t, 3, report.Discarded)
}

func TestEnforce_PanicIsolatedToOnePaper(t *testing.T) {
	acq := &funcAcquirer{fn: func(p *domain.Paper) (*Content, error) {
		if p.DOI == "10.1/0" {
			panic("parser exploded")
		}
		return &Content{Data: pdfBytes()}, nil
	}}
	e := NewEnforcer(newMemStore(), acq, zerolog.Nop(), nil)

	kept, report, err := e.Enforce(context.Background(), candidates(3), 3)
	require.NoError(t, err)
	assert.Len(t, kept, 2)
	assert.Equal(t, 1, report.Discarded)
}

func TestEnforce_LookupErrorFallsBackToAcquire(t *testing.T) {
	store := newMemStore()
	store.lookupErr = errors.New("index unavailable")
	acq := &funcAcquirer{fn: func(*domain.Paper) (*Content, error) {
		return &Content{Data: pdfBytes()}, nil
	}}
	e := NewEnforcer(store, acq, zerolog.Nop(), nil)

	kept, _, err := e.Enforce(context.Background(), candidates(1), 1)
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestEnforce_BatchesRunSequentially(t *testing.T) {
	var inFlight, peak atomic.Int32
	acq := &funcAcquirer{fn: func(*domain.Paper) (*Content, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		defer inFlight.Add(-1)
		return &Content{Data: pdfBytes()}, nil
	}}
	e := NewEnforcer(newMemStore(), acq, zerolog.Nop(), nil)

	_, report, err := e.Enforce(context.Background(), candidates(10), 3)
	require.NoError(t, err)
	assert.Equal(t, 10, report.Kept)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestEnforce_StructuralFailures(t *testing.T) {
	t.Run("missing collaborators", func(t *testing.T) {
		e := NewEnforcer(nil, nil, zerolog.Nop(), nil)
		_, _, err := e.Enforce(context.Background(), candidates(1), 1)
		assert.ErrorIs(t, err, ErrNotConfigured)
		assert.ErrorIs(t, err, domain.ErrPermanent)
	})

	t.Run("canceled context", func(t *testing.T) {
		acq := &funcAcquirer{fn: func(*domain.Paper) (*Content, error) {
			return &Content{Data: pdfBytes()}, nil
		}}
		e := NewEnforcer(newMemStore(), acq, zerolog.Nop(), nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, _, err := e.Enforce(ctx, candidates(2), 1)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("empty input", func(t *testing.T) {
		e := NewEnforcer(newMemStore(), &funcAcquirer{}, zerolog.Nop(), nil)
		kept, report, err := e.Enforce(context.Background(), nil, 0)
		require.NoError(t, err)
		assert.Empty(t, kept)
		assert.Equal(t, Report{}, report)
	})
}

func TestEnforce_LogsDiscardWithPaperFields(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	acq := &funcAcquirer{fn: func(*domain.Paper) (*Content, error) {
		return nil, domain.ErrContentUnavailable
	}}
	e := NewEnforcer(newMemStore(), acq, logger, nil)

	papers := []*domain.Paper{{Title: "Unreachable Paper", DOI: "10.1/1"}}
	kept, _, err := e.Enforce(context.Background(), papers, 1)
	require.NoError(t, err)
	assert.Empty(t, kept)

	out := buf.String()
	assert.Contains(t, out, `"file_name":"doi_10.1_1.pdf"`)
	assert.Contains(t, out, `"title":"Unreachable Paper"`)
	assert.Contains(t, out, "paper discarded without content")
}
