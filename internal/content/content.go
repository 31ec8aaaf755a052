// Package content enforces that every emitted paper carries a durable
// full-text reference, and defines the store and acquisition contracts that
// back it.
package content

import (
	"context"

	"github.com/helixir/paper-search-service/internal/domain"
)

// MinContentBytes is the smallest payload accepted as a full-text document.
const MinContentBytes = 1024

// Content is a fetched full-text document.
type Content struct {
	Data        []byte
	ContentType string
	SHA256      string
	SourceURL   string
}

// Size returns the payload length in bytes.
func (c *Content) Size() int64 {
	if c == nil {
		return 0
	}
	return int64(len(c.Data))
}

// Acquirer fetches full text for a paper. It returns an error wrapping
// domain.ErrContentUnavailable when no source yields a document.
type Acquirer interface {
	Acquire(ctx context.Context, paper *domain.Paper) (*Content, error)
}

// Store persists full text and resolves references to it.
type Store interface {
	// ExistingReference returns the reference of an already stored copy.
	ExistingReference(ctx context.Context, paper *domain.Paper) (ref string, ok bool, err error)

	// Persist stores c for paper and returns its reference.
	Persist(ctx context.Context, paper *domain.Paper, c *Content) (string, error)

	// Delete removes the stored copy. It reports whether one existed.
	Delete(ctx context.Context, paper *domain.Paper) (bool, error)

	// Stats describes the store for operators.
	Stats(ctx context.Context) (map[string]any, error)
}

// Report counts the results of one enforcement pass.
type Report struct {
	Kept      int `json:"kept"`
	Discarded int `json:"discarded"`
	Reused    int `json:"reused"`
}
