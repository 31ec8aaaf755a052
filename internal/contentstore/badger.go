// Package contentstore provides durable storage for paper full text: a
// Badger-backed blob store and a Redis cache for reference lookups.
package contentstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-service/internal/content"
	"github.com/helixir/paper-search-service/internal/domain"
)

const (
	blobPrefix = "blob/"
	metaPrefix = "meta/"
)

// ErrObjectNotFound is returned by Open for unknown file names.
var ErrObjectNotFound = fmt.Errorf("content object: %w", domain.ErrNotFound)

// Catalog records stored objects outside the blob store.
type Catalog interface {
	Upsert(ctx context.Context, ref *domain.ContentReference) error
	DeleteByFileName(ctx context.Context, fileName string) (bool, error)
}

// BadgerConfig configures a BadgerStore.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps all data in memory; used in tests.
	InMemory bool
	// PublicBaseURL prefixes file names to form references.
	PublicBaseURL string
}

// BadgerStore implements content.Store on an embedded Badger database.
type BadgerStore struct {
	db      *badger.DB
	cfg     BadgerConfig
	catalog Catalog
	logger  zerolog.Logger
	now     func() time.Time
}

var _ content.Store = (*BadgerStore)(nil)

// badgerLogger routes Badger's internal logging through zerolog.
type badgerLogger struct {
	logger zerolog.Logger
}

func (l badgerLogger) Errorf(msg string, args ...any)   { l.logger.Error().Msgf(strings.TrimSpace(msg), args...) }
func (l badgerLogger) Warningf(msg string, args ...any) { l.logger.Warn().Msgf(strings.TrimSpace(msg), args...) }
func (l badgerLogger) Infof(msg string, args ...any)    { l.logger.Debug().Msgf(strings.TrimSpace(msg), args...) }
func (l badgerLogger) Debugf(msg string, args ...any)   { l.logger.Trace().Msgf(strings.TrimSpace(msg), args...) }

// OpenBadgerStore opens (creating if needed) the store. catalog may be nil.
func OpenBadgerStore(cfg BadgerConfig, catalog Catalog, logger zerolog.Logger) (*BadgerStore, error) {
	logger = logger.With().Str("component", "content_store").Logger()

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("contentstore: path is required")
		}
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts.Logger = badgerLogger{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	return &BadgerStore{
		db:      db,
		cfg:     cfg,
		catalog: catalog,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is open.
func (s *BadgerStore) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("content store is closed")
	}
	return nil
}

// ReferenceFor returns the public reference for a file name.
func (s *BadgerStore) ReferenceFor(fileName string) string {
	return s.cfg.PublicBaseURL + "/" + fileName
}

func (s *BadgerStore) ExistingReference(_ context.Context, p *domain.Paper) (string, bool, error) {
	name := content.FileName(p)
	if !content.IsStableName(name) {
		return "", false, nil
	}

	if _, err := s.lookup(name); err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return s.ReferenceFor(name), true, nil
}

func (s *BadgerStore) Persist(ctx context.Context, p *domain.Paper, c *content.Content) (string, error) {
	if c == nil || len(c.Data) == 0 {
		return "", errors.New("contentstore: empty content")
	}

	name := content.FileName(p)
	ref := &domain.ContentReference{
		FileName:  name,
		Reference: s.ReferenceFor(name),
		SHA256:    c.SHA256,
		SizeBytes: c.Size(),
		SourceURL: c.SourceURL,
		DOI:       p.DOI,
		Title:     p.Title,
		CreatedAt: s.now().UTC(),
	}
	meta, err := json.Marshal(ref)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(blobPrefix+name), c.Data); err != nil {
			return err
		}
		return txn.Set([]byte(metaPrefix+name), meta)
	})
	if err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}

	if s.catalog != nil {
		if err := s.catalog.Upsert(ctx, ref); err != nil {
			s.logger.Warn().Err(err).Str("file_name", name).Msg("failed to record content in catalog")
		}
	}

	s.logger.Debug().Str("file_name", name).Int64("size_bytes", ref.SizeBytes).Msg("content persisted")
	return ref.Reference, nil
}

func (s *BadgerStore) Delete(ctx context.Context, p *domain.Paper) (bool, error) {
	name := content.FileName(p)
	if !content.IsStableName(name) {
		return false, nil
	}

	existed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(metaPrefix + name))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			return nil
		case err != nil:
			return err
		}
		existed = true
		if err := txn.Delete([]byte(blobPrefix + name)); err != nil {
			return err
		}
		return txn.Delete([]byte(metaPrefix + name))
	})
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", name, err)
	}

	if existed && s.catalog != nil {
		if _, err := s.catalog.DeleteByFileName(ctx, name); err != nil {
			s.logger.Warn().Err(err).Str("file_name", name).Msg("failed to remove content from catalog")
		}
	}
	return existed, nil
}

func (s *BadgerStore) Stats(context.Context) (map[string]any, error) {
	var count int
	var total int64

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(metaPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var ref domain.ContentReference
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &ref)
			}); err != nil {
				return err
			}
			count++
			total += ref.SizeBytes
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect stats: %w", err)
	}

	path := s.cfg.Path
	if s.cfg.InMemory {
		path = ":memory:"
	}
	return map[string]any{
		"backend":      "badger",
		"object_count": count,
		"total_bytes":  total,
		"path":         path,
	}, nil
}

// Open returns the stored bytes and metadata for fileName.
func (s *BadgerStore) Open(fileName string) ([]byte, *domain.ContentReference, error) {
	var data []byte
	var ref domain.ContentReference

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaPrefix + fileName))
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &ref) }); err != nil {
			return err
		}
		blob, err := txn.Get([]byte(blobPrefix + fileName))
		if err != nil {
			return err
		}
		data, err = blob.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return data, &ref, nil
}

func (s *BadgerStore) lookup(fileName string) (*domain.ContentReference, error) {
	var ref domain.ContentReference
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaPrefix + fileName))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error { return json.Unmarshal(val, &ref) })
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ref, nil
}
