package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/helixir/paper-search-service/internal/domain"
)

// PgContentRepository implements ContentRepository on the content_references table.
type PgContentRepository struct {
	db DBTX
}

var _ ContentRepository = (*PgContentRepository)(nil)

// NewPgContentRepository creates a PgContentRepository.
func NewPgContentRepository(db DBTX) *PgContentRepository {
	return &PgContentRepository{db: db}
}

const contentColumns = `file_name, reference, sha256, size_bytes, source_url, doi, title, created_at`

func (r *PgContentRepository) Upsert(ctx context.Context, ref *domain.ContentReference) error {
	if ref == nil {
		return domain.NewValidationError("content_reference", "content reference is required")
	}
	if ref.FileName == "" {
		return domain.NewValidationError("file_name", "file name is required")
	}
	if ref.Reference == "" {
		return domain.NewValidationError("reference", "reference is required")
	}

	createdAt := ref.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO content_references (
			file_name, reference, sha256, size_bytes, source_url, doi, title, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (file_name) DO UPDATE SET
			reference = EXCLUDED.reference,
			sha256 = EXCLUDED.sha256,
			size_bytes = EXCLUDED.size_bytes,
			source_url = EXCLUDED.source_url,
			doi = COALESCE(NULLIF(EXCLUDED.doi, ''), content_references.doi),
			title = COALESCE(NULLIF(EXCLUDED.title, ''), content_references.title),
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.Exec(ctx, query,
		ref.FileName,
		ref.Reference,
		ref.SHA256,
		ref.SizeBytes,
		ref.SourceURL,
		ref.DOI,
		ref.Title,
		createdAt,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert content reference: %w", err)
	}
	return nil
}

func (r *PgContentRepository) GetByFileName(ctx context.Context, fileName string) (*domain.ContentReference, error) {
	if fileName == "" {
		return nil, domain.NewValidationError("file_name", "file name is required")
	}

	query := `SELECT ` + contentColumns + ` FROM content_references WHERE file_name = $1`

	ref, err := scanContentReference(r.db.QueryRow(ctx, query, fileName))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("content_reference", fileName)
		}
		return nil, fmt.Errorf("failed to get content reference: %w", err)
	}
	return ref, nil
}

func (r *PgContentRepository) DeleteByFileName(ctx context.Context, fileName string) (bool, error) {
	if fileName == "" {
		return false, domain.NewValidationError("file_name", "file name is required")
	}

	result, err := r.db.Exec(ctx, `DELETE FROM content_references WHERE file_name = $1`, fileName)
	if err != nil {
		return false, fmt.Errorf("failed to delete content reference: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (r *PgContentRepository) List(ctx context.Context, filter ContentFilter) ([]*domain.ContentReference, int64, error) {
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}

	whereClause := ""
	var args []any
	argIndex := 1
	if filter.DOI != "" {
		whereClause = fmt.Sprintf("WHERE doi = $%d", argIndex)
		args = append(args, filter.DOI)
		argIndex++
	}

	var total int64
	countQuery := "SELECT COUNT(*) FROM content_references " + whereClause
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count content references: %w", err)
	}

	selectQuery := fmt.Sprintf(`
		SELECT %s
		FROM content_references
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		contentColumns, whereClause, argIndex, argIndex+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list content references: %w", err)
	}
	defer rows.Close()

	refs := make([]*domain.ContentReference, 0, filter.Limit)
	for rows.Next() {
		ref, err := scanContentReference(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan content reference: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating content references: %w", err)
	}

	return refs, total, nil
}

func (r *PgContentRepository) Summary(ctx context.Context) (ContentSummary, error) {
	var s ContentSummary
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size_bytes), 0)::BIGINT FROM content_references`,
	).Scan(&s.Objects, &s.TotalBytes)
	if err != nil {
		return ContentSummary{}, fmt.Errorf("failed to summarize content references: %w", err)
	}
	return s, nil
}

func scanContentReference(row pgx.Row) (*domain.ContentReference, error) {
	var ref domain.ContentReference
	if err := row.Scan(
		&ref.FileName, &ref.Reference, &ref.SHA256, &ref.SizeBytes,
		&ref.SourceURL, &ref.DOI, &ref.Title, &ref.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &ref, nil
}
