package store

import (
	"context"
	"fmt"
	"strings"
)

// SearchQuery captures one search request. Zero-value fields are not
// filtered on.
type SearchQuery struct {
	// Text is matched against the full-text vector with websearch syntax
	// (quoted phrases, OR, leading minus). Empty means filter-only listing.
	Text             string
	UploadedBy       string
	ContentType      string
	StorageElementID string
	Tag              string
	IncludeDeleted   bool
	Limit            int
	Offset           int
}

// Search runs a full-text query over the index and returns one page of
// matches plus the total match count. Results are ranked by relevance when
// Text is set, newest-first otherwise.
//
// The query text runs through both the simple and english configurations so
// exact filename tokens and stemmed description words both match.
func (s *Store) Search(ctx context.Context, q SearchQuery) ([]FileRecord, int64, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}

	from := "files"
	conds := make([]string, 0, 6)
	args := make([]any, 0, 8)

	if q.Text != "" {
		args = append(args, q.Text)
		from = fmt.Sprintf(
			"files, (SELECT websearch_to_tsquery('simple', $%d) || websearch_to_tsquery('english', $%d) AS q) AS tsq",
			len(args), len(args))
		conds = append(conds, "search_vector @@ tsq.q")
	}
	if !q.IncludeDeleted {
		conds = append(conds, "deleted_at IS NULL")
	}
	if q.UploadedBy != "" {
		args = append(args, q.UploadedBy)
		conds = append(conds, fmt.Sprintf("uploaded_by = $%d", len(args)))
	}
	if q.ContentType != "" {
		// Prefix match so "image/" covers every image subtype.
		args = append(args, q.ContentType)
		conds = append(conds, fmt.Sprintf("content_type LIKE $%d || '%%'", len(args)))
	}
	if q.StorageElementID != "" {
		args = append(args, q.StorageElementID)
		conds = append(conds, fmt.Sprintf("storage_element_id = $%d", len(args)))
	}
	if q.Tag != "" {
		args = append(args, q.Tag)
		conds = append(conds, fmt.Sprintf("tags @> ARRAY[$%d]::text[]", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM "+from+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count search results: %w", err)
	}

	order := " ORDER BY created_at DESC, file_id"
	if q.Text != "" {
		order = " ORDER BY ts_rank(search_vector, tsq.q) DESC, created_at DESC, file_id"
	}

	args = append(args, q.Limit, q.Offset)
	query := "SELECT " + fileColumns + " FROM " + from + where + order +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search files: %w", err)
	}
	defer rows.Close()

	files := make([]FileRecord, 0, q.Limit)
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan search result: %w", err)
		}
		files = append(files, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("search files: %w", err)
	}
	return files, total, nil
}
