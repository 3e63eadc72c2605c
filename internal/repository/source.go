package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/talentboard/supportbot/internal/domain"
)

// SourceRepository reads the job board's content tables. It never writes to them.
type SourceRepository struct {
	db dbtx
}

func NewSourceRepository(pool *pgxpool.Pool) *SourceRepository {
	return &SourceRepository{db: pool}
}

type sourceQueries struct {
	list string
	get  string
	scan func(pgx.Row) (domain.Source, error)
}

var sourceTables = map[domain.SourceType]sourceQueries{
	domain.SourceTypeFAQ: {
		list: `SELECT id, question, answer, COALESCE(category, '') FROM faqs ORDER BY id`,
		get:  `SELECT id, question, answer, COALESCE(category, '') FROM faqs WHERE id = $1`,
		scan: func(row pgx.Row) (domain.Source, error) {
			var f domain.FAQ
			err := row.Scan(&f.ID, &f.Question, &f.Answer, &f.Category)
			return &f, err
		},
	},
	domain.SourceTypeContentPage: {
		list: `SELECT id, page_type, title, COALESCE(description, '') FROM content_pages ORDER BY id`,
		get:  `SELECT id, page_type, title, COALESCE(description, '') FROM content_pages WHERE id = $1`,
		scan: func(row pgx.Row) (domain.Source, error) {
			var p domain.ContentPage
			err := row.Scan(&p.ID, &p.Type, &p.Title, &p.Description)
			return &p, err
		},
	},
	domain.SourceTypeBlog: {
		list: `SELECT id, title, COALESCE(description, '') FROM blog_posts ORDER BY id`,
		get:  `SELECT id, title, COALESCE(description, '') FROM blog_posts WHERE id = $1`,
		scan: func(row pgx.Row) (domain.Source, error) {
			var b domain.BlogPost
			err := row.Scan(&b.ID, &b.Title, &b.Description)
			return &b, err
		},
	},
	domain.SourceTypeCustomQA: {
		list: `SELECT id, question, answer, COALESCE(tags, '{}'), is_active FROM custom_qas WHERE is_active ORDER BY id`,
		get:  `SELECT id, question, answer, COALESCE(tags, '{}'), is_active FROM custom_qas WHERE id = $1`,
		scan: func(row pgx.Row) (domain.Source, error) {
			var q domain.CustomQA
			err := row.Scan(&q.ID, &q.Question, &q.Answer, &q.Tags, &q.IsActive)
			return &q, err
		},
	},
}

// ListSources returns every document of a type. Inactive custom Q&A entries are excluded.
func (r *SourceRepository) ListSources(ctx context.Context, sourceType domain.SourceType) ([]domain.Source, error) {
	q, ok := sourceTables[sourceType]
	if !ok {
		return nil, domain.ErrInvalidSourceType
	}
	rows, err := r.db.Query(ctx, q.list)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []domain.Source
	for rows.Next() {
		src, err := q.scan(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// GetSource returns a single document or domain.ErrSourceNotFound.
func (r *SourceRepository) GetSource(ctx context.Context, sourceType domain.SourceType, id string) (domain.Source, error) {
	q, ok := sourceTables[sourceType]
	if !ok {
		return nil, domain.ErrInvalidSourceType
	}
	src, err := q.scan(r.db.QueryRow(ctx, q.get, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSourceNotFound
		}
		return nil, err
	}
	return src, nil
}
