package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/atalho/atalho-url/internal/infrastructure/db"
	"github.com/atalho/atalho-url/internal/processing/shortener"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS links (
    code            VARCHAR(16) PRIMARY KEY,
    target_url      TEXT        NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    expires_at      TIMESTAMPTZ,
    click_count     BIGINT      NOT NULL DEFAULT 0,
    last_clicked_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_links_expires_at ON links (expires_at) WHERE expires_at IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_links_created_at ON links (created_at DESC);
`

type LinksRepository struct {
	pool *pgxpool.Pool
}

// NewLinksRepository bootstraps the schema and returns the repository.
// DDL is idempotent so concurrent instances may race it safely.
func NewLinksRepository(p *db.Postgres) (*LinksRepository, error) {
	if p == nil || p.Pool == nil {
		return nil, errors.New("postgres pool is nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := p.Pool.Exec(ctx, schemaDDL); err != nil {
		return nil, err
	}

	return &LinksRepository{pool: p.Pool}, nil
}

func (r *LinksRepository) Insert(ctx context.Context, link *shortener.Link) error {
	if link == nil {
		return errors.New("link is nil")
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO links (code, target_url, created_at, expires_at)
		VALUES ($1, $2, $3, $4)`,
		link.Code, link.TargetURL, link.CreatedAt.UTC(), link.ExpiresAt,
	)
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shortener.ErrCodeTaken
	}
	return err
}

func (r *LinksRepository) GetByCode(ctx context.Context, code string) (*shortener.Link, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT code, target_url, created_at, expires_at, click_count, last_clicked_at
		FROM links WHERE code = $1`,
		code,
	)

	link, err := scanLink(row)
	if err == nil {
		return link, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shortener.ErrNotFound
	}
	return nil, err
}

func (r *LinksRepository) IncrementClick(ctx context.Context, code string, at time.Time) error {
	// GREATEST keeps last_clicked_at monotonic when clicks arrive out of order.
	tag, err := r.pool.Exec(ctx, `
		UPDATE links
		SET click_count = click_count + 1,
		    last_clicked_at = GREATEST(COALESCE(last_clicked_at, $2), $2)
		WHERE code = $1`,
		code, at.UTC(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shortener.ErrNotFound
	}
	return nil
}

func (r *LinksRepository) Delete(ctx context.Context, code string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM links WHERE code = $1`, code)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *LinksRepository) DeleteExpired(ctx context.Context, asOf time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		DELETE FROM links
		WHERE expires_at IS NOT NULL AND expires_at <= $1
		RETURNING code`,
		asOf.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

func (r *LinksRepository) ListPage(ctx context.Context, limit, offset int64) ([]shortener.Link, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT code, target_url, created_at, expires_at, click_count, last_clicked_at
		FROM links
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	links := make([]shortener.Link, 0, limit)
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, *link)
	}
	return links, rows.Err()
}

func (r *LinksRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM links`).Scan(&total)
	return total, err
}

func (r *LinksRepository) Stats(ctx context.Context) (shortener.Stats, error) {
	var stats shortener.Stats
	err := r.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE expires_at IS NULL OR expires_at > now()),
		       count(*) FILTER (WHERE expires_at IS NOT NULL AND expires_at <= now()),
		       COALESCE(sum(click_count), 0)
		FROM links`,
	).Scan(&stats.TotalLinks, &stats.ActiveLinks, &stats.ExpiredLinks, &stats.TotalClicks)
	return stats, err
}

// Ping reports whether the database is reachable.
func (r *LinksRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanLink(row pgx.Row) (*shortener.Link, error) {
	var link shortener.Link
	err := row.Scan(
		&link.Code,
		&link.TargetURL,
		&link.CreatedAt,
		&link.ExpiresAt,
		&link.ClickCount,
		&link.LastClickedAt,
	)
	if err != nil {
		return nil, err
	}
	return &link, nil
}
