package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/painradar/aggregation-service/internal/config"
	"github.com/painradar/aggregation-service/internal/models"
)

// PostgresSink implements Sink on PostgreSQL.
type PostgresSink struct {
	db *sql.DB
}

// NewPostgresSink connects to PostgreSQL and ensures the schema exists.
func NewPostgresSink(cfg config.StorageConfig) (*PostgresSink, error) {
	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	sink := &PostgresSink{db: db}
	if err := sink.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return sink, nil
}

func (p *PostgresSink) ensureSchema() error {
	_, err := p.db.Exec(`
		CREATE TABLE IF NOT EXISTS problems (
			id               TEXT PRIMARY KEY,
			title            TEXT NOT NULL,
			body_text        TEXT NOT NULL DEFAULT '',
			url              TEXT NOT NULL DEFAULT '',
			engagement_score INTEGER NOT NULL DEFAULT 0,
			comment_count    INTEGER NOT NULL DEFAULT 0,
			created_at       BIGINT NOT NULL DEFAULT 0,
			origin_group     TEXT NOT NULL DEFAULT '',
			source_type      TEXT NOT NULL DEFAULT '',
			is_real_problem  BOOLEAN NOT NULL DEFAULT FALSE,
			category         TEXT NOT NULL DEFAULT 'general',
			confidence       DOUBLE PRECISION NOT NULL DEFAULT 0,
			reasoning        TEXT NOT NULL DEFAULT '',
			keywords         TEXT[] NOT NULL DEFAULT '{}'
		);
		CREATE INDEX IF NOT EXISTS idx_problems_category ON problems(category);
		CREATE INDEX IF NOT EXISTS idx_problems_confidence ON problems(confidence DESC);

		CREATE TABLE IF NOT EXISTS run_status (
			id                  TEXT PRIMARY KEY,
			last_successful_run TIMESTAMPTZ,
			last_attempt        TIMESTAMPTZ,
			status              TEXT NOT NULL DEFAULT 'never_run',
			error_message       TEXT NOT NULL DEFAULT '',
			items_accepted      INTEGER NOT NULL DEFAULT 0
		);
	`)
	return err
}

// InsertAccepted upserts the accepted items; re-seeing an id refreshes its
// classification and engagement fields.
func (p *PostgresSink) InsertAccepted(ctx context.Context, items []models.ClassifiedItem) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO problems (
			id, title, body_text, url, engagement_score, comment_count,
			created_at, origin_group, source_type, is_real_problem,
			category, confidence, reasoning, keywords
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			engagement_score = excluded.engagement_score,
			comment_count    = excluded.comment_count,
			is_real_problem  = excluded.is_real_problem,
			category         = excluded.category,
			confidence       = excluded.confidence,
			reasoning        = excluded.reasoning,
			keywords         = excluded.keywords
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		_, err := stmt.ExecContext(ctx,
			item.ID, item.Title, item.BodyText, item.URL, item.EngagementScore,
			item.CommentCount, item.CreatedAt, item.OriginGroup, string(item.SourceType),
			item.IsRealProblem, string(item.Category), item.Confidence, item.Reasoning,
			pq.Array(item.Keywords),
		)
		if err != nil {
			return fmt.Errorf("failed to insert item %s: %w", item.ID, err)
		}
	}
	return tx.Commit()
}

const problemColumns = `id, title, body_text, url, engagement_score, comment_count,
	created_at, origin_group, source_type, is_real_problem, category, confidence, reasoning, keywords`

// GetProblems retrieves persisted items ordered by confidence.
func (p *PostgresSink) GetProblems(ctx context.Context, limit, offset int) ([]models.ClassifiedItem, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+problemColumns+` FROM problems ORDER BY confidence DESC, id LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query problems: %w", err)
	}
	defer rows.Close()
	return scanProblems(rows)
}

// Search retrieves persisted items whose title or body contains the term.
func (p *PostgresSink) Search(ctx context.Context, term string, limit int) ([]models.ClassifiedItem, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+problemColumns+` FROM problems
		 WHERE title ILIKE $1 OR body_text ILIKE $1
		 ORDER BY confidence DESC, id LIMIT $2`,
		"%"+term+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search problems: %w", err)
	}
	defer rows.Close()
	return scanProblems(rows)
}

func scanProblems(rows *sql.Rows) ([]models.ClassifiedItem, error) {
	var items []models.ClassifiedItem
	for rows.Next() {
		var item models.ClassifiedItem
		var sourceType, category string
		var keywords pq.StringArray
		err := rows.Scan(
			&item.ID, &item.Title, &item.BodyText, &item.URL, &item.EngagementScore,
			&item.CommentCount, &item.CreatedAt, &item.OriginGroup, &sourceType,
			&item.IsRealProblem, &category, &item.Confidence, &item.Reasoning, &keywords,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan problem: %w", err)
		}
		item.SourceType = models.SourceType(sourceType)
		item.Category = models.Category(category)
		item.Keywords = []string(keywords)
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetStats summarizes the persisted items.
func (p *PostgresSink) GetStats(ctx context.Context) (*models.Stats, error) {
	stats := &models.Stats{ByCategory: make(map[string]int)}

	var avg sql.NullFloat64
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(confidence) FROM problems`).Scan(&stats.TotalItems, &avg)
	if err != nil {
		return nil, fmt.Errorf("failed to query totals: %w", err)
	}
	if avg.Valid {
		stats.AvgConfidence = avg.Float64
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT category, COUNT(*) FROM problems GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("failed to query category counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		stats.ByCategory[category] = count
	}
	return stats, rows.Err()
}

// UpdateRunStatus stores the latest background-run outcome.
func (p *PostgresSink) UpdateRunStatus(ctx context.Context, status models.RunStatus) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO run_status (id, last_successful_run, last_attempt, status, error_message, items_accepted)
		VALUES ('aggregation', $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			last_successful_run = excluded.last_successful_run,
			last_attempt        = excluded.last_attempt,
			status              = excluded.status,
			error_message       = excluded.error_message,
			items_accepted      = excluded.items_accepted
	`, status.LastSuccessfulRun, status.LastAttempt, status.Status, status.ErrorMessage, status.ItemsAccepted)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	return nil
}

// GetRunStatus retrieves the latest background-run outcome.
func (p *PostgresSink) GetRunStatus(ctx context.Context) (*models.RunStatus, error) {
	var status models.RunStatus
	err := p.db.QueryRowContext(ctx, `
		SELECT last_successful_run, last_attempt, status, error_message, items_accepted
		FROM run_status WHERE id = 'aggregation'
	`).Scan(&status.LastSuccessfulRun, &status.LastAttempt, &status.Status,
		&status.ErrorMessage, &status.ItemsAccepted)
	if err == sql.ErrNoRows {
		return &models.RunStatus{Status: "never_run"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run status: %w", err)
	}
	return &status, nil
}

// Close closes the database connection.
func (p *PostgresSink) Close() error {
	return p.db.Close()
}
