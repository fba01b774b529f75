package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/opsignal/k8s-insight/pkg/models"
)

//go:embed migrations/*.sql
var postgresFS embed.FS

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool and runs migrations.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) migrate() error {
	schema, err := postgresFS.ReadFile("migrations/001_postgres_schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// SaveRecommendation upserts a recommendation, refreshing last_seen_at
// when the id already exists.
func (s *PostgresStore) SaveRecommendation(ctx context.Context, rec *models.Recommendation) error {
	query := `
		INSERT INTO recommendations (
			id, title, description, category, annual_savings_usd,
			priority, affected_resources, implemented
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			annual_savings_usd = EXCLUDED.annual_savings_usd,
			priority = EXCLUDED.priority,
			affected_resources = EXCLUDED.affected_resources,
			implemented = EXCLUDED.implemented,
			last_seen_at = NOW()
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.Title, rec.Description, rec.Category, rec.EstimatedAnnualSavings,
		rec.Priority, strings.Join(rec.AffectedResources, ","), rec.Implemented,
	)
	return err
}

// ListRecommendations returns the most recently seen recommendations.
func (s *PostgresStore) ListRecommendations(ctx context.Context, limit int) ([]*models.Recommendation, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, title, description, category, annual_savings_usd,
			priority, affected_resources, implemented
		FROM recommendations
		ORDER BY last_seen_at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.Recommendation
	for rows.Next() {
		var rec models.Recommendation
		var affected string
		if err := rows.Scan(
			&rec.ID, &rec.Title, &rec.Description, &rec.Category, &rec.EstimatedAnnualSavings,
			&rec.Priority, &affected, &rec.Implemented,
		); err != nil {
			return nil, err
		}
		if affected != "" {
			rec.AffectedResources = strings.Split(affected, ",")
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

// LogAction records an implement/dismiss action.
func (s *PostgresStore) LogAction(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = time.Now()
	}
	query := `
		INSERT INTO audit_log (id, recommendation_id, action, executed_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.RecommendationID, entry.Action, entry.ExecutedAt,
	)
	return err
}

// GetAuditLog returns actions for one recommendation, newest first.
func (s *PostgresStore) GetAuditLog(ctx context.Context, recommendationID string) ([]*models.AuditEntry, error) {
	query := `
		SELECT id, recommendation_id, action, executed_at
		FROM audit_log
		WHERE recommendation_id = $1
		ORDER BY executed_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, recommendationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		var entry models.AuditEntry
		if err := rows.Scan(&entry.ID, &entry.RecommendationID, &entry.Action, &entry.ExecutedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
