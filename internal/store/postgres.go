package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/healthreport/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()
	return scanAPIKeys(rows)
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.UserID, key.Name, key.KeyHash, key.KeyPrefix, nonNil(key.Scopes), key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE user_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()
	return scanAPIKeys(rows)
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`, id, userID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

// --- Assessments ---

// sourceTable describes where one variant lives. The upstream tables use
// different column names for the same concepts.
type sourceTable struct {
	table          string
	classification string
	urgency        string
	summary        string
	completedOnly  bool
}

var sourceTables = map[models.Variant]sourceTable{
	models.VariantQuickScan:         {table: "quick_scans", classification: "body_part", urgency: "urgency_level", summary: "summary"},
	models.VariantDeepDive:          {table: "deep_dive_sessions", classification: "body_part", urgency: "urgency_level", summary: "summary", completedOnly: true},
	models.VariantFlashAssessment:   {table: "flash_assessments", classification: "main_concern", urgency: "urgency", summary: "suggested_action"},
	models.VariantGeneralAssessment: {table: "general_assessments", classification: "category", urgency: "urgency_level", summary: "summary"},
	models.VariantGeneralDeepDive:   {table: "general_deepdive_sessions", classification: "category", urgency: "urgency_level", summary: "summary", completedOnly: true},
}

func (s *PostgresStore) ListAssessments(ctx context.Context, filter AssessmentFilter) ([]*models.AssessmentRecord, error) {
	src, ok := sourceTables[filter.Variant]
	if !ok {
		return nil, fmt.Errorf("list assessments: unknown variant %q", filter.Variant)
	}

	conditions := []string{"user_id = $1"}
	args := []any{filter.UserID}
	argIdx := 2

	if src.completedOnly {
		conditions = append(conditions, "status = 'completed'")
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, filter.Since)
		argIdx++
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	args = append(args, limit)

	query := fmt.Sprintf(
		`SELECT id, user_id, created_at, %s, %s, %s FROM %s WHERE %s ORDER BY created_at DESC LIMIT $%d`,
		src.classification, src.urgency, src.summary, src.table,
		strings.Join(conditions, " AND "), argIdx)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", src.table, err)
	}
	defer rows.Close()

	records := []*models.AssessmentRecord{}
	for rows.Next() {
		var (
			r       models.AssessmentRecord
			urgency string
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.CreatedAt, &r.Classification, &urgency, &r.Summary); err != nil {
			return nil, fmt.Errorf("scan %s: %w", src.table, err)
		}
		r.Variant = filter.Variant
		r.Urgency = models.ParseUrgency(urgency)
		records = append(records, &r)
	}
	return records, rows.Err()
}

// --- Analysis Records ---

const analysisColumns = `id, user_id, created_at, purpose, recommended_type, confidence, report_config,
	quick_scan_ids, deep_dive_ids, flash_assessment_ids, general_assessment_ids, general_deep_dive_ids`

func (s *PostgresStore) CreateAnalysisRecord(ctx context.Context, rec *models.AnalysisRecord) error {
	cfg, err := json.Marshal(rec.ReportConfig)
	if err != nil {
		return fmt.Errorf("encode report config: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO report_analyses (`+analysisColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.ID, rec.UserID, rec.CreatedAt, rec.Purpose, string(rec.RecommendedType), rec.Confidence, cfg,
		nonNil(rec.QuickScanIDs), nonNil(rec.DeepDiveIDs), nonNil(rec.FlashAssessmentIDs),
		nonNil(rec.GeneralAssessmentIDs), nonNil(rec.GeneralDeepDiveIDs))
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create analysis record: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAnalysisRecord(ctx context.Context, id uuid.UUID) (*models.AnalysisRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+analysisColumns+` FROM report_analyses WHERE id = $1`, id)
	rec, err := scanAnalysisRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListAnalysisRecords(ctx context.Context, userID uuid.UUID, limit int) ([]*models.AnalysisRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+analysisColumns+` FROM report_analyses WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list analysis records: %w", err)
	}
	defer rows.Close()

	records := []*models.AnalysisRecord{}
	for rows.Next() {
		rec, err := scanAnalysisRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanAnalysisRecord(row pgx.Row) (*models.AnalysisRecord, error) {
	var (
		r       models.AnalysisRecord
		recType string
		cfg     []byte
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.CreatedAt, &r.Purpose, &recType, &r.Confidence, &cfg,
		&r.QuickScanIDs, &r.DeepDiveIDs, &r.FlashAssessmentIDs,
		&r.GeneralAssessmentIDs, &r.GeneralDeepDiveIDs); err != nil {
		return nil, err
	}
	r.RecommendedType = models.ReportType(recType)
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &r.ReportConfig); err != nil {
			return nil, fmt.Errorf("decode report config: %w", err)
		}
	}
	return &r, nil
}

// nonNil keeps NOT NULL array columns from receiving a NULL.
func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
