package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/healthreport/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error

	ListAssessments(ctx context.Context, filter AssessmentFilter) ([]*models.AssessmentRecord, error)

	// CreateAnalysisRecord performs exactly one insert. Records are never updated.
	CreateAnalysisRecord(ctx context.Context, rec *models.AnalysisRecord) error
	GetAnalysisRecord(ctx context.Context, id uuid.UUID) (*models.AnalysisRecord, error)
	ListAnalysisRecords(ctx context.Context, userID uuid.UUID, limit int) ([]*models.AnalysisRecord, error)
}

type AssessmentFilter struct {
	UserID  uuid.UUID
	Variant models.Variant
	Since   time.Time
	Limit   int
}
