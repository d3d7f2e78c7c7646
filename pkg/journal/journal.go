// Package journal persists the outcome of every artifact transfer so that
// jobs can be audited after the fact.
package journal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethpandaops/fuzzsync/pkg/config"
	"github.com/ethpandaops/fuzzsync/pkg/deployment"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store persists transfer records.
type Store interface {
	deployment.Observer

	Start(ctx context.Context) error
	Stop() error

	// JobID identifies the records written by this process.
	JobID() string

	Record(ctx context.Context, t *Transfer) error
	ListTransfers(ctx context.Context, filter Filter) ([]Transfer, error)
	Summarize(ctx context.Context, jobID string) ([]OutcomeCount, error)
}

// Filter narrows ListTransfers. Zero fields match everything.
type Filter struct {
	JobID     string
	Operation string
	Outcome   string
	Limit     int
}

// OutcomeCount is the number of transfers of one operation with one
// outcome.
type OutcomeCount struct {
	Operation string
	Outcome   string
	Count     int64
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log   logrus.FieldLogger
	cfg   *config.JournalConfig
	jobID string
	db    *gorm.DB

	// writeMu serializes inserts; sqlite rejects concurrent writers with
	// SQLITE_BUSY.
	writeMu sync.Mutex
}

// NewStore creates a journal Store backed by the configured database
// driver. An empty jobID is replaced by a random one.
func NewStore(log logrus.FieldLogger, cfg *config.JournalConfig, jobID string) Store {
	if jobID == "" {
		jobID = uuid.NewString()
	}

	return &store{
		log:   log.WithField("component", "journal"),
		cfg:   cfg,
		jobID: jobID,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return fmt.Errorf("opening journal database: %w", err)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(&Transfer{}); err != nil {
		return fmt.Errorf("running journal migrations: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"driver": s.cfg.Driver,
		"job_id": s.jobID,
	}).Info("Journal database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

func (s *store) JobID() string {
	return s.jobID
}

// Record inserts a transfer. JobID and CreatedAt are filled when unset.
// Concurrent calls are serialized.
func (s *store) Record(ctx context.Context, t *Transfer) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if t.JobID == "" {
		t.JobID = s.jobID
	}

	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("recording transfer: %w", err)
	}

	return nil
}

// Observe records a deployment result. Journal failures never affect the
// job and are only logged.
func (s *store) Observe(ctx context.Context, res deployment.Result) {
	if s.db == nil {
		return
	}

	if err := s.Record(ctx, FromResult(res)); err != nil {
		s.log.WithError(err).WithField("op", res.Op).Warn("Failed to journal transfer")
	}
}

// ListTransfers returns matching transfers, newest first.
func (s *store) ListTransfers(ctx context.Context, filter Filter) ([]Transfer, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC")

	if filter.JobID != "" {
		q = q.Where("job_id = ?", filter.JobID)
	}

	if filter.Operation != "" {
		q = q.Where("operation = ?", filter.Operation)
	}

	if filter.Outcome != "" {
		q = q.Where("outcome = ?", filter.Outcome)
	}

	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var transfers []Transfer
	if err := q.Find(&transfers).Error; err != nil {
		return nil, fmt.Errorf("listing transfers: %w", err)
	}

	return transfers, nil
}

// Summarize counts the transfers of a job per operation and outcome.
func (s *store) Summarize(ctx context.Context, jobID string) ([]OutcomeCount, error) {
	var counts []OutcomeCount

	if err := s.db.WithContext(ctx).
		Model(&Transfer{}).
		Select("operation, outcome, COUNT(*) AS count").
		Where("job_id = ?", jobID).
		Group("operation, outcome").
		Order("operation, outcome").
		Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("summarizing job %s: %w", jobID, err)
	}

	return counts, nil
}
