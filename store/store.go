// Package store is the JobStore: the persisted record of every observed
// activity and its processing outcome, backed by PostgreSQL via GORM.
package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/digirati-co-uk/iiif-builder/config"
)

// Job is the persisted record of one activity's processing. Exactly one of
// Finished/ErrorMessage is set once the job leaves the pipeline.
type Job struct {
	ID                        uint       `gorm:"column:id;primaryKey"`
	ActivityEndTime           time.Time  `gorm:"column:activity_end_time;not null"`
	ArchivalGroupURI          string     `gorm:"column:archival_group_uri;not null"`
	ActivityType              string     `gorm:"column:activity_type;not null"`
	IDServicePID              string     `gorm:"column:id_service_pid"`
	CatalogueAPIURI           string     `gorm:"column:catalogue_api_uri"`
	PublicManifestURI         string     `gorm:"column:public_manifest_uri"`
	InternalPublicManifestURI string     `gorm:"column:internal_public_manifest_uri"`
	InternalAPIManifestURI    string     `gorm:"column:internal_api_manifest_uri"`
	Started                   time.Time  `gorm:"column:started;not null"`
	Finished                  *time.Time `gorm:"column:finished"`
	ErrorMessage              string     `gorm:"column:error_message"`
}

// TableName pins the GORM model to the job ledger's schema name, rather
// than the pluralized default GORM would infer.
func (Job) TableName() string { return "archival_group_activity" }

// JobStore is the only source of truth for the watermark; callers must not
// cache activity_end_time across poll iterations.
type JobStore struct {
	db     *gorm.DB
	cutoff config.CutoffPolicy
}

// Open connects to Postgres and configures the connection pool, following
// bounded idle/open connections and a capped lifetime, since GORM calls
// here are short-lived, one-statement transactions.
func Open(dsn string, cutoff config.CutoffPolicy) (*JobStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("obtaining sql.DB handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &JobStore{db: db, cutoff: cutoff}, nil
}

// NewWithDB wraps an already-open *gorm.DB as a JobStore, bypassing Open's
// dial/pool-tuning step. Used to attach a test double (sqlmock) or a
// connection pool managed elsewhere in the process.
func NewWithDB(db *gorm.DB, cutoff config.CutoffPolicy) *JobStore {
	return &JobStore{db: db, cutoff: cutoff}
}

// Migrate ensures the archival_group_activity table exists with the
// expected columns.
func (s *JobStore) Migrate() error {
	return s.db.AutoMigrate(&Job{})
}

// LatestEndTime returns the maximum activity_end_time ever stored, or the
// configured cutoff floor when the store is empty.
func (s *JobStore) LatestEndTime(ctx context.Context) (time.Time, error) {
	var max *time.Time
	err := s.db.WithContext(ctx).Model(&Job{}).Select("max(activity_end_time)").Scan(&max).Error
	if err != nil {
		return time.Time{}, fmt.Errorf("querying latest end time: %w", err)
	}
	if max != nil {
		return *max, nil
	}

	if s.cutoff.UseNow {
		return time.Now().UTC(), nil
	}
	return s.cutoff.Fixed, nil
}

// NewActivity inserts a row for a newly observed activity and returns the
// populated Job, with Started set by the store.
func (s *JobStore) NewActivity(ctx context.Context, endTime time.Time, agURI, activityType string) (*Job, error) {
	job := &Job{
		ActivityEndTime:  endTime,
		ArchivalGroupURI: agURI,
		ActivityType:     activityType,
		Started:          time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("inserting activity row: %w", err)
	}
	return job, nil
}

// Save persists the mutable post-insertion fields of job (identity
// resolution results, terminal finished/error_message).
func (s *JobStore) Save(ctx context.Context, job *Job) error {
	err := s.db.WithContext(ctx).Model(&Job{}).Where("id = ?", job.ID).Updates(map[string]interface{}{
		"id_service_pid":               job.IDServicePID,
		"catalogue_api_uri":            job.CatalogueAPIURI,
		"public_manifest_uri":          job.PublicManifestURI,
		"internal_public_manifest_uri": job.InternalPublicManifestURI,
		"internal_api_manifest_uri":    job.InternalAPIManifestURI,
		"finished":                     job.Finished,
		"error_message":                job.ErrorMessage,
	}).Error
	if err != nil {
		return fmt.Errorf("saving job %d: %w", job.ID, err)
	}
	return nil
}
