package repository

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/app/models"
)

type idempotencyRepository struct {
	db *gorm.DB
}

// NewIdempotencyRepository creates a new idempotency repository instance
func NewIdempotencyRepository(db *gorm.DB) IdempotencyRepository {
	return &idempotencyRepository{db: db}
}

// Insert relies on the primary key on idempotency_key, so concurrent callers
// on any instance see exactly one winner.
func (r *idempotencyRepository) Insert(ctx context.Context, rec *models.IdempotencyRecord) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rec)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *idempotencyRepository) Get(ctx context.Context, key string) (*models.IdempotencyRecord, error) {
	var rec models.IdempotencyRecord
	if err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&rec).Error; err != nil {
		return nil, translate(err)
	}
	return &rec, nil
}

// TakeOver re-leases an OPEN record whose previous executor went away.
func (r *idempotencyRepository) TakeOver(ctx context.Context, rec *models.IdempotencyRecord, lockedUntil time.Time) error {
	err := casUpdate(ctx, r.db, &models.IdempotencyRecord{}, map[string]interface{}{
		"locked_until": lockedUntil,
		"version":      gorm.Expr("version + 1"),
		"updated_at":   time.Now().UTC(),
	}, "idempotency_key = ? AND version = ? AND status = ?", rec.Key, rec.Version, models.IdempotencyStatusOpen)
	if err != nil {
		return err
	}
	rec.LockedUntil = &lockedUntil
	rec.Version++
	return nil
}

// Complete stores the snapshot once. A record that is no longer OPEN at the
// caller's version yields ErrVersionConflict and is left untouched.
func (r *idempotencyRepository) Complete(ctx context.Context, rec *models.IdempotencyRecord, snapshot Snapshot, completedAt time.Time) error {
	headers := datatypes.NewJSONType(snapshot.Headers)
	err := casUpdate(ctx, r.db, &models.IdempotencyRecord{}, map[string]interface{}{
		"status":           models.IdempotencyStatusCompleted,
		"response_status":  snapshot.Status,
		"response_headers": headers,
		"response_body":    snapshot.Body,
		"completed_at":     completedAt,
		"locked_until":     nil,
		"version":          gorm.Expr("version + 1"),
		"updated_at":       completedAt,
	}, "idempotency_key = ? AND version = ? AND status = ?", rec.Key, rec.Version, models.IdempotencyStatusOpen)
	if err != nil {
		return err
	}
	rec.Status = models.IdempotencyStatusCompleted
	rec.ResponseStatus = snapshot.Status
	rec.ResponseHeaders = headers
	rec.ResponseBody = snapshot.Body
	rec.CompletedAt = &completedAt
	rec.LockedUntil = nil
	rec.Version++
	return nil
}

// DeleteOpen removes a claim that produced no snapshot so the key can be
// reused.
func (r *idempotencyRepository) DeleteOpen(ctx context.Context, rec *models.IdempotencyRecord) error {
	return r.db.WithContext(ctx).
		Where("idempotency_key = ? AND version = ? AND status = ?", rec.Key, rec.Version, models.IdempotencyStatusOpen).
		Delete(&models.IdempotencyRecord{}).Error
}

func (r *idempotencyRepository) DeleteExpiredKey(ctx context.Context, key string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("idempotency_key = ? AND expires_at IS NOT NULL AND expires_at <= ?", key, now).
		Delete(&models.IdempotencyRecord{})
	return res.RowsAffected > 0, res.Error
}

func (r *idempotencyRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Delete(&models.IdempotencyRecord{})
	return res.RowsAffected, res.Error
}
