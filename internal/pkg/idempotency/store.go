// Package idempotency deduplicates client writes by Idempotency-Key and
// replays the first response byte for byte.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/app/models"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/app/repository"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/logger"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/metrics"
)

type Outcome string

const (
	OutcomeNew      Outcome = "NEW"
	OutcomeReplay   Outcome = "REPLAY"
	OutcomeConflict Outcome = "CONFLICT"
)

type ConflictReason string

const (
	ReasonHashMismatch ConflictReason = "hash_mismatch"
	ReasonInProgress   ConflictReason = "in_progress"
)

// ErrAlreadyCompleted is returned by SaveResponse when the claim no longer
// belongs to the caller or a snapshot was already written.
var ErrAlreadyCompleted = errors.New("idempotency record already completed")

const maxClaimRounds = 20

// Claim is the result of claiming a key.
type Claim struct {
	Outcome Outcome
	Reason  ConflictReason
	Record  *models.IdempotencyRecord
}

type Options struct {
	// TTL is how long a key is remembered.
	TTL time.Duration
	// Lease is how long an OPEN claim is reserved for its executor.
	Lease time.Duration
	// Wait bounds how long a concurrent duplicate waits for the snapshot.
	Wait time.Duration
	// PollInterval is the re-read period while waiting.
	PollInterval time.Duration
	Now          func() time.Time
}

func DefaultOptions() Options {
	return Options{
		TTL:          24 * time.Hour,
		Lease:        30 * time.Second,
		Wait:         5 * time.Second,
		PollInterval: 50 * time.Millisecond,
	}
}

// Store implements claim, replay and conflict on top of the repository's
// insert-if-absent primitive, so the guarantee holds across instances.
type Store struct {
	repo repository.IdempotencyRepository
	opts Options
}

func NewStore(repo repository.IdempotencyRepository, opts Options) *Store {
	def := DefaultOptions()
	if opts.TTL <= 0 {
		opts.TTL = def.TTL
	}
	if opts.Lease <= 0 {
		opts.Lease = def.Lease
	}
	if opts.Wait < 0 {
		opts.Wait = 0
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Store{repo: repo, opts: opts}
}

// Claim reserves key for the caller or reports how an earlier claim answers.
//
//   - no record: insert OPEN, NEW
//   - record with a snapshot: REPLAY, whatever the hash
//   - OPEN record with another hash: CONFLICT
//   - OPEN record whose lease expired: take it over, NEW
//   - OPEN record still leased: wait for its snapshot (REPLAY) or give up
//     after Wait (CONFLICT, in progress)
func (s *Store) Claim(ctx context.Context, key, method, path, requestHash string) (*Claim, error) {
	deadline := s.opts.Now().Add(s.opts.Wait)

	for round := 0; round < maxClaimRounds; {
		now := s.opts.Now()
		lockedUntil := now.Add(s.opts.Lease)
		expiresAt := now.Add(s.opts.TTL)
		rec := &models.IdempotencyRecord{
			Key:         key,
			RequestHash: requestHash,
			Method:      method,
			Path:        path,
			Status:      models.IdempotencyStatusOpen,
			LockedUntil: &lockedUntil,
			ExpiresAt:   &expiresAt,
		}

		inserted, err := s.repo.Insert(ctx, rec)
		if err != nil {
			return nil, fmt.Errorf("claim idempotency key: %w", err)
		}
		if inserted {
			return s.result(ctx, OutcomeNew, "", rec), nil
		}

		existing, err := s.repo.Get(ctx, key)
		if errors.Is(err, repository.ErrNotFound) {
			round++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load idempotency key: %w", err)
		}

		if existing.IsExpired(now) {
			if _, err := s.repo.DeleteExpiredKey(ctx, key, now); err != nil {
				return nil, fmt.Errorf("expire idempotency key: %w", err)
			}
			round++
			continue
		}

		if existing.HasSnapshot() {
			return s.result(ctx, OutcomeReplay, "", existing), nil
		}

		if existing.RequestHash != requestHash {
			return s.result(ctx, OutcomeConflict, ReasonHashMismatch, existing), nil
		}

		if !existing.LeaseActive(now) {
			err := s.repo.TakeOver(ctx, existing, lockedUntil)
			if err == nil {
				logger.Warnf(ctx, "[Idempotency] Took over abandoned claim for key %s", key)
				return s.result(ctx, OutcomeNew, "", existing), nil
			}
			if !errors.Is(err, repository.ErrVersionConflict) {
				return nil, fmt.Errorf("take over idempotency key: %w", err)
			}
			round++
			continue
		}

		if !now.Before(deadline) {
			return s.result(ctx, OutcomeConflict, ReasonInProgress, existing), nil
		}

		wait := s.opts.PollInterval
		if remaining := deadline.Sub(now); remaining < wait {
			wait = remaining
		}
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("claim idempotency key %s: too much contention", key)
}

func (s *Store) result(ctx context.Context, outcome Outcome, reason ConflictReason, rec *models.IdempotencyRecord) *Claim {
	metrics.IdempotencyClaims.WithLabelValues(string(outcome)).Inc()
	if outcome == OutcomeConflict {
		logger.Infof(ctx, "[Idempotency] Key %s conflict (%s)", rec.Key, reason)
	}
	return &Claim{Outcome: outcome, Reason: reason, Record: rec}
}

// SaveResponse writes the snapshot once. It never overwrites an existing
// snapshot.
func (s *Store) SaveResponse(ctx context.Context, rec *models.IdempotencyRecord, status int, headers map[string][]string, body []byte) error {
	snapshot := repository.Snapshot{Status: status, Headers: headers, Body: body}
	err := s.repo.Complete(ctx, rec, snapshot, s.opts.Now())
	if errors.Is(err, repository.ErrVersionConflict) {
		return ErrAlreadyCompleted
	}
	return err
}

// Release drops an OPEN claim that produced nothing worth replaying, so the
// client may retry with the same key.
func (s *Store) Release(ctx context.Context, rec *models.IdempotencyRecord) error {
	return s.repo.DeleteOpen(ctx, rec)
}

// PurgeExpired removes every record past its expiry.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.opts.Now())
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
