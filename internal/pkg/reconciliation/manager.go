// Package reconciliation runs the periodic background passes: renewing due
// subscriptions and purging expired idempotency keys.
package reconciliation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/cache"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/correlation"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/logger"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/metrics"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/subscriptions"
)

// LockKey serializes renewal passes across instances.
const LockKey = "reconciliation:lock"

// ErrPassInProgress is returned by RunOnce when another pass holds the lock.
var ErrPassInProgress = errors.New("reconciliation pass already in progress")

// Renewer renews the subscriptions due at now.
type Renewer interface {
	RenewDue(ctx context.Context, now time.Time) (subscriptions.Report, error)
}

// Purger deletes expired idempotency keys.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

type Options struct {
	Interval      time.Duration
	PurgeInterval time.Duration
	// LockTTL bounds how long a crashed pass can block the others.
	LockTTL time.Duration
	Now     func() time.Time
}

// Manager owns the background tickers.
type Manager struct {
	renewer Renewer
	purger  Purger
	rdb     redis.UniversalClient
	opts    Options

	renewTicker *time.Ticker
	purgeTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool

	// passMu keeps passes in this process from overlapping
	passMu sync.Mutex
}

// NewManager wires the manager. purger and rdb may be nil; without rdb the
// renewal pass relies on the version checks alone.
func NewManager(renewer Renewer, purger Purger, rdb redis.UniversalClient, opts Options) *Manager {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.PurgeInterval <= 0 {
		opts.PurgeInterval = time.Hour
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Manager{
		renewer: renewer,
		purger:  purger,
		rdb:     rdb,
		opts:    opts,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	m.stopCh = make(chan struct{})
	m.running = true
	log.Infof("[Reconciliation] Starting (renew every %s, purge every %s)", m.opts.Interval, m.opts.PurgeInterval)

	m.renewTicker = time.NewTicker(m.opts.Interval)
	m.wg.Add(1)
	go m.renewWorker(m.stopCh)

	if m.purger != nil {
		m.purgeTicker = time.NewTicker(m.opts.PurgeInterval)
		m.wg.Add(1)
		go m.purgeWorker(m.stopCh)
	}
}

// Stop signals the workers and waits for an in-flight pass to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[Reconciliation] Stopping...")
	if m.renewTicker != nil {
		m.renewTicker.Stop()
	}
	if m.purgeTicker != nil {
		m.purgeTicker.Stop()
	}

	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	log.Info("[Reconciliation] Stopped")
}

func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) renewWorker(stopCh <-chan struct{}) {
	defer m.wg.Done()

	for {
		select {
		case <-stopCh:
			return
		case <-m.renewTicker.C:
			ctx, cancel := m.passContext(stopCh)
			if _, err := m.RunOnce(ctx); err != nil && !errors.Is(err, ErrPassInProgress) {
				logger.Errorf(ctx, "[Reconciliation] Pass failed: %v", err)
			}
			cancel()
		}
	}
}

func (m *Manager) purgeWorker(stopCh <-chan struct{}) {
	defer m.wg.Done()

	for {
		select {
		case <-stopCh:
			return
		case <-m.purgeTicker.C:
			ctx, cancel := m.passContext(stopCh)
			n, err := m.purger.PurgeExpired(ctx)
			if err != nil {
				logger.Errorf(ctx, "[Reconciliation] Idempotency purge failed: %v", err)
			} else if n > 0 {
				logger.Infof(ctx, "[Reconciliation] Purged %d expired idempotency keys", n)
			}
			cancel()
		}
	}
}

// passContext is cancelled on Stop so a long pass ends between items.
func (m *Manager) passContext(stopCh <-chan struct{}) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ctx, _ = correlation.Ensure(ctx)
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// RunOnce performs one renewal pass now. It is what each tick runs and what
// the admin endpoint and payctl trigger.
func (m *Manager) RunOnce(ctx context.Context) (subscriptions.Report, error) {
	ctx, _ = correlation.Ensure(ctx)

	if !m.passMu.TryLock() {
		return subscriptions.Report{}, ErrPassInProgress
	}
	defer m.passMu.Unlock()

	if m.rdb != nil {
		lock, ok, err := cache.TryLock(ctx, m.rdb, LockKey, m.opts.LockTTL)
		switch {
		case err != nil:
			logger.Warnf(ctx, "[Reconciliation] Lock unavailable, running unlocked: %v", err)
		case !ok:
			logger.Debugf(ctx, "[Reconciliation] Another instance holds the pass lock, skipping")
			return subscriptions.Report{}, ErrPassInProgress
		default:
			defer func() {
				if err := lock.Release(context.Background()); err != nil {
					logger.Warnf(ctx, "[Reconciliation] Could not release pass lock: %v", err)
				}
			}()
		}
	}

	start := time.Now()
	report, err := m.renewer.RenewDue(ctx, m.opts.Now())
	metrics.ReconciliationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return report, err
	}

	if report.Due > 0 {
		logger.Infof(ctx, "[Reconciliation] Pass done: due=%d renewed=%d skipped=%d failed=%d",
			report.Due, report.Renewed, report.Skipped, report.Failed)
	}
	return report, nil
}
