package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	SweepModePrimary  = "primary"
	SweepModeFallback = "fallback"
)

type SweepResult struct {
	Mode       string
	Scanned    int
	Expired    int
	Skipped    int
	Failed     int
	StartedAt  time.Time
	FinishedAt time.Time
}

func (r SweepResult) add(other SweepResult) SweepResult {
	r.Scanned += other.Scanned
	r.Expired += other.Expired
	r.Skipped += other.Skipped
	r.Failed += other.Failed
	return r
}

type SweeperOption func(*Sweeper)

func WithSweeperConfig(cfg SweeperConfig) SweeperOption {
	return func(s *Sweeper) {
		s.config = cfg
	}
}

func WithSweeperClock(clock Clock) SweeperOption {
	return func(s *Sweeper) {
		if clock != nil {
			s.now = clock
		}
	}
}

func WithStaleReservationLister(lister StaleReservationLister) SweeperOption {
	return func(s *Sweeper) {
		s.staleLister = lister
	}
}

// Sweeper reclaims stock held by reservations that outlived their TTL. The
// primary pass runs often over a bounded batch; the fallback pass runs rarely
// and pages through every stale row. Both expire through the service so each
// status change is paired with its ledger row.
type Sweeper struct {
	observer
	service     *Service
	staleLister StaleReservationLister
	config      SweeperConfig
	now         Clock

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func NewSweeper(service *Service, opts ...SweeperOption) (*Sweeper, error) {
	if service == nil || service.store == nil {
		return nil, fmt.Errorf("core: sweeper requires a configured service")
	}
	sweeper := &Sweeper{
		observer: service.observer,
		service:  service,
		config:   service.config.Sweeper,
		now:      service.clock,
	}
	if lister, ok := service.store.(StaleReservationLister); ok {
		sweeper.staleLister = lister
	}
	for _, opt := range opts {
		if opt != nil {
			opt(sweeper)
		}
	}
	if sweeper.now == nil {
		sweeper.now = defaultClock
	}
	defaults := DefaultConfig().Sweeper
	if sweeper.config.Interval <= 0 {
		sweeper.config.Interval = defaults.Interval
	}
	if sweeper.config.FallbackInterval <= 0 {
		sweeper.config.FallbackInterval = defaults.FallbackInterval
	}
	if sweeper.config.BatchSize <= 0 {
		sweeper.config.BatchSize = defaults.BatchSize
	}
	if sweeper.config.FallbackGrace < 0 {
		sweeper.config.FallbackGrace = 0
	}
	return sweeper, nil
}

func (s *Sweeper) Config() SweeperConfig {
	if s == nil {
		return SweeperConfig{}
	}
	return s.config
}

// SweepExpired is the primary pass: one batch of ACTIVE reservations whose
// expiry is already in the past.
func (s *Sweeper) SweepExpired(ctx context.Context) (result SweepResult, err error) {
	if s == nil || s.service == nil {
		return SweepResult{}, fmt.Errorf("core: sweeper is not configured")
	}
	result = SweepResult{Mode: SweepModePrimary, StartedAt: s.now().UTC()}
	defer func() {
		result.FinishedAt = s.now().UTC()
		s.observeSweep(ctx, result, err)
	}()

	candidates, err := s.service.store.ListExpiredReservations(ctx, result.StartedAt, s.config.BatchSize)
	if err != nil {
		return result, err
	}
	page, err := s.expireAll(ctx, candidates)
	result = result.add(page.result)
	return result, err
}

// SweepStale is the fallback pass over every reservation that stayed ACTIVE
// longer than the grace period past its expiry.
func (s *Sweeper) SweepStale(ctx context.Context) (result SweepResult, err error) {
	if s == nil || s.service == nil {
		return SweepResult{}, fmt.Errorf("core: sweeper is not configured")
	}
	result = SweepResult{Mode: SweepModeFallback, StartedAt: s.now().UTC()}
	defer func() {
		result.FinishedAt = s.now().UTC()
		s.observeSweep(ctx, result, err)
	}()

	cutoff := result.StartedAt.Add(-s.config.FallbackGrace)
	limit := s.config.BatchSize
	offset := 0
	var sweepErr error
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, errors.Join(sweepErr, ctxErr)
		}
		var candidates []Reservation
		if s.staleLister != nil {
			candidates, err = s.staleLister.ListStaleReservations(ctx, cutoff, PageRequest{Limit: limit, Offset: offset})
		} else {
			candidates, err = s.service.store.ListExpiredReservations(ctx, cutoff, limit)
		}
		if err != nil {
			return result, errors.Join(sweepErr, err)
		}
		if len(candidates) == 0 {
			break
		}
		page, pageErr := s.expireAll(ctx, candidates)
		result = result.add(page.result)
		sweepErr = errors.Join(sweepErr, pageErr)

		// Expired rows drop out of the listing; only rows still ACTIVE move the window.
		if s.staleLister == nil && page.stillActive > 0 {
			break
		}
		offset += page.stillActive
		if len(candidates) < limit {
			break
		}
	}
	return result, sweepErr
}

type sweepPage struct {
	result      SweepResult
	stillActive int
}

func (s *Sweeper) expireAll(ctx context.Context, candidates []Reservation) (sweepPage, error) {
	page := sweepPage{}
	var sweepErr error
	for _, candidate := range candidates {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return page, errors.Join(sweepErr, ctxErr)
		}
		page.result.Scanned++
		reservation, expired, err := s.service.expire(ctx, candidate.TenantID, candidate.ID, PerformedBySweeper)
		switch {
		case expired && errors.Is(err, ErrCacheInvalidation):
			page.result.Expired++
			sweepErr = errors.Join(sweepErr, fmt.Errorf("core: expire reservation %q: %w", candidate.ID, err))
		case err != nil:
			page.result.Failed++
			page.stillActive++
			sweepErr = errors.Join(sweepErr, fmt.Errorf("core: expire reservation %q: %w", candidate.ID, err))
		case expired:
			page.result.Expired++
		default:
			page.result.Skipped++
			if reservation.Status == ReservationStatusActive {
				page.stillActive++
			}
		}
	}
	return page, sweepErr
}

func (s *Sweeper) observeSweep(ctx context.Context, result SweepResult, err error) {
	tags := map[string]string{"mode": result.Mode}
	s.recordCounter(ctx, metricName("sweep", "expired"), int64(result.Expired), tags)
	s.recordCounter(ctx, metricName("sweep", "skipped"), int64(result.Skipped), tags)
	s.recordCounter(ctx, metricName("sweep", "failed"), int64(result.Failed), tags)
	s.observeOperation(ctx, result.StartedAt, "sweep", err, map[string]any{
		"mode":    result.Mode,
		"scanned": result.Scanned,
		"expired": result.Expired,
		"skipped": result.Skipped,
		"failed":  result.Failed,
	})
}

// Start launches the primary and fallback passes on their own tickers. Pass
// failures are logged and counted; they never stop the loops.
func (s *Sweeper) Start(ctx context.Context) error {
	if s == nil || s.service == nil {
		return fmt.Errorf("core: sweeper is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("core: sweeper already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.wg.Add(2)
	go s.loop(runCtx, s.config.Interval, s.SweepExpired)
	go s.loop(runCtx, s.config.FallbackInterval, s.SweepStale)
	return nil
}

// Stop cancels both loops and waits for in-flight passes to return.
func (s *Sweeper) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.running = false
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) Running() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sweeper) loop(ctx context.Context, interval time.Duration, pass func(context.Context) (SweepResult, error)) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Errors are already logged by observeSweep.
			_, _ = pass(ctx)
		}
	}
}
