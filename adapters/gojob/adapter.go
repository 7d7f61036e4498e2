package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	inventorycommand "github.com/goliatone/go-inventory/command"
	"github.com/goliatone/go-inventory/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDSweepExpired = "inventory.reservations.sweep"
	JobIDSweepStale   = "inventory.reservations.sweep_fallback"

	sweepScriptPath  = "inventory.reservations.sweep"
	sweepDedupPolicy = "drop"
	paramMode        = "mode"
)

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	RetryDelay      time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation. Once
// MaxAttempts is reached the message is never requeued.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		// Exhausted: dead-letter when configured, otherwise drop.
		out.Requeue = false
		out.DeadLetter = p.DeadLetterOnMax || out.DeadLetter
		return out
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// JobIDForMode maps a sweep mode onto its queue job id.
func JobIDForMode(mode string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", inventorycommand.SweepModePrimary:
		return JobIDSweepExpired, nil
	case inventorycommand.SweepModeFallback:
		return JobIDSweepStale, nil
	default:
		return "", fmt.Errorf("gojob: unsupported sweep mode %q", mode)
	}
}

// ModeForJobID is the inverse of JobIDForMode.
func ModeForJobID(jobID string) (string, error) {
	switch strings.TrimSpace(jobID) {
	case JobIDSweepExpired:
		return inventorycommand.SweepModePrimary, nil
	case JobIDSweepStale:
		return inventorycommand.SweepModeFallback, nil
	default:
		return "", fmt.Errorf("gojob: unsupported job id %q", jobID)
	}
}

// NewSweepMessage builds the execution message for one sweep pass. The
// idempotency key buckets by minute so overlapping schedulers collapse onto a
// single queued pass.
func NewSweepMessage(mode string, scheduledAt time.Time) (*job.ExecutionMessage, error) {
	jobID, err := JobIDForMode(mode)
	if err != nil {
		return nil, err
	}
	normalizedMode, _ := ModeForJobID(jobID)
	bucket := scheduledAt.UTC().Truncate(time.Minute)
	return &job.ExecutionMessage{
		JobID:          jobID,
		ScriptPath:     sweepScriptPath,
		Parameters:     map[string]any{paramMode: normalizedMode},
		IdempotencyKey: fmt.Sprintf("%s:%s", jobID, bucket.Format(time.RFC3339)),
		DedupPolicy:    job.DeduplicationPolicy(sweepDedupPolicy),
	}, nil
}

type SweepEnqueuer struct {
	enqueuer queue.Enqueuer
	now      func() time.Time
}

func NewSweepEnqueuer(enqueuer queue.Enqueuer) *SweepEnqueuer {
	return &SweepEnqueuer{enqueuer: enqueuer, now: time.Now}
}

func (e *SweepEnqueuer) EnqueueSweep(ctx context.Context, mode string) error {
	if e == nil || e.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	msg, err := NewSweepMessage(mode, e.now())
	if err != nil {
		return err
	}
	return e.enqueuer.Enqueue(ctx, msg)
}

// SweepHandler executes queued sweep passes against a SweepRunner and settles
// the delivery. Conflicts are retried under the policy; every other failure
// goes straight to the dead letter queue.
type SweepHandler struct {
	runner inventorycommand.SweepRunner
	policy RetryPolicy
}

func NewSweepHandler(runner inventorycommand.SweepRunner, policy RetryPolicy) *SweepHandler {
	return &SweepHandler{runner: runner, policy: policy}
}

func (h *SweepHandler) Handle(ctx context.Context, delivery queue.Delivery, attempt int) (core.SweepResult, error) {
	if h == nil || h.runner == nil {
		return core.SweepResult{}, fmt.Errorf("gojob: sweep runner is not configured")
	}
	if delivery == nil {
		return core.SweepResult{}, fmt.Errorf("gojob: delivery is required")
	}
	msg := delivery.Message()
	if msg == nil {
		return core.SweepResult{}, h.nack(ctx, delivery, attempt, fmt.Errorf("gojob: delivery has no message"), false)
	}
	mode, err := ModeForJobID(msg.JobID)
	if err != nil {
		return core.SweepResult{}, h.nack(ctx, delivery, attempt, err, false)
	}

	var result core.SweepResult
	if mode == inventorycommand.SweepModeFallback {
		result, err = h.runner.SweepStale(ctx)
	} else {
		result, err = h.runner.SweepExpired(ctx)
	}
	if err != nil {
		return result, h.nack(ctx, delivery, attempt, err, sweepRetryable(err))
	}
	if ackErr := delivery.Ack(ctx); ackErr != nil {
		return result, ackErr
	}
	return result, nil
}

func (h *SweepHandler) nack(ctx context.Context, delivery queue.Delivery, attempt int, cause error, retryable bool) error {
	opts := queue.NackOptions{
		Requeue:    retryable,
		DeadLetter: !retryable,
		Reason:     cause.Error(),
	}
	if retryable {
		opts.Delay = h.policy.RetryDelay
	}
	if err := delivery.Nack(ctx, h.policy.NormalizeAttempt(opts, attempt)); err != nil {
		return fmt.Errorf("gojob: nack after %v: %w", cause, err)
	}
	return cause
}

// sweepRetryable reports whether every failure joined into a sweep error is
// retryable. A single permanent failure dead-letters the pass.
func sweepRetryable(err error) bool {
	if err == nil {
		return false
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		causes := joined.Unwrap()
		if len(causes) == 0 {
			return false
		}
		for _, cause := range causes {
			if !sweepRetryable(cause) {
				return false
			}
		}
		return true
	}
	return core.IsRetryable(err)
}

// ProcessNext dequeues one delivery and hands it to the handler.
func (h *SweepHandler) ProcessNext(ctx context.Context, dequeuer queue.Dequeuer, attempt int) (core.SweepResult, error) {
	if dequeuer == nil {
		return core.SweepResult{}, fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := dequeuer.Dequeue(ctx)
	if err != nil {
		return core.SweepResult{}, err
	}
	return h.Handle(ctx, delivery, attempt)
}

// SweepJobEvent is the worker lifecycle view reported to SweepJobHook.
type SweepJobEvent struct {
	JobID     string
	Mode      string
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type SweepJobHook interface {
	OnStart(context.Context, SweepJobEvent)
	OnSuccess(context.Context, SweepJobEvent)
	OnFailure(context.Context, SweepJobEvent)
	OnRetry(context.Context, SweepJobEvent)
}

type WorkerHookAdapter struct {
	hook SweepJobHook
}

func NewWorkerHookAdapter(hook SweepJobHook) *WorkerHookAdapter {
	return &WorkerHookAdapter{hook: hook}
}

func (a *WorkerHookAdapter) OnStart(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnStart(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnSuccess(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnSuccess(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnFailure(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnFailure(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnRetry(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnRetry(ctx, mapWorkerEvent(event))
}

func mapWorkerEvent(event worker.Event) SweepJobEvent {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	out := SweepJobEvent{
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
	if message != nil {
		out.JobID = strings.TrimSpace(message.JobID)
		out.Mode, _ = ModeForJobID(out.JobID)
	}
	return out
}

var _ worker.Hook = (*WorkerHookAdapter)(nil)
