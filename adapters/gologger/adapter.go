package gologger

import (
	"context"

	"github.com/goliatone/go-inventory/adapters/gojob"
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

const defaultLoggerName = "inventory"

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	if name == "" {
		name = defaultLoggerName
	}
	return glog.Resolve(name, provider, logger)
}

// ToJobProvider maps a glog provider to the go-job logger provider contract.
func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

// ToJobLogger maps a glog logger to the go-job logger contract.
func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves glog logger/provider then returns equivalent go-job adapters.
func ResolveForJob(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	return resolvedProvider, resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}

// SweepJobLogger writes queued sweep lifecycle events to a glog logger.
type SweepJobLogger struct {
	logger glog.Logger
}

func NewSweepJobLogger(provider glog.LoggerProvider, logger glog.Logger) *SweepJobLogger {
	_, resolved := Resolve(defaultLoggerName+".sweeper", provider, logger)
	return &SweepJobLogger{logger: resolved}
}

func (l *SweepJobLogger) OnStart(ctx context.Context, event gojob.SweepJobEvent) {
	l.log(ctx).Debug("inventory sweep job started", sweepEventArgs(event)...)
}

func (l *SweepJobLogger) OnSuccess(ctx context.Context, event gojob.SweepJobEvent) {
	l.log(ctx).Info("inventory sweep job succeeded", sweepEventArgs(event)...)
}

func (l *SweepJobLogger) OnFailure(ctx context.Context, event gojob.SweepJobEvent) {
	l.log(ctx).Error("inventory sweep job failed", sweepEventArgs(event)...)
}

func (l *SweepJobLogger) OnRetry(ctx context.Context, event gojob.SweepJobEvent) {
	l.log(ctx).Warn("inventory sweep job retrying", sweepEventArgs(event)...)
}

func (l *SweepJobLogger) log(ctx context.Context) glog.Logger {
	if l == nil || l.logger == nil {
		return glog.Nop()
	}
	if ctx == nil {
		return l.logger
	}
	return l.logger.WithContext(ctx)
}

func sweepEventArgs(event gojob.SweepJobEvent) []any {
	args := []any{
		"job_id", event.JobID,
		"mode", event.Mode,
		"attempt", event.Attempt,
		"duration_ms", event.Duration.Milliseconds(),
	}
	if event.Delay > 0 {
		args = append(args, "delay_ms", event.Delay.Milliseconds())
	}
	if event.Err != nil {
		args = append(args, "error", event.Err.Error())
	}
	return args
}

var _ gojob.SweepJobHook = (*SweepJobLogger)(nil)
