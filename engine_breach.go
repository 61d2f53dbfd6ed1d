package phoneauth

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// reportBreach tells the breach collaborator about a lockout without waiting
// for it. The report runs under the store timeout, detached from the caller's
// cancellation; errors and panics are logged and swallowed. Close waits for
// reports still in flight.
func (e *Engine) reportBreach(ctx context.Context, identifier, reason string, metadata map[string]string) {
	e.logger.Warn("lockout triggered",
		e.phoneField(identifier),
		zap.String("reason", reason),
	)
	if e.breach == nil {
		return
	}

	ctx = context.WithoutCancel(ctx)
	e.reports.Add(1)
	go func() {
		defer e.reports.Done()
		e.deliverBreach(ctx, identifier, reason, metadata)
	}()
}

func (e *Engine) deliverBreach(ctx context.Context, identifier, reason string, metadata map[string]string) {
	ctx, cancel := context.WithTimeout(ctx, e.config.Store.OperationTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("breach reporter panicked",
				zap.String("reason", reason),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()

	if err := e.breach.Report(ctx, identifier, reason, metadata); err != nil {
		e.warn("breach report failed", err, zap.String("reason", reason))
		return
	}
	e.metricInc(MetricBreachReported)
}
