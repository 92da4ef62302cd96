package engine

import (
	"context"

	"surface/internal/logging"
	"surface/internal/types"
)

// Dispatcher routes the typed push-event stream into the engine. Events are
// applied in delivery order; a full-snapshot refresh completing after an
// event may overwrite what the event set except for the fields the
// reconciler carries forward, which is the accepted staleness window.
type Dispatcher struct {
	engine *Engine
	log    logging.Logger
}

func NewDispatcher(engine *Engine, log logging.Logger) *Dispatcher {
	if log == nil {
		log = logging.Nop()
	}
	return &Dispatcher{engine: engine, log: log}
}

// Run consumes events until the channel closes or the context ends.
func (d *Dispatcher) Run(ctx context.Context, events <-chan types.PushEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			d.Dispatch(ctx, event)
		}
	}
}

// Dispatch routes one event. The switch is exhaustive over EventKind so a
// new kind cannot be added without deciding its routing here.
func (d *Dispatcher) Dispatch(ctx context.Context, event types.PushEvent) {
	switch event.Kind {
	case types.EventSessionsRefreshed:
		if event.Refreshed != nil {
			d.engine.ApplySnapshot(ctx, event.Refreshed.Sessions, event.Refreshed.ProjectPath, ReasonPushRefresh)
		}
	case types.EventSessionAdded:
		if event.Added != nil {
			d.engine.handleSessionAdded(ctx, event.Added)
		}
	case types.EventSessionRemoved:
		if event.Removed != nil {
			d.engine.handleSessionRemoved(ctx, event.Removed.ID)
		}
	case types.EventSessionCancelling:
		if event.Cancelling != nil {
			d.engine.handleSessionCancelling(ctx, event.Cancelling.ID)
		}
	case types.EventSessionActivity:
		if event.Activity != nil {
			d.engine.handleSessionActivity(ctx, event.Activity)
		}
	case types.EventSessionGitStats:
		if event.GitStats != nil {
			d.engine.handleSessionGitStats(ctx, event.GitStats)
		}
	case types.EventGitOperationStarted:
		if event.GitOperation != nil {
			d.engine.handleGitOperationStarted(event.GitOperation)
		}
	case types.EventGitOperationComplete:
		if event.GitOperation != nil {
			d.engine.handleGitOperationCompleted(ctx, event.GitOperation)
		}
	case types.EventGitOperationFailed:
		if event.GitOperation != nil {
			d.engine.handleGitOperationFailed(event.GitOperation)
		}
	default:
		d.log.Warn("unknown push event kind", logging.F("kind", string(event.Kind)))
	}
}
