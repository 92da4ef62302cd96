package engine

import (
	"context"
	"time"

	"surface/internal/client"
	"surface/internal/logging"
	"surface/internal/types"
)

// pendingStartup is the intent "start the agent once this session shows up
// Running". Entries are keyed by session id; re-enqueueing overwrites. The
// TTL bounds how long the intent survives a session that never reaches
// Running.
type pendingStartup struct {
	ID         string
	AgentType  string
	EnqueuedAt time.Time
	ExpiresAt  time.Time
}

type StartReason string

const (
	StartReasonPending   StartReason = "pending"
	StartReasonHydration StartReason = "hydration"
)

type startDecision struct {
	SessionID string
	AgentType string
	Reason    StartReason
}

type autostartInput struct {
	Sessions    []*types.Session
	Pending     map[string]*pendingStartup
	Suppressed  map[string]bool
	InFlight    map[string]bool
	EverRunning map[string]bool
	Now         time.Time
}

type autostartResult struct {
	Starts          []startDecision
	ExpiredPending  []string
	ConsumedPending []string
	Suppress        []string
	ClearSuppressed []string
	MarkEverRunning []string
}

// planAutostart decides, per reconciliation pass, which sessions get an
// automatic agent start. It is pure; the engine applies the bookkeeping and
// issues the starts asynchronously.
func planAutostart(in autostartInput) autostartResult {
	var res autostartResult

	live := make(map[string]*pendingStartup, len(in.Pending))
	for id, pending := range in.Pending {
		if !pending.ExpiresAt.After(in.Now) {
			res.ExpiredPending = append(res.ExpiredPending, id)
			continue
		}
		live[id] = pending
	}

	for _, session := range in.Sessions {
		id := session.ID
		switch session.State {
		case types.SessionStateSpec:
			// Back in Spec means a future promotion may auto-start again.
			if in.Suppressed[id] {
				res.ClearSuppressed = append(res.ClearSuppressed, id)
			}
		case types.SessionStateRunning:
			if !in.EverRunning[id] {
				res.MarkEverRunning = append(res.MarkEverRunning, id)
			}
			if pending, ok := live[id]; ok {
				res.ConsumedPending = append(res.ConsumedPending, id)
				if in.InFlight[id] {
					res.Suppress = append(res.Suppress, id)
					continue
				}
				res.Starts = append(res.Starts, startDecision{
					SessionID: id,
					AgentType: pending.AgentType,
					Reason:    StartReasonPending,
				})
				continue
			}
			if !in.EverRunning[id] && !in.Suppressed[id] && !in.InFlight[id] {
				res.Starts = append(res.Starts, startDecision{
					SessionID: id,
					AgentType: session.AgentType,
					Reason:    StartReasonHydration,
				})
			}
		}
	}
	return res
}

// executeStart performs the start-once-idempotent procedure for one
// decision. A backend-confirmed existing agent suppresses the id instead of
// starting a duplicate. The caller has already recorded the start as in
// flight.
func (e *Engine) executeStart(ctx context.Context, decision startDecision) {
	id := decision.SessionID
	log := e.log.With(
		logging.F("session", id),
		logging.F("reason", string(decision.Reason)),
	)

	running, err := e.backend.AgentRunning(ctx, id)
	if err == nil && running {
		e.mu.Lock()
		e.suppressed[id] = true
		delete(e.startsInFlight, id)
		e.mu.Unlock()
		log.Debug("agent already running; suppressing automatic starts")
		return
	}

	err = e.backend.StartAgent(ctx, id, decision.AgentType)

	e.mu.Lock()
	delete(e.startsInFlight, id)
	if err == nil {
		e.suppressed[id] = true
	}
	e.mu.Unlock()

	if err != nil {
		if client.IsPermissionDenied(err) {
			e.notify(Notification{
				Kind:      NotificationPermissionRequired,
				SessionID: id,
				Message:   err.Error(),
			})
			return
		}
		log.Warn("automatic agent start failed", logging.F("error", err))
		return
	}
	log.Info("agent started")
}
