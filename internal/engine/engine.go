// Package engine is the session reconciliation core: a client-side cache of
// "what sessions exist and what state are they in", kept consistent against
// an authoritative backend reached through asynchronous RPCs and a push
// event stream. It never claims state it cannot justify from the last
// snapshot or event it received, and degrades to last known good state on
// transient failure.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"surface/internal/config"
	"surface/internal/logging"
	"surface/internal/store"
	"surface/internal/types"
)

// Backend is the slice of the RPC surface the engine consumes. The real
// implementation is internal/client.Client.
type Backend interface {
	ListSessions(ctx context.Context, projectPath string) ([]*types.Session, error)
	GetMergePreview(ctx context.Context, id string) (*types.MergePreview, error)
	MergeSession(ctx context.Context, id string, mode types.MergeMode, commitMessage string) error
	CancelSession(ctx context.Context, id string) error
	StartAgent(ctx context.Context, id, agentType string) error
	AgentRunning(ctx context.Context, id string) (bool, error)
	ReleaseTerminal(ctx context.Context, id string) error
}

// Snapshot application reasons, for log correlation.
const (
	ReasonManualRefresh = "refresh"
	ReasonPushRefresh   = "push_refresh"
	ReasonPushEvent     = "push_event"
	ReasonProjectSwitch = "project_switch"
	ReasonAutoCancel    = "auto_cancel"
)

type NotificationKind string

const (
	// NotificationPermissionRequired is the distinct signal for access
	// failures, so the caller can prompt for access instead of treating it
	// as a generic error.
	NotificationPermissionRequired NotificationKind = "permission_required"
	NotificationMergeFailed        NotificationKind = "merge_failed"
)

type Notification struct {
	Kind      NotificationKind
	SessionID string
	Message   string
}

// Engine is the single writer for all reconciliation state. Readers get
// copies; every transition is computed by a pure function and committed
// under the engine's lock.
type Engine struct {
	// passMu serializes reconciliation passes end to end, including the
	// awaited terminal releases in the middle; mu guards the data and is
	// held only across in-memory transitions so readers never wait on RPCs.
	passMu  sync.Mutex
	mu      sync.Mutex
	backend Backend
	log     logging.Logger
	cfg     config.Config
	cache   *store.SnapshotCache
	now     func() time.Time
	async   func(fn func())

	activeProject string
	store         *snapshotStore

	expected       map[string]*expectedEntry
	pending        map[string]*pendingStartup
	suppressed     map[string]bool
	startsInFlight map[string]bool
	everRunning    map[string]bool
	protection     map[string]time.Time

	previews    map[string]*types.MergePreview
	mergeErrors map[string]string
	dialog      MergeDialogState

	mutations *mutationTracker
	coalescer *requestCoalescer

	subsMu        sync.Mutex
	subs          []chan struct{}
	notifications chan Notification
}

type Option func(*Engine)

func WithLogger(log logging.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

func WithConfig(cfg config.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithSnapshotCache persists finalized snapshots per project and seeds the
// per-project cache at construction so a restart shows last known good state
// before the first refresh lands.
func WithSnapshotCache(cache *store.SnapshotCache) Option {
	return func(e *Engine) { e.cache = cache }
}

// WithClock injects the time source. TTL expiry is evaluated lazily during
// passes against this clock, never by a wall-clock timer, so tests are
// deterministic.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithSynchronousStarts runs automatic agent starts inline instead of on a
// goroutine. Test hook.
func WithSynchronousStarts() Option {
	return func(e *Engine) { e.async = func(fn func()) { fn() } }
}

func New(backend Backend, opts ...Option) *Engine {
	e := &Engine{
		backend:        backend,
		log:            logging.Nop(),
		cfg:            config.Default(),
		now:            time.Now,
		store:          newSnapshotStore(),
		expected:       map[string]*expectedEntry{},
		pending:        map[string]*pendingStartup{},
		suppressed:     map[string]bool{},
		startsInFlight: map[string]bool{},
		everRunning:    map[string]bool{},
		protection:     map[string]time.Time{},
		previews:       map[string]*types.MergePreview{},
		mergeErrors:    map[string]string{},
		mutations:      newMutationTracker(),
		coalescer:      newRequestCoalescer(),
		notifications:  make(chan Notification, 16),
	}
	e.async = func(fn func()) { go fn() }
	for _, opt := range opts {
		opt(e)
	}
	if e.cache != nil {
		if cached, err := e.cache.LoadAll(); err == nil {
			for projectPath, sessions := range cached {
				e.store.cacheProject(projectPath, sessions)
			}
		} else {
			e.log.Warn("snapshot cache unreadable", logging.F("error", err))
		}
	}
	return e
}

// SetActiveProject switches the active view, parking the old project's list
// in the cache and restoring the new project's cached snapshot, then runs a
// coalesced refresh. Snapshots for other projects keep landing in the cache
// only, so rapid tab switches never flicker.
func (e *Engine) SetActiveProject(ctx context.Context, projectPath string) error {
	e.mu.Lock()
	if e.activeProject == projectPath {
		e.mu.Unlock()
		return e.Refresh(ctx, ReasonManualRefresh)
	}
	if e.activeProject != "" {
		e.store.cacheProject(e.activeProject, e.store.active)
	}
	e.activeProject = projectPath
	cached, _ := e.store.cachedProject(projectPath)
	e.store.commit(cached)
	// Ephemeral bookkeeping is scoped per session id and ids are unique
	// across projects, so pending/suppression entries for the old project
	// simply stay dormant until it becomes active again.
	e.mu.Unlock()
	e.notifySubscribers()
	return e.Refresh(ctx, ReasonProjectSwitch)
}

func (e *Engine) ActiveProject() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeProject
}

// Refresh lists sessions for the active project through the coalescer: a
// second refresh arriving mid-flight awaits the first and triggers exactly
// one replay pass. A transient failure keeps the previous snapshot.
func (e *Engine) Refresh(ctx context.Context, reason string) error {
	e.mu.Lock()
	projectPath := e.activeProject
	e.mu.Unlock()

	return e.coalescer.Do("list:"+projectPath, func() error {
		sessions, err := e.backend.ListSessions(ctx, projectPath)
		if err != nil {
			e.log.Warn("session refresh failed; keeping last known state",
				logging.F("project", projectPath), logging.F("error", err))
			return err
		}
		e.mu.Lock()
		stale := e.activeProject != projectPath
		e.mu.Unlock()
		if stale {
			// The active project changed while the RPC was in flight; the
			// result no longer has a home and is discarded.
			e.log.Debug("discarding stale refresh result",
				logging.F("project", projectPath))
			return nil
		}
		e.ApplySnapshot(ctx, sessions, projectPath, reason)
		return nil
	})
}

// ApplySnapshot folds an incoming session list into the store. Snapshots for
// inactive projects go to the per-project cache untouched; active snapshots
// run the full reconciliation pass followed by the autostart pass.
func (e *Engine) ApplySnapshot(ctx context.Context, sessions []*types.Session, projectPath, reason string) {
	e.passMu.Lock()
	defer e.passMu.Unlock()
	e.applySnapshot(ctx, sessions, projectPath, reason)
}

// applySnapshot runs one pass. Caller holds passMu.
func (e *Engine) applySnapshot(ctx context.Context, sessions []*types.Session, projectPath, reason string) {
	passID := uuid.NewString()[:8]
	log := e.log.With(
		logging.F("pass", passID),
		logging.F("reason", reason),
		logging.F("project", projectPath),
	)
	incoming := types.CloneSessions(sessions)

	e.mu.Lock()
	if projectPath != e.activeProject {
		e.store.cacheProject(projectPath, incoming)
		// A cached list can become the active view (and be mutated under
		// mu) before the marshal below runs, so the cache write gets its
		// own copy.
		toPersist := types.CloneSessions(incoming)
		e.mu.Unlock()
		e.persistSnapshot(projectPath, toPersist)
		log.Debug("snapshot cached for inactive project",
			logging.F("sessions", len(incoming)))
		return
	}

	// Only placeholders registered for this project participate; entries for
	// other projects stay dormant until their project is reconciled.
	expected := make(map[string]*expectedEntry, len(e.expected))
	for id, entry := range e.expected {
		if entry.Project == projectPath {
			expected[id] = entry
		}
	}

	res := reconcile(reconcileInput{
		Incoming:         incoming,
		Previous:         e.store.active,
		PrevStates:       e.store.prevStates,
		Expected:         expected,
		Previews:         e.previews,
		Protection:       e.protection,
		ProtectionWindow: e.cfg.RemovalProtectionWindow(),
		Now:              e.now(),
	})

	for _, id := range res.SatisfiedExpected {
		delete(e.expected, id)
	}
	for _, id := range res.ExpiredExpected {
		delete(e.expected, id)
		log.Debug("expected session expired", logging.F("session", id))
	}
	for _, id := range res.Reinjected {
		log.Debug("reinjected expected session", logging.F("session", id))
	}
	for _, id := range res.ProtectedRemovals {
		log.Debug("removal inside protection window; terminal release skipped",
			logging.F("session", id))
	}
	for _, id := range res.Removed {
		delete(e.pending, id)
		delete(e.suppressed, id)
		delete(e.everRunning, id)
		delete(e.protection, id)
		delete(e.previews, id)
		delete(e.mergeErrors, id)
		e.mutations.Clear(id)
	}
	removed := append([]string{}, res.Removed...)
	e.mu.Unlock()

	// Terminal release is awaited before the store is finalized so the
	// backend never races a new snapshot for the same id.
	for _, id := range removed {
		if err := e.backend.ReleaseTerminal(ctx, id); err != nil {
			log.Warn("terminal release failed",
				logging.F("session", id), logging.F("error", err))
		}
	}

	e.mu.Lock()
	if projectPath != e.activeProject {
		// The active project switched while releases were in flight; the
		// finalized list belongs in the cache, not the active view.
		e.store.cacheProject(projectPath, res.Next)
		toPersist := types.CloneSessions(res.Next)
		e.mu.Unlock()
		e.persistSnapshot(projectPath, toPersist)
		log.Debug("project switched mid-pass; snapshot cached",
			logging.F("sessions", len(res.Next)))
		return
	}
	e.store.commit(res.Next)
	e.protection = res.NextProtection

	plan := planAutostart(autostartInput{
		Sessions:    res.Next,
		Pending:     e.pending,
		Suppressed:  e.suppressed,
		InFlight:    e.startsInFlight,
		EverRunning: e.everRunning,
		Now:         e.now(),
	})
	for _, id := range plan.ExpiredPending {
		delete(e.pending, id)
		log.Debug("pending startup expired without a start", logging.F("session", id))
	}
	for _, id := range plan.ConsumedPending {
		delete(e.pending, id)
	}
	for _, id := range plan.Suppress {
		e.suppressed[id] = true
	}
	for _, id := range plan.ClearSuppressed {
		delete(e.suppressed, id)
	}
	for _, id := range plan.MarkEverRunning {
		e.everRunning[id] = true
	}
	for _, decision := range plan.Starts {
		e.startsInFlight[decision.SessionID] = true
	}
	// The committed records stay mutable under mu (status writes from merge
	// paths), so the unlocked marshal below works on a copy.
	toPersist := types.CloneSessions(res.Next)
	e.mu.Unlock()

	e.persistSnapshot(projectPath, toPersist)

	for _, decision := range plan.Starts {
		decision := decision
		e.async(func() { e.executeStart(context.WithoutCancel(ctx), decision) })
	}

	log.Debug("snapshot applied",
		logging.F("sessions", len(res.Next)),
		logging.F("removed", len(res.Removed)),
		logging.F("starts", len(plan.Starts)))
	e.notifySubscribers()
}

func (e *Engine) persistSnapshot(projectPath string, sessions []*types.Session) {
	if e.cache == nil || projectPath == "" {
		return
	}
	if err := e.cache.Save(projectPath, sessions); err != nil {
		e.log.Warn("snapshot cache write failed",
			logging.F("project", projectPath), logging.F("error", err))
	}
}

// ExpectSession registers an optimistic placeholder: until the backend
// reports the id or the TTL lapses, snapshots missing it get the payload (or
// the previous record) reinserted so a just-created session never blinks out.
// The entry binds to the currently active project and never shields the id in
// any other project's view.
func (e *Engine) ExpectSession(id string, payload *types.Session) {
	if id == "" {
		return
	}
	e.mu.Lock()
	e.expected[id] = &expectedEntry{
		ID:        id,
		Project:   e.activeProject,
		ExpiresAt: e.now().Add(e.cfg.ExpectedSessionTTL()),
		Payload:   payload.Clone(),
	}
	e.mu.Unlock()
}

// EnqueuePendingStartup records the intent to auto-start the agent once the
// session shows up Running. Re-enqueueing the same id overwrites the entry.
func (e *Engine) EnqueuePendingStartup(id, agentTypeHint string) {
	if id == "" {
		return
	}
	e.mu.Lock()
	now := e.now()
	e.pending[id] = &pendingStartup{
		ID:         id,
		AgentType:  agentTypeHint,
		EnqueuedAt: now,
		ExpiresAt:  now.Add(e.cfg.PendingStartupTTL()),
	}
	e.mu.Unlock()
}

func (e *Engine) ClearPendingStartup(id string) {
	e.mu.Lock()
	delete(e.pending, id)
	e.mu.Unlock()
}

// CancelSession asks the backend to tear a session down, guarded by the
// remove mutation so a double-tap issues one RPC.
func (e *Engine) CancelSession(ctx context.Context, id string) error {
	if !e.mutations.Begin(id, MutationRemove) {
		return nil
	}
	defer e.mutations.End(id, MutationRemove)
	return e.backend.CancelSession(ctx, id)
}

// Sessions returns a copy of the active session list.
func (e *Engine) Sessions() []*types.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return types.CloneSessions(e.store.active)
}

func (e *Engine) Session(id string) *types.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.session(id).Clone()
}

func (e *Engine) MergeStatus(id string) types.MergeStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.status(id)
}

func (e *Engine) MutationInFlight(id string, kind MutationKind) bool {
	return e.mutations.Has(id, kind)
}

func (e *Engine) MergeDialog() MergeDialogState {
	e.mu.Lock()
	defer e.mu.Unlock()
	dialog := e.dialog
	dialog.Preview = dialog.Preview.Clone()
	return dialog
}

// Subscribe returns a change signal. The channel carries at most one pending
// tick; a slow reader observes coalesced signals, never a backlog.
func (e *Engine) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	e.subsMu.Lock()
	e.subs = append(e.subs, ch)
	e.subsMu.Unlock()
	return ch
}

// Notifications delivers permission prompts and deduplicated merge
// failures. Undrained notifications are dropped, not blocked on.
func (e *Engine) Notifications() <-chan Notification {
	return e.notifications
}

func (e *Engine) notifySubscribers() {
	e.subsMu.Lock()
	subs := e.subs
	e.subsMu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (e *Engine) notify(n Notification) {
	select {
	case e.notifications <- n:
	default:
		e.log.Warn("notification dropped",
			logging.F("kind", string(n.Kind)), logging.F("session", n.SessionID))
	}
}
