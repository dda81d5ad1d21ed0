// Package scheduler provides the sync orchestrator: session lifecycle, full
// sync, periodic background sync and reaction to connectivity changes.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Nyvram23/Utility-Box/internal/config"
	"github.com/Nyvram23/Utility-Box/internal/connectivity"
	"github.com/Nyvram23/Utility-Box/internal/errors"
	"github.com/Nyvram23/Utility-Box/internal/logging"
	"github.com/Nyvram23/Utility-Box/internal/models"
	"github.com/Nyvram23/Utility-Box/internal/notify"
	"github.com/Nyvram23/Utility-Box/internal/store"
	"github.com/Nyvram23/Utility-Box/internal/sync/queue"
	"github.com/Nyvram23/Utility-Box/internal/sync/remote"
	"github.com/Nyvram23/Utility-Box/internal/sync/session"
)

// DomainState is the collaborator contract of the tool domains.
type DomainState interface {
	Snapshot() (map[models.Kind]json.RawMessage, error)
	Apply(states map[models.Kind]json.RawMessage) error
}

// Config holds orchestrator configuration.
type Config struct {
	SyncInterval time.Duration // How often to run full sync when online (default: 5 minutes)
	Queue        queue.Config
	Simulator    remote.SimulatorConfig
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	return Config{
		SyncInterval: 5 * time.Minute,
		Queue:        queue.DefaultConfig(),
		Simulator:    remote.DefaultSimulatorConfig(),
	}
}

// ConfigFrom maps loaded settings onto an orchestrator Config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		SyncInterval: cfg.Sync.Interval,
		Queue: queue.Config{
			MaxAttempts: cfg.Sync.MaxAttempts,
			MaxSize:     cfg.Sync.MaxQueueSize,
			DrainDelay:  cfg.Sync.DrainDelay,
		},
		Simulator: remote.SimulatorConfig{
			MinLatency: cfg.Sync.MinLatency,
			MaxLatency: cfg.Sync.MaxLatency,
		},
	}
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Store    store.Store
	Monitor  *connectivity.Monitor
	Tools    DomainState
	Notifier notify.Notifier
	// Transport overrides the simulated backend when set.
	Transport remote.Transport
}

// Orchestrator owns the session, the sync queue and the connectivity
// reaction for one application instance.
type Orchestrator struct {
	monitor   *connectivity.Monitor
	tools     DomainState
	notifier  notify.Notifier
	session   *session.Manager
	queue     *queue.SyncQueue
	transport remote.Transport

	syncInterval time.Duration
	unsubscribe  func()

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	bg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc

	mu             sync.RWMutex
	isRunning      bool
	stopped        bool
	syncInProgress bool
}

// New wires an orchestrator, restores the persisted session and queue, and
// subscribes to connectivity changes. Load failures are logged; the
// orchestrator then starts from an empty state.
func New(deps Deps, cfg Config) *Orchestrator {
	if deps.Notifier == nil {
		deps.Notifier = notify.Log{}
	}
	if deps.Monitor == nil {
		deps.Monitor = connectivity.NewMonitor(true)
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultConfig().SyncInterval
	}

	var sim *remote.Simulator
	sess := session.NewManager(deps.Store, func(ctx context.Context) error {
		return sim.SimulateLatency(ctx)
	})
	sim = remote.NewSimulator(sess.Token, cfg.Simulator)

	transport := deps.Transport
	if transport == nil {
		transport = sim
	}

	ctx, cancel := context.WithCancel(context.Background())

	o := &Orchestrator{
		monitor:      deps.Monitor,
		tools:        deps.Tools,
		notifier:     deps.Notifier,
		session:      sess,
		transport:    transport,
		syncInterval: cfg.SyncInterval,
		stopCh:       make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
	}

	o.queue = queue.NewSyncQueue(deps.Store, transport, deps.Notifier, queue.Gates{
		Online:        deps.Monitor.IsOnline,
		Authenticated: sess.Authenticated,
	}, cfg.Queue)

	if err := sess.Load(); err != nil {
		logging.ErrorWithCode("Failed to load session", string(errors.CodeOf(err)), err)
	}
	if err := o.queue.Load(); err != nil {
		logging.ErrorWithCode("Failed to load sync queue", string(errors.CodeOf(err)), err)
	}

	o.unsubscribe = deps.Monitor.Subscribe(o.onConnectivityChange)

	return o
}

// Start starts the periodic sync loop and resumes draining any entries
// restored from the store.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.isRunning || o.stopped {
		o.mu.Unlock()
		return
	}
	o.isRunning = true
	o.mu.Unlock()

	o.wg.Add(1)
	go o.periodicSyncLoop(ctx)

	o.goBackground(func(ctx context.Context) { o.queue.Drain(ctx) })

	logging.Info("Background sync scheduler started", map[string]interface{}{
		"interval": o.syncInterval.String(),
		"pending":  o.queue.Len(),
	})
}

// Stop shuts the orchestrator down: it ends the periodic loop, cancels
// in-flight simulated calls and detaches from the connectivity monitor.
// A stopped orchestrator cannot be restarted.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		o.mu.Lock()
		wasRunning := o.isRunning
		o.isRunning = false
		o.stopped = true
		o.mu.Unlock()

		o.unsubscribe()
		close(o.stopCh)
		o.cancel()

		o.wg.Wait()
		o.bg.Wait()
		o.queue.Stop()

		if wasRunning {
			logging.Info("Background sync scheduler stopped")
		}
	})
}

// goBackground runs fn on a tracked goroutine unless the orchestrator is stopped.
func (o *Orchestrator) goBackground(fn func(ctx context.Context)) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.stopped {
		return
	}

	o.bg.Add(1)
	go func() {
		defer o.bg.Done()
		defer func() {
			if r := recover(); r != nil {
				logging.Error("Background sync task panicked", fmt.Errorf("%v", r))
			}
		}()
		fn(o.ctx)
	}()
}

// periodicSyncLoop runs full sync every syncInterval while online and
// authenticated. Failures are logged only. The orchestrator stops reporting
// itself as running once the loop exits.
func (o *Orchestrator) periodicSyncLoop(ctx context.Context) {
	defer o.wg.Done()
	defer func() {
		o.mu.Lock()
		o.isRunning = false
		o.mu.Unlock()
	}()

	ticker := time.NewTicker(o.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-ticker.C:
			if !o.monitor.IsOnline() || !o.session.Authenticated() {
				continue
			}

			o.mu.RLock()
			isSyncing := o.syncInProgress
			o.mu.RUnlock()

			if isSyncing {
				logging.Debug("Sync already in progress, skipping")
				continue
			}

			o.goBackground(o.runPeriodicSync)
		}
	}
}

func (o *Orchestrator) runPeriodicSync(ctx context.Context) {
	logging.Info("Starting periodic sync")

	if _, err := o.fullSync(ctx, false); err != nil {
		logging.ErrorWithCode("Periodic sync failed", string(errors.CodeOf(err)), err,
			map[string]interface{}{"interval_minutes": o.syncInterval.Minutes()})
		return
	}

	logging.Info("Periodic sync completed")
}

// onConnectivityChange reacts to monitor edges. Going online announces the
// reconnection, flushes the queue and runs a full sync; going offline only
// notifies.
func (o *Orchestrator) onConnectivityChange(online bool) {
	if !online {
		o.notifier.Notify(notify.New(models.LevelWarning, models.EventConnectivityOffline,
			"Modo offline ativado. Dados serão sincronizados quando online."))
		return
	}

	o.notifier.Notify(notify.New(models.LevelSuccess, models.EventConnectivityOnline,
		"Conexão restaurada! Sincronizando dados..."))

	o.goBackground(func(ctx context.Context) {
		o.queue.FlushPending(ctx)
		if o.session.Authenticated() {
			if _, err := o.fullSync(ctx, true); err != nil && !errors.Is(err, errors.ErrSyncInProgress) {
				logging.Warn("Reconnect sync failed", map[string]interface{}{"error": err.Error()})
			}
		}
	})
}

// SetOnline forwards a platform connectivity report to the monitor.
func (o *Orchestrator) SetOnline(online bool) {
	o.monitor.SetOnline(online)
}

// Enqueue records a tool mutation for delivery.
func (o *Orchestrator) Enqueue(kind models.Kind, payload json.RawMessage) (id string, err error) {
	defer recoverInto("enqueue", &err)
	return o.queue.Enqueue(kind, payload)
}

// Pending returns a copy of the queued entries.
func (o *Orchestrator) Pending() []models.QueueEntry {
	return o.queue.List()
}

// Session returns a copy of the current session.
func (o *Orchestrator) Session() models.Session {
	return o.session.Current()
}

// Authenticate creates a simulated session. Failures are returned and also
// raised as a notification.
func (o *Orchestrator) Authenticate(ctx context.Context, email, password string) (res *models.AuthResult, err error) {
	defer recoverInto("authenticate", &err)

	res, err = o.session.Authenticate(ctx, email, password)
	if err != nil {
		msg := "Erro ao autenticar"
		if errors.Is(err, errors.ErrInvalidCredentials) {
			msg = "Credenciais inválidas"
		}
		o.notifier.Notify(notify.New(models.LevelError, models.EventSyncFailed, msg))
		return nil, err
	}

	// entries queued while logged out can go now
	o.goBackground(func(ctx context.Context) { o.queue.Drain(ctx) })

	return res, nil
}

// ClearSyncData drops the session and empties the queue. Tool data is kept.
func (o *Orchestrator) ClearSyncData() {
	defer recoverInto("clear sync data", nil)

	o.queue.Clear()
	o.session.Clear()

	logging.Info("Sync data cleared")
	o.notifier.Notify(notify.New(models.LevelInfo, models.EventSessionCleared, "Dados de sincronização limpos!"))
}

// Logout is ClearSyncData.
func (o *Orchestrator) Logout() {
	o.ClearSyncData()
}

// IsRunning returns whether the periodic loop is active.
func (o *Orchestrator) IsRunning() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.isRunning
}

// Stats returns the snapshot exposed to the UI.
func (o *Orchestrator) Stats() models.SyncStats {
	current := o.session.Current()
	return models.SyncStats{
		IsOnline:       o.monitor.IsOnline(),
		LastSync:       current.LastSync,
		PendingCount:   o.queue.Len(),
		UserID:         current.UserID,
		AutoSyncActive: o.IsRunning(),
	}
}

// recoverInto converts a panic in a public entry point into an INTERNAL error.
func recoverInto(op string, err *error) {
	if r := recover(); r != nil {
		e := errors.New(errors.ErrInternal, fmt.Sprintf("%s panicked: %v", op, r))
		logging.ErrorWithCode("Recovered from panic", string(errors.ErrInternal), e)
		if err != nil {
			*err = e
		}
	}
}
