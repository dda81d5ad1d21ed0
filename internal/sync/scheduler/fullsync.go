package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Nyvram23/Utility-Box/internal/errors"
	"github.com/Nyvram23/Utility-Box/internal/logging"
	"github.com/Nyvram23/Utility-Box/internal/models"
	"github.com/Nyvram23/Utility-Box/internal/notify"
	"github.com/Nyvram23/Utility-Box/internal/sync/remote"
)

// FullSync sends the state of every tool domain as one batch and writes the
// response back. It fails fast with OFFLINE or NOT_AUTHENTICATED before any
// remote call. On failure local tool state is left untouched.
func (o *Orchestrator) FullSync(ctx context.Context) (res *models.SyncResult, err error) {
	defer recoverInto("full sync", &err)
	return o.fullSync(ctx, true)
}

// fullSync runs one full sync. Interactive callers get success and failure
// notifications; background callers only get the returned error.
func (o *Orchestrator) fullSync(ctx context.Context, interactive bool) (*models.SyncResult, error) {
	if !o.monitor.IsOnline() {
		return nil, errors.New(errors.ErrOffline, "device is offline")
	}
	if !o.session.Authenticated() {
		return nil, errors.New(errors.ErrNotAuthenticated, "not authenticated")
	}

	o.mu.Lock()
	if o.syncInProgress {
		o.mu.Unlock()
		return nil, errors.New(errors.ErrSyncInProgress, "sync already in progress")
	}
	o.syncInProgress = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.syncInProgress = false
		o.mu.Unlock()
	}()

	res, err := o.exchange(ctx)
	if err != nil {
		logging.ErrorWithCode("Full sync failed", string(errors.CodeOf(err)), err)
		if interactive {
			o.notifier.Notify(notify.New(models.LevelError, models.EventSyncFailed,
				"Erro na sincronização. Tentando novamente..."))
		}
		return nil, err
	}

	o.session.MarkSynced(time.Now())

	if interactive {
		o.notifier.Notify(notify.New(models.LevelSuccess, models.EventSyncCompleted,
			"Dados sincronizados com sucesso!"))
	}

	return res, nil
}

// exchange performs the round trip and applies the response.
func (o *Orchestrator) exchange(ctx context.Context) (res *models.SyncResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.ErrSyncFailed, fmt.Sprintf("panic during full sync: %v", r))
		}
	}()

	if o.tools == nil {
		return nil, errors.New(errors.ErrInternal, "no tool state configured")
	}

	snapshot, err := o.tools.Snapshot()
	if err != nil {
		return nil, errors.Wrap(errors.ErrPersistence, "failed to read tool state", err)
	}

	aggregate := make(map[string]json.RawMessage, len(snapshot))
	for kind, data := range snapshot {
		aggregate[string(kind)] = data
	}
	payload, err := json.Marshal(aggregate)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalid, "failed to encode tool state", err)
	}

	res, err = o.transport.Call(ctx, remote.MethodPost, models.KindFullSync, payload)
	if err != nil {
		if errors.CodeOf(err) == errors.ErrInternal {
			return nil, errors.Wrap(errors.ErrSyncFailed, "full sync request failed", err)
		}
		return nil, err
	}
	if res == nil || !res.Success {
		msg := "full sync rejected"
		if res != nil && res.Error != "" {
			msg = res.Error
		}
		return nil, errors.New(errors.ErrSyncFailed, msg)
	}

	var returned map[string]json.RawMessage
	if len(res.Data) > 0 {
		if err := json.Unmarshal(res.Data, &returned); err != nil {
			return nil, errors.Wrap(errors.ErrSyncFailed, "malformed full sync response", err)
		}
	}

	states := make(map[models.Kind]json.RawMessage, len(returned))
	for key, data := range returned {
		if kind := models.Kind(key); kind.Valid() {
			states[kind] = data
		}
	}
	if err := o.tools.Apply(states); err != nil {
		return nil, err
	}

	return res, nil
}

// ManualSync is the user-triggered sync. It never returns an error: every
// outcome is a result plus a notification, with distinct warnings for being
// offline and for being logged out.
func (o *Orchestrator) ManualSync(ctx context.Context) (res *models.SyncResult) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithCode("Recovered from panic", string(errors.ErrInternal), fmt.Errorf("manual sync: %v", r))
			res = failure(errors.ErrInternal, "Erro na sincronização")
		}
	}()

	if !o.monitor.IsOnline() {
		msg := "Sem conexão com a internet!"
		o.notifier.Notify(notify.New(models.LevelWarning, models.EventSyncRefused, msg))
		return failure(errors.ErrOffline, msg)
	}
	if !o.session.Authenticated() {
		msg := "Faça login para sincronizar!"
		o.notifier.Notify(notify.New(models.LevelWarning, models.EventSyncRefused, msg))
		return failure(errors.ErrNotAuthenticated, msg)
	}

	o.notifier.Notify(notify.New(models.LevelInfo, models.EventSyncStarted, "Iniciando sincronização..."))

	res, err := o.fullSync(ctx, true)
	if err != nil {
		if errors.Is(err, errors.ErrSyncInProgress) {
			o.notifier.Notify(notify.New(models.LevelInfo, models.EventSyncRefused, "Sincronização já em andamento"))
		}
		return failure(errors.CodeOf(err), err.Error())
	}

	o.notifier.Notify(notify.New(models.LevelSuccess, models.EventSyncCompleted, "Sincronização concluída!"))
	return res
}

func failure(code errors.ErrorCode, message string) *models.SyncResult {
	return &models.SyncResult{
		Success:   false,
		Message:   message,
		Error:     string(code),
		Timestamp: time.Now().UTC(),
	}
}
