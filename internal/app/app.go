package app

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"TenderWatch/internal/config"
	"TenderWatch/internal/domain"
	"TenderWatch/internal/infrastructure/email"
	"TenderWatch/internal/infrastructure/lock"
	"TenderWatch/internal/infrastructure/parser"
	"TenderWatch/internal/infrastructure/scheduler"
	"TenderWatch/internal/infrastructure/storage"
	"TenderWatch/internal/infrastructure/telegram"
	"TenderWatch/internal/ledger"
	"TenderWatch/internal/logging"
	"TenderWatch/internal/ports"
	"TenderWatch/internal/scanner"
	"TenderWatch/internal/usecase"
)

// ErrBusy is returned when a maintenance command finds a dispatch tick running.
var ErrBusy = errors.New("dispatcher is running")

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg    config.Config
	logger *slog.Logger
	now    func() time.Time

	subs     *storage.SubscriptionStore
	seen     *storage.SeenStore
	statuses *storage.StatusStore
	options  *config.OptionsFile
	lock     *lock.FileLock
	schedule *scheduler.CronEvaluator
	loc      *time.Location

	dispatcher *usecase.Dispatcher
	harvester  *usecase.Harvester

	mu        sync.Mutex
	sqlLedger *storage.SQLLedger
}

// New builds a runnable application instance.
func New(cfg config.Config, baseLogger *slog.Logger) *Application {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format, nil)
	}
	loc := cfg.Scheduler.Location()
	now := time.Now

	a := &Application{cfg: cfg, logger: baseLogger, now: now, loc: loc}

	store := cfg.Storage
	a.subs = storage.NewSubscriptionStore(store.SubscriptionsDir(), logging.Component(baseLogger, "subscriptions"))
	a.seen = storage.NewSeenStore(store.SeenDir(), logging.Component(baseLogger, "seen"))
	a.statuses = storage.NewStatusStore(store.StatusDir(), now, logging.Component(baseLogger, "status"))
	a.options = config.NewOptionsFile(store.OptionsFile(), cfg.DefaultOptions(), logging.Component(baseLogger, "options"))
	a.lock = lock.NewFileLock(store.LockFile())
	a.schedule = scheduler.NewCronEvaluator()

	cache := storage.NewSnapshotCache(store.CacheFile(), cfg.Harvest.StaleAfter, loc, now, logging.Component(baseLogger, "cache"))

	notifier := email.NewResendNotifier(cfg.Notifications.Email.Endpoint, cfg.Notifications.Email.APIKey, cfg.Notifications.Email.Timeout).
		WithKeySource(func() string { return a.options.Load().ResendAPIKey })

	var ops ports.OpsNotifier
	tg := cfg.Notifications.Telegram
	if tgNotifier := telegram.NewNotifier(tg.APIBase, tg.BotToken, tg.ChatID); tgNotifier.Enabled() {
		ops = tgNotifier
	}

	a.dispatcher = usecase.NewDispatcher(usecase.DispatcherDeps{
		Source:        cache,
		Subscriptions: a.subs,
		Seen:          a.seen,
		OpenLedger: func(ctx context.Context) (ports.DeliveryLedger, error) {
			l, err := a.openLedger(ctx)
			if err != nil {
				return nil, err
			}
			return l, nil
		},
		Statuses:     a.statuses,
		History:      storage.NewHistoryLog(store.HistoryFile()),
		Notifier:     notifier,
		Ops:          ops,
		Schedule:     a.schedule,
		Lock:         a.lock,
		Options:      a.options,
		Location:     loc,
		CleanupEvery: cfg.Scheduler.CleanupEveryMinutes,
		Now:          now,
		Logger:       logging.Component(baseLogger, "dispatcher"),
	})

	registry := scanner.NewRegistry()
	registry.Register(parser.NewPPIPScanner(&http.Client{Timeout: cfg.Harvest.RequestTimeout}))
	source := parser.NewStrategySource(registry, cfg.Harvest.Sources, logging.Component(baseLogger, "source"))

	a.harvester = usecase.NewHarvester(usecase.HarvesterDeps{
		Fetcher: source,
		Cache:   cache,
		Writer:  cache,
		Lock:    lock.NewFileLock(store.HarvestLockFile()),
		Options: a.options,
		Now:     now,
		Logger:  logging.Component(baseLogger, "harvester"),
	})

	return a
}

// Dispatch runs one dispatcher tick.
func (a *Application) Dispatch(ctx context.Context) (usecase.TickReport, error) {
	return a.dispatcher.RunTick(ctx)
}

// Harvest refreshes the tender snapshot.
func (a *Application) Harvest(ctx context.Context, force bool) (usecase.HarvestReport, error) {
	return a.harvester.Run(ctx, force)
}

// SubscriptionView pairs a subscription with its dashboard status and the
// next minute its schedule fires. NextRun is empty when the schedule does
// not parse.
type SubscriptionView struct {
	Subscription domain.Subscription
	Status       domain.StatusFields
	NextRun      string
}

// ListSubscriptions returns every readable subscription with its status.
func (a *Application) ListSubscriptions(ctx context.Context) ([]SubscriptionView, error) {
	subs, err := a.subs.List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]SubscriptionView, 0, len(subs))
	for _, sub := range subs {
		views = append(views, a.view(ctx, sub))
	}
	return views, nil
}

// GetSubscription returns a single subscription with its status.
func (a *Application) GetSubscription(ctx context.Context, id string) (SubscriptionView, error) {
	sub, err := a.subs.Get(ctx, id)
	if err != nil {
		return SubscriptionView{}, err
	}
	return a.view(ctx, sub), nil
}

func (a *Application) view(ctx context.Context, sub domain.Subscription) SubscriptionView {
	v := SubscriptionView{Subscription: sub, Status: a.statuses.Get(ctx, sub.ID)}
	next, err := a.schedule.Next(sub.Schedule, a.now().In(a.loc))
	if err != nil {
		a.logger.Debug("next run unavailable", "job_id", sub.ID, "error", err)
		return v
	}
	v.NextRun = next.Format(time.RFC3339)
	return v
}

// AddSubscription creates a subscription and marks it idle.
func (a *Application) AddSubscription(ctx context.Context, sub domain.Subscription) (domain.Subscription, error) {
	created, err := a.subs.Create(ctx, sub)
	if err != nil {
		return domain.Subscription{}, err
	}
	if err := a.statuses.Update(ctx, created.ID, domain.JobIdle, nil); err != nil {
		a.logger.Warn("initialise status", "job_id", created.ID, "error", err)
	}
	return created, nil
}

// RemoveSubscription deletes the config, status and seen-set of id.
func (a *Application) RemoveSubscription(ctx context.Context, id string) error {
	if err := a.subs.Delete(ctx, id); err != nil {
		return err
	}
	if err := a.statuses.Delete(id); err != nil {
		a.logger.Warn("remove status", "job_id", id, "error", err)
	}
	if err := a.seen.Delete(id); err != nil {
		a.logger.Warn("remove seen-set", "job_id", id, "error", err)
	}
	return nil
}

// LedgerStats summarises the delivery ledger.
func (a *Application) LedgerStats(ctx context.Context) (domain.LedgerStats, error) {
	l, err := a.openLedger(ctx)
	if err != nil {
		return domain.LedgerStats{}, err
	}
	return l.Stats(), nil
}

// PruneLedger removes recipients no valid subscription references. It holds
// the dispatcher lock so it never interleaves with a tick.
func (a *Application) PruneLedger(ctx context.Context) ([]string, error) {
	acquired, err := a.lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, errors.Wrapf(ErrBusy, "lock %s is held", a.lock.Path())
	}
	defer func() {
		if err := a.lock.Unlock(); err != nil {
			a.logger.Error("release execution lock", "error", err)
		}
	}()

	// The first listing repairs malformed configs; the second one includes
	// them so their recipients keep their history.
	if _, err := a.subs.ListValid(ctx); err != nil {
		return nil, err
	}
	subs, err := a.subs.ListValid(ctx)
	if err != nil {
		return nil, err
	}
	active := usecase.ActiveRecipients(subs)

	l, err := a.openLedger(ctx)
	if err != nil {
		return nil, err
	}
	removed := l.Prune(active)
	if len(removed) > 0 {
		if err := l.Save(ctx); err != nil {
			return nil, err
		}
	}
	return removed, nil
}

// Close releases the SQL ledger handle, if one was opened.
func (a *Application) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sqlLedger == nil {
		return nil
	}
	err := a.sqlLedger.Close()
	a.sqlLedger = nil
	return err
}

func (a *Application) openLedger(ctx context.Context) (*ledger.Ledger, error) {
	backend, err := a.ledgerBackend(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.Open(ctx, backend, a.now, logging.Component(a.logger, "ledger"))
}

func (a *Application) ledgerBackend(ctx context.Context) (ledger.Backend, error) {
	switch a.cfg.Ledger.Driver {
	case "", "file":
		return storage.NewFileLedger(a.cfg.Storage.LedgerFile()), nil
	case "sqlite":
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.sqlLedger == nil {
			backend, err := storage.OpenSQLLedger(ctx, a.cfg.Ledger.DSN)
			if err != nil {
				return nil, err
			}
			a.sqlLedger = backend
		}
		return a.sqlLedger, nil
	default:
		return nil, errors.WithHint(errors.Newf("unknown ledger driver %q", a.cfg.Ledger.Driver),
			"set ledger.driver to file or sqlite")
	}
}
