package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"TenderWatch/internal/domain"
	"TenderWatch/internal/ledger"
	"TenderWatch/internal/ports"
)

var tickTime = time.Date(2025, time.March, 10, 9, 15, 0, 0, time.UTC)

func record(id, closeAt string, extra ...string) domain.Record {
	r := domain.Record{"id": id, "title": "Tender " + id, "category_name": "Works", "close_at": closeAt}
	for i := 0; i+1 < len(extra); i += 2 {
		r[extra[i]] = extra[i+1]
	}
	return r
}

func activeRecord(id string, extra ...string) domain.Record {
	return record(id, "2025-03-20T10:00:00Z", extra...)
}

type fakeSource struct {
	snapshot domain.Snapshot
	err      error
}

func (f *fakeSource) Load(context.Context) (domain.Snapshot, error) {
	return f.snapshot, f.err
}

type fakeSubscriptions struct {
	subs  []domain.Subscription
	calls int
}

func (f *fakeSubscriptions) ListValid(context.Context) ([]domain.Subscription, error) {
	f.calls++
	return f.subs, nil
}

type fakeSeen struct {
	sets    map[string]map[string]struct{}
	loadErr map[string]error
	saveErr error
	saves   int
}

func newFakeSeen() *fakeSeen {
	return &fakeSeen{sets: map[string]map[string]struct{}{}, loadErr: map[string]error{}}
}

func (f *fakeSeen) Load(_ context.Context, jobID string) (map[string]struct{}, error) {
	if err := f.loadErr[jobID]; err != nil {
		return nil, err
	}
	out := map[string]struct{}{}
	for id := range f.sets[jobID] {
		out[id] = struct{}{}
	}
	return out, nil
}

func (f *fakeSeen) Save(_ context.Context, jobID string, ids map[string]struct{}) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	f.sets[jobID] = ids
	return nil
}

type memLedgerBackend struct {
	data   ledger.Data
	stores int
}

func (m *memLedgerBackend) Load(context.Context) (ledger.Data, error) { return m.data, nil }

func (m *memLedgerBackend) Store(_ context.Context, data ledger.Data) error {
	m.stores++
	m.data = data
	return nil
}

type statusUpdate struct {
	state  domain.JobState
	fields domain.StatusFields
}

type fakeStatuses struct {
	updates map[string][]statusUpdate
}

func newFakeStatuses() *fakeStatuses {
	return &fakeStatuses{updates: map[string][]statusUpdate{}}
}

func (f *fakeStatuses) Update(_ context.Context, jobID string, state domain.JobState, fields domain.StatusFields) error {
	f.updates[jobID] = append(f.updates[jobID], statusUpdate{state: state, fields: fields})
	return nil
}

func (f *fakeStatuses) last(jobID string) statusUpdate {
	u := f.updates[jobID]
	if len(u) == 0 {
		return statusUpdate{}
	}
	return u[len(u)-1]
}

type fakeHistory struct {
	entries []domain.HistoryEntry
}

func (f *fakeHistory) Append(_ context.Context, e domain.HistoryEntry) error {
	f.entries = append(f.entries, e)
	return nil
}

type fakeNotifier struct {
	sent   []domain.Message
	failTo map[string]bool
}

func (f *fakeNotifier) Send(_ context.Context, msg domain.Message) error {
	for _, to := range msg.To {
		if f.failTo[to] {
			return errors.New("smtp relay unavailable")
		}
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeOps struct {
	digests []string
}

func (f *fakeOps) PublishDigest(_ context.Context, digest string) error {
	f.digests = append(f.digests, digest)
	return nil
}

// everyFiveMinutes is due on minutes divisible by five, except for the
// expression "bad" which fails to parse.
type everyFiveMinutes struct{}

func (everyFiveMinutes) IsDue(expr string, at time.Time) (bool, error) {
	if expr == "bad" {
		return false, errors.New("malformed")
	}
	return at.Minute()%5 == 0, nil
}

type fakeLock struct {
	mu       sync.Mutex
	held     bool
	busy     bool
	acquired int
	released int
}

func (f *fakeLock) TryLock() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy || f.held {
		return false, nil
	}
	f.held = true
	f.acquired++
	return true, nil
}

func (f *fakeLock) Unlock() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held {
		f.held = false
		f.released++
	}
	return nil
}

type staticOptions struct {
	opts domain.DispatchOptions
}

func (s staticOptions) Load() domain.DispatchOptions { return s.opts }

type harness struct {
	source   *fakeSource
	subs     *fakeSubscriptions
	store    ports.SubscriptionStore
	seen     *fakeSeen
	backend  *memLedgerBackend
	statuses *fakeStatuses
	history  *fakeHistory
	notifier *fakeNotifier
	ops      *fakeOps
	lock     *fakeLock
	opts     domain.DispatchOptions
	now      time.Time
}

func newHarness(records []domain.Record, subs ...domain.Subscription) *harness {
	return &harness{
		source:   &fakeSource{snapshot: domain.Snapshot{Timestamp: tickTime, Records: records}},
		subs:     &fakeSubscriptions{subs: subs},
		seen:     newFakeSeen(),
		backend:  &memLedgerBackend{},
		statuses: newFakeStatuses(),
		history:  &fakeHistory{},
		notifier: &fakeNotifier{failTo: map[string]bool{}},
		ops:      &fakeOps{},
		lock:     &fakeLock{},
		opts:     domain.DispatchOptions{NewRecipientMode: domain.NewOnly, SubjectPrefix: "[TW]", EmailFrom: "bot@x"},
		now:      tickTime,
	}
}

func (h *harness) dispatcher() *Dispatcher {
	var subs ports.SubscriptionStore = h.subs
	if h.store != nil {
		subs = h.store
	}
	return NewDispatcher(DispatcherDeps{
		Source:        h.source,
		Subscriptions: subs,
		Seen:          h.seen,
		OpenLedger: func(ctx context.Context) (ports.DeliveryLedger, error) {
			l, err := ledger.Open(ctx, h.backend, func() time.Time { return h.now }, nil)
			if err != nil {
				return nil, err
			}
			return l, nil
		},
		Statuses: h.statuses,
		History:  h.history,
		Notifier: h.notifier,
		Ops:      h.ops,
		Schedule: everyFiveMinutes{},
		Lock:     h.lock,
		Options:  staticOptions{opts: h.opts},
		Location: time.UTC,
		Now:      func() time.Time { return h.now },
	})
}

func (h *harness) sentTo(email string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, id := range h.backend.data.Recipients[email].SentTenders {
		out[id] = struct{}{}
	}
	return out
}

func set(ids ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}
