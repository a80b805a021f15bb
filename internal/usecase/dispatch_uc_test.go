package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"notification-engine/internal/domain"
	"notification-engine/internal/ratelimit"
	"notification-engine/internal/repository"
	"notification-engine/pkg/notifier"
	"notification-engine/pkg/xerrors"
)

// ----------------------
// Fakes
// ----------------------

var (
	_ repository.Store           = (*fakeStore)(nil)
	_ repository.PreferenceStore = (*fakePrefStore)(nil)
	_ notifier.Channel           = (*fakeChannel)(nil)
)

type fakeStore struct {
	mu         sync.Mutex
	byID       map[string]*domain.Notification
	order      []string
	nextID     int
	insertErr  error
	inserts    int
	bulkCalls  int
	flagWrites int
}

func newFakeStore() *fakeStore {
	return &fakeStore{byID: make(map[string]*domain.Notification)}
}

func (f *fakeStore) saveLocked(n *domain.Notification) *domain.Notification {
	f.nextID++
	stored := *n
	stored.ID = fmt.Sprintf("n%d", f.nextID)
	stored.CreatedAt = time.Date(2026, 8, 17, 12, 0, 0, 0, time.UTC).Add(time.Duration(f.nextID) * time.Second)
	f.byID[stored.ID] = &stored
	f.order = append(f.order, stored.ID)
	copied := stored
	return &copied
}

func (f *fakeStore) Insert(_ context.Context, n *domain.Notification) (*domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.inserts++
	return f.saveLocked(n), nil
}

func (f *fakeStore) InsertMany(_ context.Context, ns []*domain.Notification) ([]*domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.bulkCalls++
	out := make([]*domain.Notification, 0, len(ns))
	for _, n := range ns {
		out = append(out, f.saveLocked(n))
	}
	return out, nil
}

func (f *fakeStore) GetByID(_ context.Context, id, recipientID string) (*domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.byID[id]
	if !ok || n.RecipientID != recipientID {
		return nil, xerrors.ErrNotFound
	}
	copied := *n
	return &copied, nil
}

func (f *fakeStore) UpdateDeliveryFlags(_ context.Context, id string, flags domain.DeliveryFlags) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.byID[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	n.Delivery = flags
	f.flagWrites++
	return nil
}

func (f *fakeStore) MarkRead(_ context.Context, id, recipientID string, readAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.byID[id]
	if !ok || n.RecipientID != recipientID {
		return false, xerrors.ErrNotFound
	}
	if n.IsRead {
		return false, nil
	}
	n.IsRead = true
	n.ReadAt = &readAt
	return true, nil
}

func (f *fakeStore) MarkAllRead(_ context.Context, recipientID string, readAt time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, n := range f.byID {
		if n.RecipientID == recipientID && !n.IsRead {
			n.IsRead = true
			n.ReadAt = &readAt
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) DeleteByID(_ context.Context, id, recipientID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.byID[id]
	if !ok || n.RecipientID != recipientID {
		return false, nil
	}
	delete(f.byID, id)
	return true, nil
}

func (f *fakeStore) DeleteAllRead(_ context.Context, recipientID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for id, n := range f.byID {
		if n.RecipientID == recipientID && n.IsRead {
			delete(f.byID, id)
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) Query(_ context.Context, recipientID string, filters domain.ListFilters, limit, offset int) ([]*domain.Notification, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var matched []*domain.Notification
	for _, id := range f.order {
		n, ok := f.byID[id]
		if !ok || n.RecipientID != recipientID {
			continue
		}
		if filters.Type != "" && n.Type != filters.Type {
			continue
		}
		if filters.UnreadOnly && n.IsRead {
			continue
		}
		copied := *n
		matched = append(matched, &copied)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	if offset > len(matched) {
		offset = len(matched)
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (f *fakeStore) CountUnread(_ context.Context, recipientID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, n := range f.byID {
		if n.RecipientID == recipientID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) PruneExpired(_ context.Context, recipientID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	count := 0
	for id, n := range f.byID {
		if n.RecipientID == recipientID && n.ExpiresAt != nil && !n.ExpiresAt.After(now) {
			delete(f.byID, id)
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID)
}

type fakePrefStore struct {
	mu    sync.Mutex
	prefs map[string]*domain.Preference
	err   error
}

func newFakePrefStore() *fakePrefStore {
	return &fakePrefStore{prefs: make(map[string]*domain.Preference)}
}

func (f *fakePrefStore) Get(_ context.Context, userID string) (*domain.Preference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.prefs[userID]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return p, nil
}

func (f *fakePrefStore) Upsert(_ context.Context, p *domain.Preference) (*domain.Preference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefs[p.UserID] = p
	return p, nil
}

func (f *fakePrefStore) Delete(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.prefs[userID]; !ok {
		return xerrors.ErrNotFound
	}
	delete(f.prefs, userID)
	return nil
}

type deliverCall struct {
	recipientID string
	event       *domain.Event
}

type fakeChannel struct {
	mu      sync.Mutex
	name    domain.Channel
	outcome notifier.Outcome
	calls   []deliverCall
}

func (f *fakeChannel) Name() domain.Channel { return f.name }

func (f *fakeChannel) Deliver(_ context.Context, recipientID string, event *domain.Event) notifier.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, deliverCall{recipientID: recipientID, event: event})
	return f.outcome
}

func (f *fakeChannel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeChannel) lastEvent() *domain.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1].event
}

func (f *fakeChannel) recipients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.recipientID)
	}
	return out
}

// ----------------------
// Harness
// ----------------------

type dispatchFixture struct {
	store    *fakeStore
	prefs    *fakePrefStore
	limiter  *ratelimit.Limiter
	realtime *fakeChannel
	push     *fakeChannel
	d        *Dispatcher
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	f := &dispatchFixture{
		store:    newFakeStore(),
		prefs:    newFakePrefStore(),
		limiter:  ratelimit.New(),
		realtime: &fakeChannel{name: domain.ChannelRealtime, outcome: notifier.Outcome{Attempted: true, Delivered: true}},
		push:     &fakeChannel{name: domain.ChannelPush, outcome: notifier.Outcome{Attempted: true, Delivered: true}},
	}
	f.d = NewDispatcher(f.store, f.prefs, f.limiter, f.realtime, f.push)
	return f
}

func mentionInput(recipientID string) domain.CreateInput {
	return domain.CreateInput{
		RecipientID: recipientID,
		SenderID:    "sender-1",
		Type:        domain.TypeMention,
		Content:     "you were mentioned",
		Actor:       &domain.Actor{ID: "sender-1", Username: "alice"},
		Context:     map[string]any{"conversation_id": "c1"},
	}
}

// ----------------------
// Tests
// ----------------------

func TestCreateNotification_HappyPath(t *testing.T) {
	f := newDispatchFixture(t)

	res, err := f.d.CreateNotification(context.Background(), mentionInput("r1"))
	if err != nil {
		t.Fatalf("CreateNotification: %v", err)
	}
	if res.Suppressed {
		t.Fatal("unexpected suppression")
	}
	if res.Notification == nil || res.Notification.ID == "" {
		t.Fatal("expected a persisted record")
	}
	if !res.Notification.Delivery.RealtimeSent {
		t.Error("realtime attempt should be flagged")
	}
	if res.Notification.Priority != domain.PriorityNormal {
		t.Errorf("priority default = %q", res.Notification.Priority)
	}
	if f.realtime.callCount() != 1 {
		t.Errorf("realtime delivered %d times, want 1", f.realtime.callCount())
	}

	f.d.Wait()
	if f.push.callCount() != 1 {
		t.Errorf("push delivered %d times, want 1", f.push.callCount())
	}
	stored, err := f.store.GetByID(context.Background(), res.Notification.ID, "r1")
	if err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if !stored.Delivery.PushSent || !stored.Delivery.RealtimeSent {
		t.Errorf("delivery flags not written back: %+v", stored.Delivery)
	}
}

func TestCreateNotification_Validation(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		input domain.CreateInput
		want  error
	}{
		{"unknown type", domain.CreateInput{RecipientID: "r1", SenderID: "s1", Type: "carrier_pigeon"}, xerrors.ErrUnknownType},
		{"missing recipient", domain.CreateInput{SenderID: "s1", Type: domain.TypeReply}, xerrors.ErrRecipientRequired},
		{"missing sender", domain.CreateInput{RecipientID: "r1", Type: domain.TypeReply}, xerrors.ErrSenderRequired},
		{"bad priority", func() domain.CreateInput {
			in := mentionInput("r1")
			in.Priority = "shouty"
			return in
		}(), xerrors.ErrInvalidInput},
	}
	for _, c := range cases {
		if _, err := f.d.CreateNotification(ctx, c.input); !errors.Is(err, c.want) {
			t.Errorf("%s: err = %v, want %v", c.name, err, c.want)
		}
	}
	// no side effects from rejected input
	if f.store.len() != 0 || f.realtime.callCount() != 0 {
		t.Error("validation failures must leave no side effects")
	}

	// system notifications need no sender
	if _, err := f.d.CreateNotification(ctx, domain.CreateInput{
		RecipientID: "r1",
		Type:        domain.TypeSystem,
		Content:     "maintenance tonight",
	}); err != nil {
		t.Errorf("system notification without sender: %v", err)
	}
}

func TestCreateNotification_SanitizesInput(t *testing.T) {
	f := newDispatchFixture(t)

	in := mentionInput("r1")
	in.Content = "<b>hey</b> <script>alert(1)</script>there"
	in.Actor.AvatarURL = "javascript:alert(1)"
	in.Actor.DisplayName = "<i>Alice</i>"

	res, err := f.d.CreateNotification(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateNotification: %v", err)
	}
	n := res.Notification
	if n.Content != "hey alert(1)there" {
		t.Errorf("content = %q", n.Content)
	}
	if n.Actor.AvatarURL != "" {
		t.Errorf("script-scheme avatar survived: %q", n.Actor.AvatarURL)
	}
	if n.Actor.DisplayName != "Alice" {
		t.Errorf("display name = %q", n.Actor.DisplayName)
	}
}

func TestCreateNotification_RateLimitBoundary(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := f.d.CreateNotification(ctx, mentionInput("r1"))
		if err != nil || res.Suppressed {
			t.Fatalf("mention %d: err=%v suppressed=%v", i+1, err, res.Suppressed)
		}
	}

	res, err := f.d.CreateNotification(ctx, mentionInput("r1"))
	if err != nil {
		t.Fatalf("6th mention errored: %v", err)
	}
	if !res.Suppressed || res.Notification != nil {
		t.Fatal("6th mention should be silently suppressed with no record")
	}
	if f.store.len() != 5 {
		t.Fatalf("store has %d records, want 5", f.store.len())
	}
}

func TestCreateNotification_NonSpammableBypassesLimiter(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		in := mentionInput("r1")
		in.Type = domain.TypeReply
		res, err := f.d.CreateNotification(ctx, in)
		if err != nil || res.Suppressed {
			t.Fatalf("reply %d should bypass limiter: err=%v suppressed=%v", i+1, err, res.Suppressed)
		}
	}
}

func TestCreateNotification_TypeToggleSuppresses(t *testing.T) {
	f := newDispatchFixture(t)

	pref := domain.DefaultPreference("r1")
	pref.TypeToggles[domain.TypeMention] = false
	f.prefs.prefs["r1"] = pref

	res, err := f.d.CreateNotification(context.Background(), mentionInput("r1"))
	if err != nil {
		t.Fatalf("CreateNotification: %v", err)
	}
	if !res.Suppressed || res.Notification != nil {
		t.Fatal("disabled type should suppress with no record")
	}
	if f.store.len() != 0 || f.realtime.callCount() != 0 || f.push.callCount() != 0 {
		t.Fatal("suppression must have no side effects")
	}
}

func TestCreateNotification_DNDGatesPushNotRealtime(t *testing.T) {
	f := newDispatchFixture(t)
	fixed := time.Date(2026, 8, 17, 23, 30, 0, 0, time.UTC)
	f.d = NewDispatcher(f.store, f.prefs, f.limiter, f.realtime, f.push, WithClock(func() time.Time { return fixed }))

	pref := domain.DefaultPreference("r1")
	pref.DND = domain.DNDWindow{Enabled: true, Start: "22:00", End: "08:00"}
	f.prefs.prefs["r1"] = pref

	in := mentionInput("r1")
	in.Type = domain.TypeReply

	res, err := f.d.CreateNotification(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateNotification: %v", err)
	}
	if res.Notification == nil {
		t.Fatal("DND must not block record creation")
	}
	if !res.Notification.Delivery.RealtimeSent {
		t.Error("realtime must be attempted during DND")
	}

	f.d.Wait()
	if f.push.callCount() != 0 {
		t.Error("push must be gated out during DND")
	}
	stored, _ := f.store.GetByID(context.Background(), res.Notification.ID, "r1")
	if stored.Delivery.PushSent {
		t.Error("push flag must stay false when gated")
	}
	if !stored.Delivery.RealtimeSent {
		t.Error("realtime flag must be persisted by the follow-up write")
	}
}

func TestCreateNotification_PushFailureNeverFailsCall(t *testing.T) {
	f := newDispatchFixture(t)
	f.push.outcome = notifier.Outcome{Attempted: true, Delivered: false, Err: errors.New("provider unreachable")}

	res, err := f.d.CreateNotification(context.Background(), mentionInput("r1"))
	if err != nil {
		t.Fatalf("push failure leaked to the caller: %v", err)
	}

	f.d.Wait()
	stored, _ := f.store.GetByID(context.Background(), res.Notification.ID, "r1")
	if stored.Delivery.PushSent {
		t.Error("push flag should resolve to false on failure")
	}
}

func TestCreateNotification_PersistFailureIsFatal(t *testing.T) {
	f := newDispatchFixture(t)
	f.store.insertErr = errors.New("connection refused")

	_, err := f.d.CreateNotification(context.Background(), mentionInput("r1"))
	if !errors.Is(err, xerrors.ErrPersistFailed) {
		t.Fatalf("err = %v, want ErrPersistFailed", err)
	}
	if f.realtime.callCount() != 0 || f.push.callCount() != 0 {
		t.Error("nothing may be dispatched when persistence fails")
	}
}

func TestCreateNotificationsBatch_Cardinality(t *testing.T) {
	f := newDispatchFixture(t)

	recipients := []string{"r1", "r2", "r3", "r4"}
	count, err := f.d.CreateNotificationsBatch(context.Background(), recipients, domain.SharedPayload{
		SenderID: "admin-1",
		Type:     domain.TypeMemberJoined,
		Content:  "carol joined the workspace",
	})
	if err != nil {
		t.Fatalf("CreateNotificationsBatch: %v", err)
	}
	if count != len(recipients) {
		t.Fatalf("created %d, want %d", count, len(recipients))
	}
	if f.store.bulkCalls != 1 || f.store.inserts != 0 {
		t.Fatalf("want exactly one bulk insert, got bulk=%d single=%d", f.store.bulkCalls, f.store.inserts)
	}
	if f.realtime.callCount() != len(recipients) {
		t.Fatalf("realtime attempts = %d, want %d", f.realtime.callCount(), len(recipients))
	}
	got := f.realtime.recipients()
	sort.Strings(got)
	if fmt.Sprint(got) != fmt.Sprint(recipients) {
		t.Errorf("realtime recipients = %v", got)
	}
	f.d.Wait()
}

func TestCreateNotificationsBatch_RespectsToggles(t *testing.T) {
	f := newDispatchFixture(t)

	// B disabled mentions; C and D did not
	pref := domain.DefaultPreference("b")
	pref.TypeToggles[domain.TypeMention] = false
	f.prefs.prefs["b"] = pref

	count, err := f.d.CreateNotificationsBatch(context.Background(), []string{"b", "c", "d"}, domain.SharedPayload{
		SenderID: "s1",
		Type:     domain.TypeMention,
		Content:  "@everyone look",
	})
	if err != nil {
		t.Fatalf("CreateNotificationsBatch: %v", err)
	}
	if count != 2 {
		t.Fatalf("created %d, want 2", count)
	}
	if f.store.len() != 2 {
		t.Fatalf("store has %d records, want 2", f.store.len())
	}
	for _, rid := range f.realtime.recipients() {
		if rid == "b" {
			t.Error("recipient with disabled toggle must receive nothing")
		}
	}
	f.d.Wait()
}

func TestCreateNotificationsBatch_UnknownType(t *testing.T) {
	f := newDispatchFixture(t)

	if _, err := f.d.CreateNotificationsBatch(context.Background(), []string{"r1"}, domain.SharedPayload{
		SenderID: "s1",
		Type:     "smoke_signal",
	}); !errors.Is(err, xerrors.ErrUnknownType) {
		t.Fatalf("err = %v, want ErrUnknownType", err)
	}
}

func TestDispatcher_InjectedClockControlsGating(t *testing.T) {
	f := newDispatchFixture(t)

	// pin the dispatcher inside the recipient's DND window
	fixed := time.Date(2026, 8, 17, 23, 30, 0, 0, time.UTC)
	f.d = NewDispatcher(f.store, f.prefs, f.limiter, f.realtime, f.push, WithClock(func() time.Time { return fixed }))

	pref := domain.DefaultPreference("r1")
	pref.DND = domain.DNDWindow{Enabled: true, Start: "22:00", End: "08:00"}
	f.prefs.prefs["r1"] = pref

	in := mentionInput("r1")
	in.Type = domain.TypeReply
	if _, err := f.d.CreateNotification(context.Background(), in); err != nil {
		t.Fatalf("CreateNotification: %v", err)
	}
	f.d.Wait()
	if f.push.callCount() != 0 {
		t.Error("23:30 falls inside 22:00-08:00, push must be gated")
	}
}
