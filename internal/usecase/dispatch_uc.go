package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"notification-engine/internal/domain"
	"notification-engine/internal/format"
	"notification-engine/internal/gate"
	"notification-engine/internal/ratelimit"
	"notification-engine/internal/repository"
	"notification-engine/pkg/notifier"
	"notification-engine/pkg/sanitize"
	"notification-engine/pkg/xerrors"
)

// DispatchResult is what a create call hands back. Suppressed results
// carry no record: rate-limited and preference-gated notifications are
// silently dropped and indistinguishable from delivered ones on the
// sender's side.
type DispatchResult struct {
	Notification *domain.Notification
	Suppressed   bool
	Realtime     notifier.Outcome
}

// Dispatcher is the engine entry point. It validates and sanitizes
// input, applies the preference gate and rate limiter, persists, then
// fans out to the channels. Channel failures never fail the call;
// persistence failure is the only fatal step.
type Dispatcher struct {
	store    repository.Store
	prefs    repository.PreferenceStore
	limiter  *ratelimit.Limiter
	realtime notifier.Channel
	push     notifier.Channel
	now      func() time.Time

	inflight sync.WaitGroup
}

// DispatcherOption mutates a Dispatcher during construction.
type DispatcherOption func(*Dispatcher)

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(
	store repository.Store,
	prefs repository.PreferenceStore,
	limiter *ratelimit.Limiter,
	realtime notifier.Channel,
	push notifier.Channel,
	opts ...DispatcherOption,
) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		prefs:    prefs,
		limiter:  limiter,
		realtime: realtime,
		push:     push,
		now:      time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Wait blocks until all detached push deliveries have settled. Called
// on shutdown so in-flight attempts get their follow-up flag write.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

// CreateNotification runs the full dispatch pipeline for one recipient.
func (d *Dispatcher) CreateNotification(ctx context.Context, input domain.CreateInput) (*DispatchResult, error) {
	if err := validateInput(&input); err != nil {
		return nil, err
	}
	sanitizeInput(&input)

	now := d.now()

	if input.Type.Spammable() && !d.limiter.Admit(input.SenderID, input.RecipientID, input.Type) {
		log.Printf("[dispatch] rate-limited: sender=%s recipient=%s type=%s", input.SenderID, input.RecipientID, input.Type)
		return &DispatchResult{Suppressed: true}, nil
	}

	pref := d.loadPreference(ctx, input.RecipientID)
	if !pref.TypeEnabled(input.Type) {
		return &DispatchResult{Suppressed: true}, nil
	}

	created, err := d.store.Insert(ctx, recordFromInput(&input))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", xerrors.ErrPersistFailed, err)
	}

	event := format.ToEvent(created)

	realtimeOut := d.realtime.Deliver(ctx, created.RecipientID, event)
	created.Delivery.RealtimeSent = realtimeOut.Attempted

	d.dispatchPush(created, event, pref, now)

	return &DispatchResult{Notification: created, Realtime: realtimeOut}, nil
}

// CreateNotificationsBatch fans one payload out to many recipients:
// one sanitation pass, one bulk insert, then N realtime attempts. Cost
// stays linear in the number of recipients. Returns how many records
// were created after per-recipient gating.
func (d *Dispatcher) CreateNotificationsBatch(ctx context.Context, recipientIDs []string, payload domain.SharedPayload) (int, error) {
	if !payload.Type.IsValid() {
		return 0, xerrors.ErrUnknownType
	}
	if payload.Type != domain.TypeSystem && payload.SenderID == "" {
		return 0, xerrors.ErrSenderRequired
	}
	sanitizePayload(&payload)

	now := d.now()

	type target struct {
		recipientID string
		pref        *domain.Preference
	}
	targets := make([]target, 0, len(recipientIDs))
	records := make([]*domain.Notification, 0, len(recipientIDs))
	for _, rid := range recipientIDs {
		if rid == "" {
			continue
		}
		if payload.Type.Spammable() && !d.limiter.Admit(payload.SenderID, rid, payload.Type) {
			continue
		}
		pref := d.loadPreference(ctx, rid)
		if !pref.TypeEnabled(payload.Type) {
			continue
		}
		targets = append(targets, target{recipientID: rid, pref: pref})
		records = append(records, recordFromPayload(rid, &payload))
	}
	if len(records) == 0 {
		return 0, nil
	}

	created, err := d.store.InsertMany(ctx, records)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", xerrors.ErrPersistFailed, err)
	}

	for i, n := range created {
		event := format.ToEvent(n)
		out := d.realtime.Deliver(ctx, n.RecipientID, event)
		n.Delivery.RealtimeSent = out.Attempted
		d.dispatchPush(n, event, targets[i].pref, now)
	}
	return len(created), nil
}

// dispatchPush gates the push channel and detaches the attempt. The
// single follow-up flag write happens once the attempt settles, never
// speculatively; the caller is never blocked on the provider.
func (d *Dispatcher) dispatchPush(n *domain.Notification, event *domain.Event, pref *domain.Preference, now time.Time) {
	pushAllowed := gate.ShouldDeliver(pref, n.Type, domain.ChannelPush, now)

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[dispatch] panic recovered in push dispatch: %v", r)
			}
		}()

		flags := n.Delivery
		if pushAllowed {
			out := d.push.Deliver(context.Background(), n.RecipientID, event)
			flags.PushSent = out.Delivered
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.store.UpdateDeliveryFlags(ctx, n.ID, flags); err != nil {
			log.Printf("[dispatch] delivery flag update failed for id=%s: %v", n.ID, err)
		}
	}()
}

// loadPreference fetches the recipient's settings, treating a missing
// record as all-defaults and failing open on store errors.
func (d *Dispatcher) loadPreference(ctx context.Context, recipientID string) *domain.Preference {
	pref, err := d.prefs.Get(ctx, recipientID)
	if err != nil {
		if !errors.Is(err, xerrors.ErrNotFound) {
			log.Printf("[dispatch] preference lookup failed for user=%s: %v", recipientID, err)
		}
		return nil
	}
	return pref
}

func validateInput(input *domain.CreateInput) error {
	if !input.Type.IsValid() {
		return xerrors.ErrUnknownType
	}
	if input.RecipientID == "" {
		return xerrors.ErrRecipientRequired
	}
	if input.Type != domain.TypeSystem && input.SenderID == "" {
		return xerrors.ErrSenderRequired
	}
	if input.Priority != "" && !input.Priority.IsValid() {
		return xerrors.ErrInvalidInput
	}
	return nil
}

func sanitizeInput(input *domain.CreateInput) {
	input.Content = sanitize.Truncate(sanitize.Text(input.Content), sanitize.MaxContentLen)
	input.Actor = sanitizeActor(input.Actor)
	input.Attachments = sanitizeAttachments(input.Attachments)
	if input.Priority == "" {
		input.Priority = domain.PriorityNormal
	}
}

func sanitizePayload(p *domain.SharedPayload) {
	p.Content = sanitize.Truncate(sanitize.Text(p.Content), sanitize.MaxContentLen)
	p.Actor = sanitizeActor(p.Actor)
	p.Attachments = sanitizeAttachments(p.Attachments)
	if p.Priority == "" {
		p.Priority = domain.PriorityNormal
	}
}

func sanitizeAttachments(atts []domain.Attachment) []domain.Attachment {
	if len(atts) == 0 {
		return nil
	}
	out := make([]domain.Attachment, len(atts))
	for i, a := range atts {
		out[i] = domain.Attachment{
			Name: sanitize.Truncate(sanitize.Text(a.Name), sanitize.MaxTitleLen),
			Kind: sanitize.Text(a.Kind),
		}
	}
	return out
}

func sanitizeActor(a *domain.Actor) *domain.Actor {
	if a == nil {
		return nil
	}
	return &domain.Actor{
		ID:          a.ID,
		DisplayName: sanitize.Truncate(sanitize.Text(a.DisplayName), sanitize.MaxTitleLen),
		Username:    sanitize.Username(a.Username),
		AvatarURL:   sanitize.URL(a.AvatarURL),
	}
}

func recordFromInput(input *domain.CreateInput) *domain.Notification {
	return &domain.Notification{
		RecipientID: input.RecipientID,
		Type:        input.Type,
		Priority:    input.Priority,
		Content:     input.Content,
		Actor:       input.Actor,
		Context:     input.Context,
		Metadata:    input.Metadata,
		Attachments: input.Attachments,
		ExpiresAt:   input.ExpiresAt,
	}
}

func recordFromPayload(recipientID string, p *domain.SharedPayload) *domain.Notification {
	return &domain.Notification{
		RecipientID: recipientID,
		Type:        p.Type,
		Priority:    p.Priority,
		Content:     p.Content,
		Actor:       p.Actor,
		Context:     p.Context,
		Metadata:    p.Metadata,
		Attachments: p.Attachments,
		ExpiresAt:   p.ExpiresAt,
	}
}
