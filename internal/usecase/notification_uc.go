package usecase

import (
	"context"
	"fmt"
	"log"
	"time"

	"notification-engine/internal/domain"
	"notification-engine/internal/format"
	"notification-engine/internal/repository"
	"notification-engine/pkg/xerrors"
)

// NotificationUsecase serves the recipient-facing read path: listing,
// read-marking, deletion and preference management. All operations are
// scoped to the recipient the caller already authenticated.
type NotificationUsecase struct {
	store repository.Store
	prefs repository.PreferenceStore
	now   func() time.Time
}

func NewNotificationUsecase(store repository.Store, prefs repository.PreferenceStore) *NotificationUsecase {
	return &NotificationUsecase{
		store: store,
		prefs: prefs,
		now:   time.Now,
	}
}

// ListPage is one page of formatted notifications.
type ListPage struct {
	Items []*domain.Event `json:"items"`
	Total int             `json:"total"`
}

// ListForUser prunes the recipient's expired records, then returns one
// page. Items go through the same formatter as realtime payloads.
func (uc *NotificationUsecase) ListForUser(ctx context.Context, recipientID string, filters domain.ListFilters, limit, offset int) (*ListPage, error) {
	if recipientID == "" {
		return nil, xerrors.ErrRecipientRequired
	}
	if limit <= 0 {
		limit = 20
	}

	if pruned, err := uc.store.PruneExpired(ctx, recipientID); err != nil {
		// Pruning is housekeeping; a failure must not hide the list.
		log.Printf("[notifications] prune failed for user=%s: %v", recipientID, err)
	} else if pruned > 0 {
		log.Printf("[notifications] pruned %d expired for user=%s", pruned, recipientID)
	}

	records, total, err := uc.store.Query(ctx, recipientID, filters, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	items := make([]*domain.Event, 0, len(records))
	for _, n := range records {
		items = append(items, format.ToEvent(n))
	}
	return &ListPage{Items: items, Total: total}, nil
}

// MarkAsRead is idempotent: the first call sets read_at, later calls
// change nothing and still succeed. The returned flag reports whether
// this call made the transition.
func (uc *NotificationUsecase) MarkAsRead(ctx context.Context, id, recipientID string) (bool, error) {
	if id == "" || recipientID == "" {
		return false, xerrors.ErrInvalidInput
	}
	return uc.store.MarkRead(ctx, id, recipientID, uc.now())
}

// MarkAllAsRead returns how many records transitioned.
func (uc *NotificationUsecase) MarkAllAsRead(ctx context.Context, recipientID string) (int, error) {
	if recipientID == "" {
		return 0, xerrors.ErrRecipientRequired
	}
	return uc.store.MarkAllRead(ctx, recipientID, uc.now())
}

// Delete removes one notification owned by the recipient.
func (uc *NotificationUsecase) Delete(ctx context.Context, id, recipientID string) error {
	if id == "" || recipientID == "" {
		return xerrors.ErrInvalidInput
	}
	deleted, err := uc.store.DeleteByID(ctx, id, recipientID)
	if err != nil {
		return err
	}
	if !deleted {
		return xerrors.ErrNotFound
	}
	return nil
}

// DeleteAllRead clears the recipient's read notifications and reports
// how many were removed.
func (uc *NotificationUsecase) DeleteAllRead(ctx context.Context, recipientID string) (int, error) {
	if recipientID == "" {
		return 0, xerrors.ErrRecipientRequired
	}
	return uc.store.DeleteAllRead(ctx, recipientID)
}

// CountUnread reports the recipient's unread badge count.
func (uc *NotificationUsecase) CountUnread(ctx context.Context, recipientID string) (int, error) {
	if recipientID == "" {
		return 0, xerrors.ErrRecipientRequired
	}
	return uc.store.CountUnread(ctx, recipientID)
}

// GetPreference returns the stored record, or the defaults when the
// user never saved one.
func (uc *NotificationUsecase) GetPreference(ctx context.Context, userID string) (*domain.Preference, error) {
	if userID == "" {
		return nil, xerrors.ErrRecipientRequired
	}
	pref, err := uc.prefs.Get(ctx, userID)
	if err != nil {
		if err == xerrors.ErrNotFound {
			return domain.DefaultPreference(userID), nil
		}
		return nil, err
	}
	return pref, nil
}

// UpsertPreference validates and saves the user's settings.
func (uc *NotificationUsecase) UpsertPreference(ctx context.Context, pref *domain.Preference) (*domain.Preference, error) {
	if pref == nil || pref.UserID == "" {
		return nil, xerrors.ErrInvalidInput
	}
	for t := range pref.TypeToggles {
		if !t.IsValid() {
			return nil, xerrors.ErrUnknownType
		}
	}
	if pref.DND.Enabled {
		if !validClock(pref.DND.Start) || !validClock(pref.DND.End) {
			return nil, xerrors.ErrInvalidInput
		}
		for _, d := range pref.DND.DaysOfWeek {
			if d < 0 || d > 6 {
				return nil, xerrors.ErrInvalidInput
			}
		}
	}
	return uc.prefs.Upsert(ctx, pref)
}

// DeletePreference resets the user to defaults.
func (uc *NotificationUsecase) DeletePreference(ctx context.Context, userID string) error {
	if userID == "" {
		return xerrors.ErrRecipientRequired
	}
	return uc.prefs.Delete(ctx, userID)
}

func validClock(s string) bool {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return false
	}
	return h >= 0 && h <= 23 && m >= 0 && m <= 59
}
