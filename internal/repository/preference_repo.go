package repository

import (
	"context"
	"errors"

	"notification-engine/internal/domain"
	"notification-engine/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PreferenceStore persists per-user notification settings. Get returns
// ErrNotFound when the user never saved preferences; callers treat that
// as all-defaults.
type PreferenceStore interface {
	Get(ctx context.Context, userID string) (*domain.Preference, error)
	Upsert(ctx context.Context, p *domain.Preference) (*domain.Preference, error)
	Delete(ctx context.Context, userID string) error
}

type pgPreferenceStore struct {
	db *pgxpool.Pool
}

func NewPreferenceStore(db *pgxpool.Pool) PreferenceStore {
	return &pgPreferenceStore{db: db}
}

// Get implements PreferenceStore.
func (p *pgPreferenceStore) Get(ctx context.Context, userID string) (*domain.Preference, error) {
	query := `
		SELECT user_id, type_toggles, push_enabled, sound_enabled, dnd
		FROM notification_preferences
		WHERE user_id = $1`

	var pref domain.Preference
	err := p.db.QueryRow(ctx, query, userID).Scan(
		&pref.UserID,
		&pref.TypeToggles,
		&pref.PushEnabled,
		&pref.SoundEnabled,
		&pref.DND,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, err
	}
	return &pref, nil
}

// Upsert implements PreferenceStore.
func (p *pgPreferenceStore) Upsert(ctx context.Context, pref *domain.Preference) (*domain.Preference, error) {
	query := `
		INSERT INTO notification_preferences (user_id, type_toggles, push_enabled, sound_enabled, dnd)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			type_toggles = EXCLUDED.type_toggles,
			push_enabled = EXCLUDED.push_enabled,
			sound_enabled = EXCLUDED.sound_enabled,
			dnd = EXCLUDED.dnd
		RETURNING user_id, type_toggles, push_enabled, sound_enabled, dnd`

	var saved domain.Preference
	err := p.db.QueryRow(ctx, query,
		pref.UserID,
		pref.TypeToggles,
		pref.PushEnabled,
		pref.SoundEnabled,
		pref.DND,
	).Scan(
		&saved.UserID,
		&saved.TypeToggles,
		&saved.PushEnabled,
		&saved.SoundEnabled,
		&saved.DND,
	)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// Delete implements PreferenceStore.
func (p *pgPreferenceStore) Delete(ctx context.Context, userID string) error {
	ct, err := p.db.Exec(ctx,
		`DELETE FROM notification_preferences WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}
