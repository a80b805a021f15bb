package domain

// Channel names a delivery mechanism.
type Channel string

const (
	ChannelRealtime Channel = "realtime"
	ChannelPush     Channel = "push"
)

// DNDWindow is a recipient-local do-not-disturb window. Times are
// "HH:MM". When End < Start the window wraps midnight (22:00-08:00
// spans two calendar days). DaysOfWeek uses time.Weekday values; empty
// means every day.
type DNDWindow struct {
	Enabled    bool   `json:"enabled"`
	Start      string `json:"start"`
	End        string `json:"end"`
	DaysOfWeek []int  `json:"days_of_week,omitempty"`
}

// Preference is one recipient's notification settings. A missing record
// is equivalent to the zero policy: every type on except member_left,
// push on, DND off.
type Preference struct {
	UserID string `json:"user_id"`

	// TypeToggles only stores explicit overrides; types absent from the
	// map fall back to their default (see DefaultTypeEnabled).
	TypeToggles map[NotificationType]bool `json:"type_toggles,omitempty"`

	PushEnabled  bool      `json:"push_enabled"`
	SoundEnabled bool      `json:"sound_enabled"` // advisory, consumed by clients
	DND          DNDWindow `json:"dnd"`
}

// DefaultPreference returns the all-defaults record used when a
// recipient has never saved preferences.
func DefaultPreference(userID string) *Preference {
	return &Preference{
		UserID:       userID,
		TypeToggles:  map[NotificationType]bool{},
		PushEnabled:  true,
		SoundEnabled: true,
	}
}

// DefaultTypeEnabled reports the out-of-the-box toggle for t. Low-signal
// types start disabled.
func DefaultTypeEnabled(t NotificationType) bool {
	return t != TypeMemberLeft
}

// TypeEnabled resolves the effective toggle for t, explicit override
// first, default second.
func (p *Preference) TypeEnabled(t NotificationType) bool {
	if p == nil {
		return DefaultTypeEnabled(t)
	}
	if v, ok := p.TypeToggles[t]; ok {
		return v
	}
	return DefaultTypeEnabled(t)
}
