package domain

import "time"

// Event is the outward view of a notification. It is the only wire
// contract this engine exposes: the realtime channel pushes it and the
// list API returns it, built by the same formatter so the two can
// never diverge.
type Event struct {
	ID          string           `json:"id"`
	RecipientID string           `json:"recipient_id"`
	Type        NotificationType `json:"type"`
	Priority    Priority         `json:"priority"`
	Content     string           `json:"content"`
	Preview     string           `json:"preview,omitempty"`
	Actor       *Actor           `json:"actor,omitempty"`
	Context     map[string]any   `json:"context,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
	Attachments []Attachment     `json:"attachments,omitempty"`
	IsRead      bool             `json:"is_read"`
	ReadAt      *time.Time       `json:"read_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	ExpiresAt   *time.Time       `json:"expires_at,omitempty"`
	Delivery    DeliveryFlags    `json:"delivery"`
}
