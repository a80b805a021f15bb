package domain

import "time"

// NotificationType is the closed set of events this engine knows how to deliver.
type NotificationType string

const (
	TypeNewMessage          NotificationType = "new_message"
	TypeReply               NotificationType = "reply"
	TypeReaction            NotificationType = "reaction"
	TypeMention             NotificationType = "mention"
	TypeContactRequest      NotificationType = "contact_request"
	TypeContactAccepted     NotificationType = "contact_accepted"
	TypeMemberJoined        NotificationType = "member_joined"
	TypeMemberLeft          NotificationType = "member_left"
	TypeMissedCall          NotificationType = "missed_call"
	TypeSystem              NotificationType = "system"
	TypeConversationCreated NotificationType = "conversation_created"
)

var knownTypes = map[NotificationType]struct{}{
	TypeNewMessage:          {},
	TypeReply:               {},
	TypeReaction:            {},
	TypeMention:             {},
	TypeContactRequest:      {},
	TypeContactAccepted:     {},
	TypeMemberJoined:        {},
	TypeMemberLeft:          {},
	TypeMissedCall:          {},
	TypeSystem:              {},
	TypeConversationCreated: {},
}

// IsValid reports whether t belongs to the closed type enumeration.
func (t NotificationType) IsValid() bool {
	_, ok := knownTypes[t]
	return ok
}

// Spammable reports whether t goes through the sender/recipient rate limiter.
// Only high-volume types are limited; everything else bypasses it.
func (t NotificationType) Spammable() bool {
	return t == TypeMention || t == TypeReaction
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Actor identifies who caused the event. Nil for system notifications.
type Actor struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	Username    string `json:"username,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// DeliveryFlags records per-channel outcomes. These are outcome flags,
// not retry counters; push_sent resolves asynchronously.
type DeliveryFlags struct {
	RealtimeSent bool `json:"realtime_sent"`
	PushSent     bool `json:"push_sent"`
}

// Notification is one delivered event instance as persisted. The
// attachment summary is stored with the record so previews render the
// same on a refetch as they did on the live payload.
type Notification struct {
	ID          string
	RecipientID string
	Type        NotificationType
	Priority    Priority
	Content     string
	Actor       *Actor
	Context     map[string]any
	Metadata    map[string]any
	Attachments []Attachment
	IsRead      bool
	ReadAt      *time.Time
	CreatedAt   time.Time
	ExpiresAt   *time.Time
	Delivery    DeliveryFlags
}

// Attachment is the caller-supplied summary of one attachment, used only
// for preview rendering. The engine never fetches attachment content.
type Attachment struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// CreateInput is the caller contract for a single notification.
// RecipientID is trusted as already resolved by the caller.
type CreateInput struct {
	RecipientID string
	SenderID    string
	Type        NotificationType
	Priority    Priority
	Content     string
	Actor       *Actor
	Context     map[string]any
	Metadata    map[string]any
	Attachments []Attachment
	ExpiresAt   *time.Time
}

// SharedPayload is the batch variant of CreateInput: one payload fanned
// out to many recipients.
type SharedPayload struct {
	SenderID    string
	Type        NotificationType
	Priority    Priority
	Content     string
	Actor       *Actor
	Context     map[string]any
	Metadata    map[string]any
	Attachments []Attachment
	ExpiresAt   *time.Time
}

// ListFilters narrows a recipient's notification query.
type ListFilters struct {
	Type       NotificationType // zero value = all types
	UnreadOnly bool
}
