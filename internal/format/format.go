// Package format maps persisted notifications into their outward view.
package format

import (
	"fmt"
	"strings"

	"notification-engine/internal/domain"
	"notification-engine/pkg/sanitize"
)

// DefaultPreviewWords caps how many words of content make it into a
// preview before truncation.
const DefaultPreviewWords = 20

// Preview builds the short text shown in channel payloads. Truncation
// counts words, not characters; when there is no text but attachments
// exist the preview becomes an attachment placeholder.
func Preview(content string, attachments []domain.Attachment, maxWords int) string {
	if maxWords <= 0 {
		maxWords = DefaultPreviewWords
	}
	text := strings.TrimSpace(content)
	if text == "" {
		if n := len(attachments); n > 0 {
			if n == 1 {
				return "📎 1 file"
			}
			return fmt.Sprintf("📎 %d files", n)
		}
		return ""
	}
	words := strings.Fields(text)
	if len(words) > maxWords {
		text = strings.Join(words[:maxWords], " ") + "…"
	}
	return sanitize.Truncate(text, sanitize.MaxPreviewLen)
}

// ToEvent is a pure structural transform from record to outward event.
// The realtime channel payload and the list API both go through here,
// so the two shapes cannot diverge.
func ToEvent(n *domain.Notification) *domain.Event {
	if n == nil {
		return nil
	}
	return &domain.Event{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		Type:        n.Type,
		Priority:    n.Priority,
		Content:     n.Content,
		Preview:     Preview(n.Content, n.Attachments, DefaultPreviewWords),
		Actor:       n.Actor,
		Context:     n.Context,
		Metadata:    n.Metadata,
		Attachments: n.Attachments,
		IsRead:      n.IsRead,
		ReadAt:      n.ReadAt,
		CreatedAt:   n.CreatedAt,
		ExpiresAt:   n.ExpiresAt,
		Delivery:    n.Delivery,
	}
}
