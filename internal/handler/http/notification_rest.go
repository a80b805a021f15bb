package httphandler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"notification-engine/internal/domain"
	"notification-engine/internal/middleware"
	"notification-engine/internal/usecase"
	"notification-engine/pkg/response"
	"notification-engine/pkg/xerrors"
)

type NotificationHandler struct {
	dispatcher *usecase.Dispatcher
	uc         *usecase.NotificationUsecase
}

func NewNotificationHandler(dispatcher *usecase.Dispatcher, uc *usecase.NotificationUsecase) *NotificationHandler {
	return &NotificationHandler{
		dispatcher: dispatcher,
		uc:         uc,
	}
}

// ----------------------
// Dispatch (internal API)
// ----------------------

type createRequest struct {
	RecipientID  string              `json:"recipient_id"`
	RecipientIDs []string            `json:"recipient_ids,omitempty"`
	SenderID     string              `json:"sender_id"`
	Type         string              `json:"type"`
	Priority     string              `json:"priority,omitempty"`
	Content      string              `json:"content"`
	Actor        *domain.Actor       `json:"actor,omitempty"`
	Context      map[string]any      `json:"context,omitempty"`
	Metadata     map[string]any      `json:"metadata,omitempty"`
	Attachments  []domain.Attachment `json:"attachments,omitempty"`
	ExpiresAt    *time.Time          `json:"expires_at,omitempty"`
}

// CreateNotification dispatches one notification. Suppressed outcomes
// answer 202 with no record so senders cannot probe recipient settings.
func (h *NotificationHandler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid input")
		return
	}

	result, err := h.dispatcher.CreateNotification(r.Context(), domain.CreateInput{
		RecipientID: req.RecipientID,
		SenderID:    req.SenderID,
		Type:        domain.NotificationType(req.Type),
		Priority:    domain.Priority(req.Priority),
		Content:     req.Content,
		Actor:       req.Actor,
		Context:     req.Context,
		Metadata:    req.Metadata,
		Attachments: req.Attachments,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, xerrors.ErrUnknownType),
			errors.Is(err, xerrors.ErrRecipientRequired),
			errors.Is(err, xerrors.ErrSenderRequired),
			errors.Is(err, xerrors.ErrInvalidInput):
			response.Error(w, http.StatusBadRequest, err.Error())
		default:
			response.Error(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	if result.Suppressed {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	response.JSON(w, http.StatusCreated, result.Notification)
}

// CreateNotificationsBatch fans one payload out to many recipients.
func (h *NotificationHandler) CreateNotificationsBatch(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid input")
		return
	}

	count, err := h.dispatcher.CreateNotificationsBatch(r.Context(), req.RecipientIDs, domain.SharedPayload{
		SenderID:    req.SenderID,
		Type:        domain.NotificationType(req.Type),
		Priority:    domain.Priority(req.Priority),
		Content:     req.Content,
		Actor:       req.Actor,
		Context:     req.Context,
		Metadata:    req.Metadata,
		Attachments: req.Attachments,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, xerrors.ErrUnknownType), errors.Is(err, xerrors.ErrSenderRequired):
			response.Error(w, http.StatusBadRequest, err.Error())
		default:
			response.Error(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	response.JSON(w, http.StatusCreated, map[string]int{"created": count})
}

// ----------------------
// Read path
// ----------------------

func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	recipientID := middleware.UserID(r)

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	filters := domain.ListFilters{
		Type:       domain.NotificationType(r.URL.Query().Get("type")),
		UnreadOnly: r.URL.Query().Get("unread") == "true",
	}
	if filters.Type != "" && !filters.Type.IsValid() {
		response.Error(w, http.StatusBadRequest, "unknown notification type")
		return
	}

	page, err := h.uc.ListForUser(r.Context(), recipientID, filters, limit, offset)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.JSON(w, http.StatusOK, page)
}

func (h *NotificationHandler) CountUnread(w http.ResponseWriter, r *http.Request) {
	count, err := h.uc.CountUnread(r.Context(), middleware.UserID(r))
	if err != nil {
		response.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.JSON(w, http.StatusOK, map[string]int{"count": count})
}

func (h *NotificationHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	transitioned, err := h.uc.MarkAsRead(r.Context(), id, middleware.UserID(r))
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "notification not found")
			return
		}
		response.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.JSON(w, http.StatusOK, map[string]bool{"transitioned": transitioned})
}

func (h *NotificationHandler) MarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	count, err := h.uc.MarkAllAsRead(r.Context(), middleware.UserID(r))
	if err != nil {
		response.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.JSON(w, http.StatusOK, map[string]int{"marked": count})
}

func (h *NotificationHandler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.uc.Delete(r.Context(), id, middleware.UserID(r)); err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "notification not found")
			return
		}
		response.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) DeleteAllRead(w http.ResponseWriter, r *http.Request) {
	count, err := h.uc.DeleteAllRead(r.Context(), middleware.UserID(r))
	if err != nil {
		response.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.JSON(w, http.StatusOK, map[string]int{"deleted": count})
}

// ----------------------
// Preferences
// ----------------------

func (h *NotificationHandler) GetPreference(w http.ResponseWriter, r *http.Request) {
	pref, err := h.uc.GetPreference(r.Context(), middleware.UserID(r))
	if err != nil {
		response.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.JSON(w, http.StatusOK, pref)
}

func (h *NotificationHandler) UpsertPreference(w http.ResponseWriter, r *http.Request) {
	var pref domain.Preference
	if err := json.NewDecoder(r.Body).Decode(&pref); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid input")
		return
	}
	pref.UserID = middleware.UserID(r)

	saved, err := h.uc.UpsertPreference(r.Context(), &pref)
	if err != nil {
		if errors.Is(err, xerrors.ErrInvalidInput) || errors.Is(err, xerrors.ErrUnknownType) {
			response.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		response.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.JSON(w, http.StatusOK, saved)
}

func (h *NotificationHandler) DeletePreference(w http.ResponseWriter, r *http.Request) {
	if err := h.uc.DeletePreference(r.Context(), middleware.UserID(r)); err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "preferences not found")
			return
		}
		response.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
