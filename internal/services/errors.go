package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/AnshRaj112/marketbot-backend/internal/models"
	"github.com/AnshRaj112/marketbot-backend/internal/store"
)

var (
	// ErrPermissionDenied is wrapped by every *PermissionError.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrStaleStep means another event already advanced the session past the
	// step this event was computed against. Callers treat it as a no-op.
	ErrStaleStep = errors.New("stale session step")
	// ErrAbuseDetected is advisory. It is logged and never blocks an action.
	ErrAbuseDetected = errors.New("abuse detected")
	// ErrNoSession is returned by step operations when the user is idle.
	ErrNoSession = errors.New("no active session")
	// ErrDuplicateEvent means the event was already applied to the session.
	// Nothing was changed.
	ErrDuplicateEvent = errors.New("event already applied")
)

// ValidationError is bad step input. The step is re-prompted without
// advancing.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

type PermissionError struct {
	Role       models.Role
	Capability models.Capability
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("role %s lacks %s", e.Role, e.Capability)
}

func (e *PermissionError) Unwrap() error { return ErrPermissionDenied }

// QuotaExceededError is returned when a daily ceiling has been reached. The
// counter is not mutated.
type QuotaExceededError struct {
	Action  models.Action
	Limit   int
	ResetAt time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily %s quota of %d reached, resets at %s", e.Action, e.Limit, e.ResetAt.Format(time.RFC3339))
}

// ReplyForError maps an error class to the reply shown to the chat user.
func ReplyForError(err error) models.Reply {
	var (
		verr *ValidationError
		perr *PermissionError
		qerr *QuotaExceededError
	)
	switch {
	case errors.As(err, &verr):
		return models.Reply{Text: "⚠️ " + verr.Message}
	case errors.As(err, &perr):
		return models.Reply{Text: permissionMessage(perr.Capability)}
	case errors.As(err, &qerr):
		return models.Reply{Text: fmt.Sprintf(
			"You have reached today's limit of %d %s. You can continue after %s.",
			qerr.Limit, actionNoun(qerr.Action), qerr.ResetAt.Format("15:04 02/01/2006"))}
	case errors.Is(err, store.ErrNotFound):
		return models.Reply{Text: "Sorry, we could not find that."}
	default:
		return models.Reply{Text: "Something went wrong on our side. Please try again later."}
	}
}

func permissionMessage(c models.Capability) string {
	switch c {
	case models.CapCreateListing:
		return "Posting listings is available to members. Type \"register\" to start a free trial or \"pay\" to upgrade."
	case models.CapMakePayment:
		return "Payments are not available for your account."
	case models.CapAdminChat:
		return "Chatting with an admin is not available for your account."
	case models.CapUseBot:
		return "Your account is currently suspended. Please contact support."
	default:
		return "This feature is not available for your account."
	}
}

func actionNoun(a models.Action) string {
	switch a {
	case models.ActionListing:
		return "new listings"
	case models.ActionSearch:
		return "searches"
	case models.ActionMessage:
		return "messages"
	case models.ActionAdminChat:
		return "admin chats"
	}
	return string(a)
}
