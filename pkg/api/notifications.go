package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notification"
)

const maxBodyBytes = 1 << 20

// Error codes.
const (
	CodeInvalidJSON         = "invalid_json"
	CodeValidation          = "validation_error"
	CodeConstraintViolation = "constraint_violation"
	CodeInternal            = "internal_error"
)

// Submitter queues notifications for delivery.
type Submitter interface {
	Submit(ctx context.Context, n *notification.Notification) error
}

// Accepted is the body of a 202 answer.
type Accepted struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// Mount registers the intake routes on r.
func Mount(r chi.Router, s Submitter, log *slog.Logger) {
	r.Post("/notifications", SubmitHandler(s, log))
}

// SubmitHandler decodes a notification and hands it to s.
func SubmitHandler(s Submitter, log *slog.Logger) http.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(logger.Component("api"))

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var n notification.Notification
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err := dec.Decode(&n); err != nil {
			_ = writeError(w, http.StatusBadRequest, CodeInvalidJSON, err.Error())
			return
		}

		err := s.Submit(ctx, &n)
		switch {
		case err == nil:
			_ = writeJSON(w, http.StatusAccepted, Response{Data: Accepted{ID: n.ID, CreatedAt: n.CreatedAt}})
		case errors.Is(err, notification.ErrConstraintViolation):
			_ = writeError(w, http.StatusConflict, CodeConstraintViolation, err.Error())
		case errors.Is(err, notification.ErrValidation):
			_ = writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
		default:
			log.ErrorContext(ctx, "failed to submit notification",
				logger.RecipientID(n.RecipientID),
				logger.Error(err))
			_ = writeError(w, http.StatusInternalServerError, CodeInternal, http.StatusText(http.StatusInternalServerError))
		}
	}
}
