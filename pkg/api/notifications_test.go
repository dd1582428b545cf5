package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/api"
	"github.com/dmitrymomot/notifykit/pkg/channel"
	"github.com/dmitrymomot/notifykit/pkg/dispatcher"
	"github.com/dmitrymomot/notifykit/pkg/feature"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/store/memory"
)

type MockSubmitter struct {
	mock.Mock
}

func (m *MockSubmitter) Submit(ctx context.Context, n *notification.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func post(t *testing.T, s api.Submitter, body string) (*httptest.ResponseRecorder, api.Response) {
	t.Helper()

	r := chi.NewRouter()
	api.Mount(r, s, discard)

	req := httptest.NewRequest(http.MethodPost, "/notifications", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var resp api.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestSubmitHandler(t *testing.T) {
	t.Parallel()

	recipient := uuid.New()
	valid := `{"recipient_id":"` + recipient.String() + `","important":true,` +
		`"messages":[{"channel":"EMAIL","subject":"hi","body":"hello","tag":"comments"}]}`

	t.Run("accepts a notification", func(t *testing.T) {
		t.Parallel()

		id := uuid.New()
		created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		s := &MockSubmitter{}
		s.On("Submit", mock.Anything, mock.MatchedBy(func(n *notification.Notification) bool {
			return n.RecipientID == recipient && n.Important && len(n.Messages) == 1 &&
				n.Messages[0].Channel == notification.ChannelEmail && n.Messages[0].Tag == "comments"
		})).Run(func(args mock.Arguments) {
			n := args.Get(1).(*notification.Notification)
			n.ID = id
			n.CreatedAt = created
		}).Return(nil).Once()

		rec, resp := post(t, s, valid)

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Nil(t, resp.Error)
		data := resp.Data.(map[string]any)
		assert.Equal(t, id.String(), data["id"])
		assert.Equal(t, "2024-05-01T12:00:00Z", data["created_at"])
		s.AssertExpectations(t)
	})

	t.Run("malformed json", func(t *testing.T) {
		t.Parallel()

		s := &MockSubmitter{}
		rec, resp := post(t, s, `{"recipient_id":`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, api.CodeInvalidJSON, resp.Error.Code)
		s.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
	})

	t.Run("error mapping", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name   string
			err    error
			status int
			code   string
		}{
			{"validation", errors.Join(notification.ErrValidation, errors.New("bad")), http.StatusBadRequest, api.CodeValidation},
			{"constraint", errors.Join(notification.ErrConstraintViolation, errors.New("dup")), http.StatusConflict, api.CodeConstraintViolation},
			{"internal", errors.New("db down"), http.StatusInternalServerError, api.CodeInternal},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				s := &MockSubmitter{}
				s.On("Submit", mock.Anything, mock.Anything).Return(tt.err).Once()

				rec, resp := post(t, s, valid)

				assert.Equal(t, tt.status, rec.Code)
				require.NotNil(t, resp.Error)
				assert.Equal(t, tt.code, resp.Error.Code)
				assert.NotContains(t, resp.Error.Message, "db down")
			})
		}
	})
}

func TestSubmitHandler_QueuesThroughDispatcher(t *testing.T) {
	t.Parallel()

	store := memory.New()
	registry := channel.NewRegistry(channel.SenderFunc(notification.ChannelEmail,
		func(context.Context, string, string, string) error { return nil }))
	d, err := dispatcher.New(store, registry, feature.Static(true), dispatcher.WithLogger(discard))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Stop() })

	recipient := uuid.New()

	rec, resp := post(t, d, `{"recipient_id":"`+recipient.String()+`","messages":[{"channel":"EMAIL","subject":"s","body":"b"}]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, store.PendingItems())

	id, err := uuid.Parse(resp.Data.(map[string]any)["id"].(string))
	require.NoError(t, err)
	stored, err := store.GetNotification(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, recipient, stored.RecipientID)

	rec, resp = post(t, d, `{"recipient_id":"`+recipient.String()+`","messages":[`+
		`{"channel":"EMAIL","subject":"s","body":"b"},{"channel":"EMAIL","subject":"s","body":"b"}]}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, api.CodeConstraintViolation, resp.Error.Code)

	rec, _ = post(t, d, `{"messages":[{"channel":"EMAIL","subject":"s","body":"b"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
