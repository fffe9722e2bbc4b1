package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wsbind/internal/shared/testutil"
	"wsbind/pkg/contracts/domain"
)

// fakeStream hands out a pre-wired event channel
type fakeStream struct {
	ch chan domain.BindingEvent
}

func (f *fakeStream) Subscribe() (<-chan domain.BindingEvent, func()) {
	return f.ch, func() {}
}

func TestListEvents(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	service := &fakeService{
		events: []domain.BindingEvent{
			{
				ID:              "e1",
				WorkshopCode:    "WS-001",
				BusinessLicense: "1234567",
				Action:          domain.ActionBound,
				Timestamp:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			},
		},
	}
	handler := NewAuditHandler(service, &fakeStream{}, logger)

	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"action":"bound"`)
	assert.Contains(t, rec.Body.String(), `"workshop_code":"WS-001"`)
}

func TestListEventsEmpty(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	handler := NewAuditHandler(&fakeService{}, &fakeStream{}, logger)

	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"events":[]`)
}

func TestStreamDeliversEvents(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	stream := &fakeStream{ch: make(chan domain.BindingEvent, 1)}
	handler := NewAuditHandler(&fakeService{}, stream, logger)

	server := httptest.NewServer(handler.Routes())
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	stream.ch <- domain.BindingEvent{
		ID:           "e1",
		WorkshopCode: "WS-001",
		Action:       domain.ActionBound,
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event domain.BindingEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "e1", event.ID)
	assert.Equal(t, domain.ActionBound, event.Action)
}

func TestStreamClosesWhenSubscriptionEnds(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	stream := &fakeStream{ch: make(chan domain.BindingEvent)}
	handler := NewAuditHandler(&fakeService{}, stream, logger)

	server := httptest.NewServer(handler.Routes())
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	close(stream.ch)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	handler := NewHealthHandler("1.0.0")

	rec := httptest.NewRecorder()
	handler.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"version":"1.0.0"`)
}
