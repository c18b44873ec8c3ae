package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexYaroshenko/notifybot/internal/bot"
	"github.com/AlexYaroshenko/notifybot/internal/store"
	"github.com/AlexYaroshenko/notifybot/internal/telegram"
)

type nopTransport struct{}

func (nopTransport) SendMessage(context.Context, string, string, *telegram.SendOptions) (int, error) {
	return 1, nil
}
func (nopTransport) EditMessageText(context.Context, string, int, string, *telegram.SendOptions) error {
	return nil
}
func (nopTransport) AnswerCallbackQuery(context.Context, string, string) error { return nil }

// stalledStore blocks every lookup until released, simulating a store that
// has gone dark mid-request.
type stalledStore struct {
	*store.MemoryStore
	release chan struct{}
}

func (s *stalledStore) GetSubscriber(ctx context.Context, chatID string) (store.Subscriber, error) {
	select {
	case <-s.release:
	case <-ctx.Done():
		return store.Subscriber{}, ctx.Err()
	}
	return s.MemoryStore.GetSubscriber(ctx, chatID)
}

func newTestServer(t *testing.T, st store.Store) (*Server, *httptest.Server) {
	t.Helper()
	responder := bot.NewResponder(nopTransport{}, zerolog.Nop())
	dispatcher := bot.NewDispatcher(st, responder, zerolog.Nop())
	srv := NewServer("0", dispatcher, zerolog.Nop())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts
}

const startUpdate = `{"update_id":1,"message":{"message_id":10,"from":{"id":7,"first_name":"Иван"},"chat":{"id":7,"type":"private"},"text":"/start"}}`

func TestWebhookAcksBeforeProcessing(t *testing.T) {
	stalled := &stalledStore{MemoryStore: store.NewMemory(), release: make(chan struct{})}
	_, ts := newTestServer(t, stalled)

	start := time.Now()
	resp, err := http.Post(ts.URL+"/telegram/webhook", "application/json", strings.NewReader(startUpdate))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Less(t, time.Since(start), 2*time.Second, "ack must not wait for the store")

	var body map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body["ok"])

	close(stalled.release)
}

func TestWebhookProcessesDetached(t *testing.T) {
	mem := store.NewMemory()
	_, ts := newTestServer(t, mem)

	resp, err := http.Post(ts.URL+"/telegram/webhook", "application/json", strings.NewReader(startUpdate))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Eventually(t, func() bool {
		_, err := mem.GetSubscriber(context.Background(), "7")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond, "record appears after the ack")
}

func TestWebhookAcksMalformedBody(t *testing.T) {
	mem := store.NewMemory()
	_, ts := newTestServer(t, mem)

	resp, err := http.Post(ts.URL+"/telegram/webhook", "application/json", strings.NewReader("{this is not json"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, mem.RowCount())
}

func TestWebhookMethodNotAllowed(t *testing.T) {
	_, ts := newTestServer(t, store.NewMemory())

	resp, err := http.Get(ts.URL + "/telegram/webhook")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/health", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHealthReturnsTimestamp(t *testing.T) {
	_, ts := newTestServer(t, store.NewMemory())

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	_, err = time.Parse(time.RFC3339, body["timestamp"])
	assert.NoError(t, err)
}

func TestMetricsExposed(t *testing.T) {
	_, ts := newTestServer(t, store.NewMemory())

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
