package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexYaroshenko/notifybot/internal/store"
	"github.com/AlexYaroshenko/notifybot/internal/telegram"
)

type sentMessage struct {
	chatID string
	text   string
	opts   *telegram.SendOptions
}

type editedMessage struct {
	chatID    string
	messageID int
	text      string
}

// fakeTransport records outbound actions; with fail=true every call errors.
type fakeTransport struct {
	mu        sync.Mutex
	fail      bool
	sent      []sentMessage
	edited    []editedMessage
	callbacks []string
}

func (f *fakeTransport) SendMessage(ctx context.Context, chatID, text string, opts *telegram.SendOptions) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return 0, errors.New("send failed")
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text, opts: opts})
	return len(f.sent), nil
}

func (f *fakeTransport) EditMessageText(ctx context.Context, chatID string, messageID int, text string, opts *telegram.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("edit failed")
	}
	f.edited = append(f.edited, editedMessage{chatID: chatID, messageID: messageID, text: text})
	return nil
}

func (f *fakeTransport) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("answer failed")
	}
	f.callbacks = append(f.callbacks, callbackID)
	return nil
}

// downStore simulates a store that is entirely unreachable.
type downStore struct{}

func (downStore) Close() error { return nil }
func (downStore) GetSubscriber(context.Context, string) (store.Subscriber, error) {
	return store.Subscriber{}, errors.New("store unavailable")
}
func (downStore) UpsertSubscriber(context.Context, store.Subscriber) error {
	return errors.New("store unavailable")
}
func (downStore) ListSubscribers(context.Context) ([]store.Subscriber, error) {
	return nil, errors.New("store unavailable")
}
func (downStore) AppendAudit(context.Context, store.AuditEntry) error {
	return errors.New("store unavailable")
}
func (downStore) ReconcileSubscribers(context.Context) (int, error) {
	return 0, errors.New("store unavailable")
}

func newTestDispatcher(t *testing.T, st store.Store) (*Dispatcher, *fakeTransport) {
	t.Helper()
	transport := &fakeTransport{}
	responder := NewResponder(transport, zerolog.Nop())
	return NewDispatcher(st, responder, zerolog.Nop()), transport
}

func rawMessage(chatID int64, text string) []byte {
	return []byte(fmt.Sprintf(
		`{"update_id":1,"message":{"message_id":10,"from":{"id":%d,"first_name":"Иван"},"chat":{"id":%d,"type":"private"},"text":%q}}`,
		chatID, chatID, text))
}

func rawConsentPress(chatID int64, promptID int) []byte {
	return []byte(fmt.Sprintf(
		`{"update_id":2,"callback_query":{"id":"cb1","from":{"id":%d,"first_name":"Иван"},"message":{"message_id":%d,"chat":{"id":%d,"type":"private"}},"data":"consent_given"}}`,
		chatID, promptID, chatID))
}

func TestDispatcherStartCreatesPromptRecord(t *testing.T) {
	mem := store.NewMemory()
	d, transport := newTestDispatcher(t, mem)

	d.Handle(rawMessage(7, "/start"))

	require.Len(t, transport.sent, 1)
	msg := transport.sent[0]
	assert.Equal(t, "7", msg.chatID)
	assert.Contains(t, msg.text, "Привет, Иван!")
	require.NotNil(t, msg.opts)
	require.NotNil(t, msg.opts.ReplyMarkup)
	require.Len(t, msg.opts.ReplyMarkup.InlineKeyboard, 1)
	assert.Equal(t, "consent_given", msg.opts.ReplyMarkup.InlineKeyboard[0][0].CallbackData)

	rec, err := mem.GetSubscriber(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, store.StateAwaitingConsent, rec.State)

	entries := mem.AuditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "/start", entries[0].InboundText)
}

func TestDispatcherConsentFlow(t *testing.T) {
	mem := store.NewMemory()
	d, transport := newTestDispatcher(t, mem)

	d.Handle(rawMessage(7, "/start"))
	d.Handle(rawConsentPress(7, 10))

	rec, err := mem.GetSubscriber(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, store.StateSubscribed, rec.State)
	assert.False(t, rec.SubscribedAt.IsZero())
	assert.True(t, rec.UnsubscribedAt.IsZero())

	assert.Equal(t, []string{"cb1"}, transport.callbacks)
	require.Len(t, transport.edited, 1)
	assert.Equal(t, 10, transport.edited[0].messageID)
	assert.Contains(t, transport.edited[0].text, "согласие на получение рассылки сохранено")

	// Redelivered press: state untouched, still acknowledged.
	d.Handle(rawConsentPress(7, 10))
	rec2, err := mem.GetSubscriber(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, rec.SubscribedAt, rec2.SubscribedAt)
	assert.Equal(t, []string{"cb1", "cb1"}, transport.callbacks)
	assert.Len(t, transport.edited, 1)
}

func TestDispatcherEchoLeavesNoRecord(t *testing.T) {
	mem := store.NewMemory()
	d, transport := newTestDispatcher(t, mem)

	d.Handle(rawMessage(7, "hello"))

	require.Len(t, transport.sent, 1)
	assert.Equal(t, "Эхо: hello", transport.sent[0].text)

	_, err := mem.GetSubscriber(context.Background(), "7")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 0, mem.RowCount())

	entries := mem.AuditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "hello", entries[0].InboundText)
	assert.Equal(t, "Эхо: hello", entries[0].OutboundText)
}

func TestDispatcherUnsubscribeWithoutRecord(t *testing.T) {
	mem := store.NewMemory()
	d, transport := newTestDispatcher(t, mem)

	d.Handle(rawMessage(7, "/unsubscribe"))

	require.Len(t, transport.sent, 1)
	assert.Contains(t, transport.sent[0].text, "вы не найдены в списке подписчиков")
	assert.Equal(t, 0, mem.RowCount(), "no upsert for unknown subscriber")

	entries := mem.AuditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, auditUnsubscribeMissing, entries[0].OutboundText)
}

func TestDispatcherRepliesWhileStoreDown(t *testing.T) {
	d, transport := newTestDispatcher(t, downStore{})

	d.Handle(rawMessage(7, "/start"))
	d.Handle(rawMessage(7, "hello"))

	require.Len(t, transport.sent, 2)
	assert.Contains(t, transport.sent[0].text, "Привет")
	assert.Equal(t, "Эхо: hello", transport.sent[1].text)
}

func TestDispatcherDropsMalformedAndUnknown(t *testing.T) {
	mem := store.NewMemory()
	d, transport := newTestDispatcher(t, mem)

	d.Handle([]byte("not json at all"))
	d.Handle([]byte(`{"update_id":3}`))
	d.Handle(rawMessage(7, "/id"))

	assert.Empty(t, transport.sent)
	assert.Empty(t, mem.AuditEntries())
	assert.Equal(t, 0, mem.RowCount())
}

func TestDispatcherTransportFailureStillAudits(t *testing.T) {
	mem := store.NewMemory()
	transport := &fakeTransport{fail: true}
	responder := NewResponder(transport, zerolog.Nop())
	d := NewDispatcher(mem, responder, zerolog.Nop())

	d.Handle(rawMessage(7, "hello"))

	entries := mem.AuditEntries()
	require.Len(t, entries, 1, "attempted but undelivered responses still get a record")
	assert.Equal(t, "Эхо: hello", entries[0].OutboundText)
}

func TestDispatcherEchoEscapesHTML(t *testing.T) {
	mem := store.NewMemory()
	d, transport := newTestDispatcher(t, mem)

	d.Handle(rawMessage(7, "<b>hi</b>"))

	require.Len(t, transport.sent, 1)
	assert.Equal(t, "Эхо: &lt;b&gt;hi&lt;/b&gt;", transport.sent[0].text)
}
