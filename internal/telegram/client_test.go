package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeAPI(t *testing.T, handler func(method string, payload map[string]any) (any, bool)) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		// Path shape: /bot<token>/<method>
		require.Contains(t, r.URL.Path, "/bottest-token/")
		method := r.URL.Path[len("/bottest-token/"):]

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

		result, ok := handler(method, payload)
		if !ok {
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "bad request: chat not found"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
	}))
	t.Cleanup(srv.Close)
	return NewClient("test-token", WithAPIBase(srv.URL))
}

func TestSendMessage(t *testing.T) {
	var got map[string]any
	client := newFakeAPI(t, func(method string, payload map[string]any) (any, bool) {
		require.Equal(t, "sendMessage", method)
		got = payload
		return MessageIn{MessageID: 99}, true
	})

	keyboard := &InlineKeyboardMarkup{InlineKeyboard: [][]InlineKeyboardButton{{
		{Text: "да", CallbackData: "consent_given"},
	}}}
	id, err := client.SendMessage(context.Background(), "7", "Привет", &SendOptions{
		ParseMode:   "HTML",
		ReplyMarkup: keyboard,
	})
	require.NoError(t, err)
	assert.Equal(t, 99, id)

	assert.Equal(t, "7", got["chat_id"])
	assert.Equal(t, "Привет", got["text"])
	assert.Equal(t, "HTML", got["parse_mode"])
	assert.Contains(t, got, "reply_markup")
}

func TestSendMessageAPIError(t *testing.T) {
	client := newFakeAPI(t, func(string, map[string]any) (any, bool) {
		return nil, false
	})

	_, err := client.SendMessage(context.Background(), "7", "hi", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestEditMessageText(t *testing.T) {
	var got map[string]any
	client := newFakeAPI(t, func(method string, payload map[string]any) (any, bool) {
		require.Equal(t, "editMessageText", method)
		got = payload
		return MessageIn{MessageID: 10}, true
	})

	err := client.EditMessageText(context.Background(), "7", 10, "готово", nil)
	require.NoError(t, err)
	assert.Equal(t, float64(10), got["message_id"])
	assert.NotContains(t, got, "parse_mode")
}

func TestAnswerCallbackQuery(t *testing.T) {
	var got map[string]any
	client := newFakeAPI(t, func(method string, payload map[string]any) (any, bool) {
		require.Equal(t, "answerCallbackQuery", method)
		got = payload
		return true, true
	})

	require.NoError(t, client.AnswerCallbackQuery(context.Background(), "cb1", "спасибо"))
	assert.Equal(t, "cb1", got["callback_query_id"])
	assert.Equal(t, "спасибо", got["text"])
}

func TestGetMe(t *testing.T) {
	client := newFakeAPI(t, func(method string, payload map[string]any) (any, bool) {
		require.Equal(t, "getMe", method)
		return UserIn{ID: 1, Username: "notify_bot", IsBot: true}, true
	})

	me, err := client.GetMe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "notify_bot", me.Username)
}

func TestFormatUserName(t *testing.T) {
	assert.Equal(t, "Unknown", FormatUserName(nil))
	assert.Equal(t, "Иван", FormatUserName(&UserIn{FirstName: "Иван", Username: "ivan"}))
	assert.Equal(t, "@ivan", FormatUserName(&UserIn{Username: "ivan"}))
	assert.Equal(t, "User_7", FormatUserName(&UserIn{ID: 7}))
}
