package notify_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alejandrodnm/polywhale/internal/adapters/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// formato válido de token de bot: <id>:<35 caracteres>
var testToken = "123456:" + strings.Repeat("A", 35)

func TestTelegram_SendsHTMLMessage(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot"+testToken+"/sendMessage", r.URL.Path)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
	}))
	defer srv.Close()

	tg, err := notify.NewTelegram(notify.TelegramConfig{Token: testToken, APIServer: srv.URL}, nil)
	require.NoError(t, err)
	assert.True(t, tg.Enabled())

	err = tg.Send(context.Background(), "42", "<b>hola</b>")
	require.NoError(t, err)

	assert.EqualValues(t, 42, got["chat_id"])
	assert.Equal(t, "<b>hola</b>", got["text"])
	assert.Equal(t, "HTML", got["parse_mode"])
}

func TestTelegram_APIErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	tg, err := notify.NewTelegram(notify.TelegramConfig{Token: testToken, APIServer: srv.URL}, nil)
	require.NoError(t, err)

	err = tg.Send(context.Background(), "42", "x")
	assert.Error(t, err)
}

func TestTelegram_InvalidDestination(t *testing.T) {
	tg, err := notify.NewTelegram(notify.TelegramConfig{Token: testToken, APIServer: "http://127.0.0.1:1"}, nil)
	require.NoError(t, err)

	assert.Error(t, tg.Send(context.Background(), "not-a-chat", "x"))
	assert.Error(t, tg.Send(context.Background(), "", "x"))
}

func TestTelegram_DisabledWithoutToken(t *testing.T) {
	tg, err := notify.NewTelegram(notify.TelegramConfig{}, nil)
	require.NoError(t, err)
	assert.False(t, tg.Enabled())

	assert.NoError(t, tg.Send(context.Background(), "42", "solo log"))
}

func TestTelegram_InvalidToken(t *testing.T) {
	_, err := notify.NewTelegram(notify.TelegramConfig{Token: "garbage"}, nil)
	assert.Error(t, err)
}
