package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/debatekeeper/internal/common"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-token", srv.URL, 1*time.Second)
}

func TestPollMapsMessageUpdates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottest-token/getUpdates", r.URL.Path)
		w.Write([]byte(`{"ok":true,"result":[
			{"update_id":10,"message":{"from":{"id":7,"username":"ada"},"chat":{"id":42},"text":"hello"}},
			{"update_id":11,"edited_message":{"text":"ignored"}},
			{"update_id":12,"message":{"from":{"id":8,"username":"lin"},"chat":{"id":43},"text":"/start"}}
		]}`))
	})

	events, err := c.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, int64(10), events[0].UpdateID)
	assert.Equal(t, int64(7), events[0].UserID)
	assert.Equal(t, int64(42), events[0].ChatID)
	assert.Equal(t, "ada", events[0].Username)
	assert.Equal(t, "hello", events[0].Text)
	assert.Equal(t, "/start", events[1].Text)
}

func TestPollAdvancesOffset(t *testing.T) {
	var offsets []string
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		offsets = append(offsets, r.URL.Query().Get("offset"))
		calls++
		if calls == 1 {
			w.Write([]byte(`{"ok":true,"result":[{"update_id":100,"message":{"from":{"id":1},"chat":{"id":1},"text":"a"}}]}`))
			return
		}
		w.Write([]byte(`{"ok":true,"result":[]}`))
	})

	_, err := c.Poll(context.Background())
	require.NoError(t, err)
	_, err = c.Poll(context.Background())
	require.NoError(t, err)

	require.Len(t, offsets, 2)
	assert.Equal(t, "", offsets[0])
	assert.Equal(t, "101", offsets[1])
}

func TestPollConflict(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"ok":false,"error_code":409,"description":"Conflict: terminated by other getUpdates request"}`))
	})

	_, err := c.Poll(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrConflict))
	assert.Contains(t, err.Error(), "terminated by other getUpdates request")
}

func TestPollAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
	})

	_, err := c.Poll(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, common.ErrConflict))
	assert.Contains(t, err.Error(), "Unauthorized")
}

func TestSendMessage(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/bottest-token/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok":true,"result":{}}`))
	})

	err := c.SendMessage(context.Background(), 42, "round one")
	require.NoError(t, err)
	assert.Equal(t, float64(42), got["chat_id"])
	assert.Equal(t, "round one", got["text"])
}

func TestDeleteWebhook(t *testing.T) {
	var query url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottest-token/deleteWebhook", r.URL.Path)
		query = r.URL.Query()
		w.Write([]byte(`{"ok":true,"result":true}`))
	})

	require.NoError(t, c.DeleteWebhook(context.Background(), true))
	assert.Equal(t, "true", query.Get("drop_pending_updates"))
}
