package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMessage() Message {
	return Message{
		Title: "新しい利益商品を発見",
		Body:  "Sony WH-1000XM4",
		URL:   "https://page.auctions.yahoo.co.jp/jp/auction/x123",
		Fields: []Field{
			{Name: "粗利", Value: "5100円"},
			{Name: "粗利率", Value: "51.0%"},
		},
	}
}

func newTestSender(t *testing.T, sinkType string, handler http.HandlerFunc) *Sender {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s := NewSender(srv.URL, sinkType, 5*time.Second, zerolog.Nop())
	s.sleep = func(time.Duration) {}
	return s
}

func TestSend_Discord(t *testing.T) {
	var body map[string]interface{}
	s := newTestSender(t, TypeDiscord, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	})

	require.NoError(t, s.Send(context.Background(), testMessage()))

	embeds, ok := body["embeds"].([]interface{})
	require.True(t, ok)
	require.Len(t, embeds, 1)
	embed := embeds[0].(map[string]interface{})
	assert.Equal(t, "新しい利益商品を発見", embed["title"])
	assert.Len(t, embed["fields"], 2)
}

func TestSend_Slack(t *testing.T) {
	var body map[string]interface{}
	s := newTestSender(t, TypeSlack, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	})

	require.NoError(t, s.Send(context.Background(), testMessage()))
	assert.Contains(t, body["text"], "新しい利益商品を発見")
	assert.NotEmpty(t, body["blocks"])
}

func TestSend_LINE(t *testing.T) {
	var form url.Values
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		form, _ = url.ParseQuery(string(raw))
	}))
	t.Cleanup(srv.Close)

	s := NewSender(srv.URL+"#line-token", TypeLINE, 5*time.Second, zerolog.Nop())
	s.sleep = func(time.Duration) {}

	require.NoError(t, s.Send(context.Background(), testMessage()))
	assert.Equal(t, "Bearer line-token", auth)
	assert.Contains(t, form.Get("message"), "粗利: 5100円")
}

func TestSend_RetriesThreeTimesThenFails(t *testing.T) {
	var calls int
	var slept []time.Duration
	s := newTestSender(t, TypeDiscord, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	})
	s.sleep = func(d time.Duration) { slept = append(slept, d) }

	err := s.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{1 * time.Second, 3 * time.Second}, slept)
}

func TestSend_SucceedsAfterRetry(t *testing.T) {
	var calls int
	s := newTestSender(t, TypeDiscord, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
	})

	require.NoError(t, s.Send(context.Background(), testMessage()))
	assert.Equal(t, 2, calls)
}

func TestSend_DisabledIsNoOp(t *testing.T) {
	s := NewSender("", TypeDiscord, time.Second, zerolog.Nop())
	assert.False(t, s.Enabled())
	assert.NoError(t, s.Send(context.Background(), testMessage()))
}
