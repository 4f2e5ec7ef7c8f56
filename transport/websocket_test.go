package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/docstream/errors"
	"github.com/c360/docstream/pkg/retry"
)

var testUpgrader = websocket.Upgrader{}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWSSource_SendsTargetAndReadsFrames(t *testing.T) {
	received := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		received <- string(msg)

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"start"}`)))
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"version","txn":1}`)))
	}))
	defer srv.Close()

	src, err := OpenWSStream(context.Background(), WSConfig{
		URL:    wsURL(srv),
		Secret: "secret",
		Retry:  noRetry(),
	}, []byte(`{"@ref":{"id":"42"}}`))
	require.NoError(t, err)
	defer func() { _ = src.Cancel() }()

	assert.Equal(t, `{"@ref":{"id":"42"}}`, <-received)

	frame, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"start"}`, string(frame))

	frame, err = src.Next(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"version","txn":1}`, string(frame))
}

func TestOpenWSStream_AuthRejectionNotRetried(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := OpenWSStream(context.Background(), WSConfig{
		URL:   wsURL(srv),
		Retry: retry.Config{MaxAttempts: 5, InitialDelay: time.Millisecond},
	}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrPermissionDenied)
	assert.Equal(t, 1, hits)
}

func TestWSSource_CancelUnblocksNext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		// Hold the connection open without sending frames.
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	src, err := OpenWSStream(context.Background(), WSConfig{URL: wsURL(srv), Retry: noRetry()}, nil)
	require.NoError(t, err)

	nextErr := make(chan error, 1)
	go func() {
		_, err := src.Next(context.Background())
		nextErr <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, src.Cancel())
	require.NoError(t, src.Cancel()) // idempotent

	select {
	case err := <-nextErr:
		assert.ErrorIs(t, err, errors.ErrTransportClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not unblock after Cancel")
	}
}
