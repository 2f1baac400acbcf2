package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T) *CallbackServer {
	t.Helper()

	s := New("127.0.0.1:0", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, s.Start())

	return s
}

func get(t *testing.T, url string) string {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	return string(body)
}

func TestWait_QueryModeCallback(t *testing.T) {
	s := testServer(t)

	type result struct {
		cb  Callback
		err error
	}
	done := make(chan result, 1)
	go func() {
		cb, err := s.Wait(context.Background())
		done <- result{cb, err}
	}()

	body := get(t, "http://"+s.Addr()+"/auth/idme/callback?code=abc123&state=s1")
	assert.Contains(t, body, "Sign-in complete")

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, "idme", r.cb.Provider)
		assert.Contains(t, r.cb.ReturnURL, "code=abc123")
		assert.Contains(t, r.cb.ReturnURL, "state=s1")
	case <-time.After(5 * time.Second):
		t.Fatal("callback never resolved")
	}
}

func TestWait_FragmentModeBounces(t *testing.T) {
	s := testServer(t)

	done := make(chan Callback, 1)
	go func() {
		cb, err := s.Wait(context.Background())
		if err == nil {
			done <- cb
		}
	}()

	// A fragment-mode redirect reaches the server with no query string;
	// the response must be the bounce page, not a captured callback.
	body := get(t, "http://"+s.Addr()+"/auth/logingov/callback")
	assert.Contains(t, body, "location.hash")

	// The bounce page re-submits the fragment on the complete path.
	get(t, "http://"+s.Addr()+"/auth/logingov/callback/complete?code=abc123&state=s1")

	select {
	case cb := <-done:
		assert.Equal(t, "logingov", cb.Provider)
		assert.Contains(t, cb.ReturnURL, "code=abc123")
	case <-time.After(5 * time.Second):
		t.Fatal("callback never resolved")
	}
}

func TestWait_ContextCancelled(t *testing.T) {
	s := testServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWait_OnlyFirstCallbackCounts(t *testing.T) {
	s := testServer(t)

	done := make(chan Callback, 1)
	go func() {
		cb, err := s.Wait(context.Background())
		if err == nil {
			done <- cb
		}
	}()

	get(t, "http://"+s.Addr()+"/auth/idme/callback?code=first&state=s1")

	var cb Callback
	select {
	case cb = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("callback never resolved")
	}

	assert.True(t, strings.Contains(cb.ReturnURL, "code=first"))
}

func TestStart_BusyPort(t *testing.T) {
	first := testServer(t)

	second := New(first.Addr(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, second.Start())
}
