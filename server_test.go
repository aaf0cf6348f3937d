package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLauncher(t *testing.T, cfg *Config, out io.Writer) (*Launcher, <-chan string) {
	t.Helper()
	l, err := NewLauncher(cfg, discardLogger(), out)
	require.NoError(t, err)
	opened := make(chan string, 1)
	l.openURL = func(url string) error {
		opened <- url
		return nil
	}
	return l, opened
}

func localConfig(root string) *Config {
	cfg := defaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.Root = root
	return cfg
}

func TestAnnounceDefaultPort(t *testing.T) {
	var out bytes.Buffer
	l, opened := newTestLauncher(t, defaultConfig(), &out)

	l.announce(siteURL(defaultPort))

	assert.Equal(t, "http://localhost:8080", <-opened)
	assert.Equal(t,
		"Opening the audio editor at http://localhost:8080\nServer running... (press Ctrl+C to stop)\n",
		out.String())
	assert.Equal(t, stateStarting, l.currentState())
}

func TestAnnounceBrowserDisabled(t *testing.T) {
	cfg := defaultConfig()
	cfg.OpenBrowser = false
	var out bytes.Buffer
	l, opened := newTestLauncher(t, cfg, &out)

	l.announce(siteURL(defaultPort))

	assert.Empty(t, opened)
	assert.Contains(t, out.String(), "http://localhost:8080")
}

func TestRunServesUntilCancelled(t *testing.T) {
	root := editorTree(t)
	var out bytes.Buffer
	l, opened := newTestLauncher(t, localConfig(root), &out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	var url string
	select {
	case url = <-opened:
	case err := <-done:
		t.Fatalf("launcher exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("browser was never opened")
	}
	require.Eventually(t, func() bool { return l.currentState() == stateServing }, 5*time.Second, 10*time.Millisecond)

	assert.Contains(t, out.String(), "Opening the audio editor at "+url)
	assert.Contains(t, out.String(), "press Ctrl+C to stop")

	for i := 0; i < 5; i++ {
		resp, err := http.Get(url + "/app.js")
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "const ctx = new AudioContext();\n", string(body))
	}

	resp, err := http.Get(url + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(url + "/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	select {
	case err := <-done:
		t.Fatalf("launcher exited while serving: %v", err)
	default:
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("launcher did not stop after cancel")
	}
}

func TestRunBrowserFailureKeepsServing(t *testing.T) {
	root := editorTree(t)
	l, _ := newTestLauncher(t, localConfig(root), io.Discard)
	attempts := make(chan string, 1)
	l.openURL = func(url string) error {
		attempts <- url
		return errors.New("no browser")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	url := <-attempts
	require.Eventually(t, func() bool { return l.currentState() == stateServing }, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get(url + "/Notes.txt")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	assert.NoError(t, <-done)
}

func TestSecondInstanceAddressInUse(t *testing.T) {
	first, err := listen(localConfig(t.TempDir()))
	require.NoError(t, err)
	defer first.Close()

	cfg := localConfig(t.TempDir())
	cfg.Port = first.Addr().(*net.TCPAddr).Port

	_, err = listen(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, syscall.EADDRINUSE), "got %v", err)

	l, opened := newTestLauncher(t, cfg, io.Discard)
	require.Error(t, l.Run(context.Background()))
	assert.Empty(t, opened)
	assert.Equal(t, stateStarting, l.currentState())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "starting", stateStarting.String())
	assert.Equal(t, "serving", stateServing.String())
	assert.Equal(t, "state(7)", state(7).String())
}
