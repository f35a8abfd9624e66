package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestTimeSyncNowBeforeSync(t *testing.T) {
	ts := NewTimeSync(zerolog.Nop())

	before := time.Now()
	got := ts.Now()
	after := time.Now()

	require.False(t, got.Before(before))
	require.False(t, got.After(after))
}

func TestTimeSyncShouldResync(t *testing.T) {
	ts := NewTimeSync(zerolog.Nop())
	require.True(t, ts.ShouldResync(), "unsynced clock always wants a sync")

	ts.synced = true
	ts.lastSync = time.Now()
	require.False(t, ts.ShouldResync())

	ts.lastSync = time.Now().Add(-2 * time.Hour)
	require.True(t, ts.ShouldResync())
}

func TestTimeSyncAgainstServer(t *testing.T) {
	// Server reports a clock 30 minutes ahead of ours.
	skew := 30 * time.Minute
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Date", time.Now().Add(skew).UTC().Format(http.TimeFormat))
	}))
	defer server.Close()

	ts := NewTimeSync(zerolog.Nop())
	ts.client = server.Client()
	ts.servers = []string{server.URL}

	require.NoError(t, ts.Sync())
	require.False(t, ts.ShouldResync())

	// Date headers have one-second resolution, allow generous slack.
	require.InDelta(t, skew.Seconds(), ts.Offset().Seconds(), 3)

	now := ts.Now()
	require.InDelta(t, time.Now().Add(skew).Unix(), now.Unix(), 3)
}

func TestTimeSyncAllServersUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serverURL := server.URL
	server.Close()

	ts := NewTimeSync(zerolog.Nop())
	ts.client = &http.Client{Timeout: time.Second}
	ts.servers = []string{serverURL}

	require.Error(t, ts.Sync())
	require.True(t, ts.ShouldResync())
}
