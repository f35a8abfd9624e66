package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// TimeSync keeps a clock offset against public web servers so scheduled
// claims fire on the storefront's idea of time, not a drifted local clock.
type TimeSync struct {
	client   *http.Client
	servers  []string
	log      zerolog.Logger
	offset   time.Duration
	lastSync time.Time
	synced   bool
}

func NewTimeSync(log zerolog.Logger) *TimeSync {
	return &TimeSync{
		client: &http.Client{Timeout: 5 * time.Second},
		servers: []string{
			"https://www.google.com",
			"https://www.cloudflare.com",
			"https://www.amazon.com",
		},
		log: log.With().Str("component", "timesync").Logger(),
	}
}

// Sync averages the offsets measured against every reachable server. It
// fails only when none of them answered.
func (ts *TimeSync) Sync() error {
	var total time.Duration
	measured := 0

	for _, server := range ts.servers {
		offset, err := ts.measureOffset(server)
		if err != nil {
			ts.log.Debug().Err(err).Str("server", server).Msg("time probe failed")
			continue
		}
		total += offset
		measured++
	}

	if measured == 0 {
		return fmt.Errorf("failed to sync time with any server")
	}

	ts.offset = total / time.Duration(measured)
	ts.lastSync = time.Now()
	ts.synced = true

	ts.log.Debug().Dur("offset", ts.offset).Int("servers", measured).Msg("time synchronized")
	return nil
}

// measureOffset issues a HEAD request and compares the Date header against
// the local clock, correcting for half the round trip.
func (ts *TimeSync) measureOffset(serverURL string) (time.Duration, error) {
	before := time.Now()

	req, err := http.NewRequest("HEAD", serverURL, nil)
	if err != nil {
		return 0, err
	}

	resp, err := ts.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	after := time.Now()

	dateHeader := resp.Header.Get("Date")
	if dateHeader == "" {
		return 0, fmt.Errorf("no Date header in response")
	}

	serverTime, err := http.ParseTime(dateHeader)
	if err != nil {
		return 0, fmt.Errorf("failed to parse Date header: %w", err)
	}

	latency := after.Sub(before) / 2
	local := before.Add(latency)
	return serverTime.Sub(local), nil
}

// Now returns the offset-corrected current time, or plain local time before
// the first successful sync.
func (ts *TimeSync) Now() time.Time {
	if !ts.synced {
		return time.Now()
	}
	return time.Now().Add(ts.offset)
}

func (ts *TimeSync) Offset() time.Duration {
	return ts.offset
}

func (ts *TimeSync) ShouldResync() bool {
	if !ts.synced {
		return true
	}
	return time.Since(ts.lastSync) > time.Hour
}
