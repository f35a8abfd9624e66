package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ParseClaimTime parses user-friendly claim instants. All formats are read
// as UTC:
//   - "2025-01-16 16:00"         (YYYY-MM-DD HH:MM)
//   - "2025-01-16 16:00:00"      (YYYY-MM-DD HH:MM:SS)
//   - "2025-01-16T16:00:00Z"     (RFC3339)
//   - "2025-01-16 16:00 UTC"
func ParseClaimTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	value = strings.TrimSuffix(value, " UTC")
	value = strings.TrimSuffix(value, "UTC")
	value = strings.TrimSpace(value)

	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}

	if t, err := time.Parse("2006-01-02 15:04", value); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC), nil
	}

	if t, err := time.Parse("2006-01-02 15:04:05", value); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC), nil
	}

	return time.Time{}, fmt.Errorf("invalid time format %q, use YYYY-MM-DD HH:MM (UTC)", value)
}

// Scheduler runs the claim batch at configured instants, typically the
// weekly giveaway rotation. The storefront publishes new promotions at a
// fixed hour; firing right after it maximizes the claim window.
type Scheduler struct {
	config *Config
	clock  *TimeSync
	log    zerolog.Logger
	run    func() error
}

func NewScheduler(config *Config, log zerolog.Logger, run func() error) *Scheduler {
	return &Scheduler{
		config: config,
		clock:  NewTimeSync(log),
		log:    log.With().Str("component", "schedule").Logger(),
		run:    run,
	}
}

// Run waits for each configured claim instant in turn and executes the batch
// once per instant. Instants whose grace window has already passed are
// skipped. A failed batch run does not cancel later instants.
func (s *Scheduler) Run() error {
	if err := s.clock.Sync(); err != nil {
		s.log.Warn().Err(err).Msg("time sync failed, using local clock")
	} else {
		s.log.Info().Dur("offset", s.clock.Offset()).Msg("clock synchronized")
	}

	instants, err := s.parseClaimTimes()
	if err != nil {
		return err
	}
	if len(instants) == 0 {
		return fmt.Errorf("no claim times configured")
	}

	grace := time.Duration(s.config.PostClaimMinutes) * time.Minute
	lead := time.Duration(s.config.PreClaimMinutes) * time.Minute
	executed := 0

	for i, instant := range instants {
		now := s.clock.Now()
		if now.After(instant.Add(grace)) {
			s.log.Info().Time("instant", instant).Msg("claim window already passed, skipping")
			continue
		}

		start := instant.Add(-lead)
		if now.Before(start) {
			s.log.Info().
				Time("instant", instant).
				Dur("wait", start.Sub(now).Round(time.Second)).
				Msgf("waiting for claim window %d/%d", i+1, len(instants))
			s.sleepUntil(start)
		}

		s.log.Info().Time("instant", instant).Msg("claim window open, running batch")
		if err := s.run(); err != nil {
			s.log.Error().Err(err).Msg("batch run failed")
		}
		executed++
	}

	if executed == 0 {
		return fmt.Errorf("all %d claim windows had already passed", len(instants))
	}
	return nil
}

func (s *Scheduler) parseClaimTimes() ([]time.Time, error) {
	var instants []time.Time
	for i, value := range s.config.ClaimTimes {
		t, err := ParseClaimTime(value)
		if err != nil {
			return nil, fmt.Errorf("invalid claim time %d (%s): %w", i+1, value, err)
		}
		instants = append(instants, t)
	}
	return instants, nil
}

// sleepUntil blocks until the target instant on the synchronized clock,
// resyncing periodically during long waits.
func (s *Scheduler) sleepUntil(target time.Time) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		remaining := target.Sub(s.clock.Now())
		if remaining <= 0 {
			return
		}
		if remaining < 30*time.Second {
			time.Sleep(remaining)
			return
		}

		<-ticker.C

		if s.clock.ShouldResync() {
			if err := s.clock.Sync(); err != nil {
				s.log.Warn().Err(err).Msg("periodic resync failed")
			}
		}

		if remaining := target.Sub(s.clock.Now()); remaining > 0 {
			s.log.Debug().Dur("remaining", remaining.Round(time.Second)).Msg("still waiting")
		}
	}
}
