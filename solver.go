package main

import (
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/rs/zerolog"
)

// ChallengeSolver resolves the interactive verification step that can gate
// login and checkout. The core treats it as an opaque capability: it either
// returns with the challenge gone or fails, and the enclosing step retries.
type ChallengeSolver interface {
	Resolve(page *rod.Page) error
}

// frameSolver watches for the challenge frame on the current page. If no
// frame shows up within the grace window there was nothing to solve. If one
// does, the external solving agent configured into the browser profile works
// it, and Resolve waits for the frame to detach.
type frameSolver struct {
	config *Config
	log    zerolog.Logger
}

func NewFrameSolver(config *Config, log zerolog.Logger) ChallengeSolver {
	solver := &frameSolver{
		config: config,
		log:    log.With().Str("component", "solver").Logger(),
	}
	if config.SolverAPIKey == "" {
		solver.log.Warn().Msg("no solver API key configured, challenges depend on the profile's solving extension")
	}
	return solver
}

func (f *frameSolver) Resolve(page *rod.Page) error {
	grace := time.Duration(f.config.ChallengeGraceSeconds) * time.Second
	if !f.challengeVisible(page, grace) {
		f.log.Debug().Msg("no challenge presented")
		return nil
	}

	f.log.Info().Msg("challenge detected, waiting for resolution")

	deadline := time.Now().Add(time.Duration(f.config.ChallengeWaitSeconds) * time.Second)
	for time.Now().Before(deadline) {
		if !f.challengeVisible(page, time.Second) {
			f.log.Info().Msg("challenge resolved")
			return nil
		}
		time.Sleep(2 * time.Second)
	}

	return fmt.Errorf("challenge still active after %ds", f.config.ChallengeWaitSeconds)
}

func (f *frameSolver) challengeVisible(page *rod.Page, wait time.Duration) bool {
	el, err := page.Timeout(wait).ElementX(f.config.Selectors.ChallengeFrame)
	if err != nil || el == nil {
		return false
	}
	visible, err := el.Visible()
	return err == nil && visible
}
