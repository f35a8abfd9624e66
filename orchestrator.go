package main

import (
	"fmt"

	"github.com/go-rod/rod"
	"github.com/rs/zerolog"
)

// AccountResult pairs an account with its terminal outcome.
type AccountResult struct {
	Email   string
	Outcome Outcome
}

// Collector sequences accounts through authorize -> reconcile -> checkout on
// the one shared browser page. Accounts are strictly serialized; each one
// gets a fresh Session value and a wiped cookie jar before it starts.
type Collector struct {
	config   *Config
	page     *rod.Page
	solver   ChallengeSolver
	notifier Notifier
	log      zerolog.Logger

	// Seams swapped out in tests; NewCollector installs the production
	// wiring.
	pipeline  func(account Account, offerURLs []string) Outcome
	authorize func(account Account) error
	reconcile func(offerURLs []string) (bool, []Offer)
	checkout  func(added []Offer) Outcome
}

func NewCollector(config *Config, page *rod.Page, solver ChallengeSolver, notifier Notifier, log zerolog.Logger) *Collector {
	c := &Collector{
		config:   config,
		page:     page,
		solver:   solver,
		notifier: notifier,
		log:      log.With().Str("component", "orchestrator").Logger(),
	}
	c.pipeline = c.collectOne
	c.authorize = c.authorizeAccount
	c.reconcile = c.reconcileOffers
	c.checkout = c.checkoutCart
	return c
}

// RunAll processes every account against the given offer list and reports
// each one exactly once via the notifier. Failures stay contained: neither a
// broken account pipeline nor a failed notification stops the batch.
func (c *Collector) RunAll(accounts []Account, offerURLs []string) []AccountResult {
	results := make([]AccountResult, 0, len(accounts))

	for i, account := range accounts {
		c.log.Info().Int("index", i+1).Int("total", len(accounts)).Str("account", account.Email).Msg("processing account")

		outcome := c.runContained(account, offerURLs)
		results = append(results, AccountResult{Email: account.Email, Outcome: outcome})

		if err := c.notifier.Send(buildAccountSummary(account.Email, outcome)); err != nil {
			c.log.Warn().Err(err).Str("account", account.Email).Msg("notification failed")
		}
	}

	return results
}

func (c *Collector) runContained(account Account, offerURLs []string) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Str("account", account.Email).Interface("panic", r).Msg("account pipeline panicked")
			outcome = Outcome{Status: OutcomeFailed, Err: fmt.Errorf("account pipeline panicked: %v", r)}
		}
	}()
	return c.pipeline(account, offerURLs)
}

// collectOne is the full per-account pipeline. Auth exhaustion is terminal
// for the account; cart and checkout are never attempted after it. A pass
// with nothing pending never reaches the checkout step.
func (c *Collector) collectOne(account Account, offerURLs []string) Outcome {
	if err := c.authorize(account); err != nil {
		return Outcome{Status: OutcomeFailed, Err: err}
	}

	hasPending, added := c.reconcile(offerURLs)
	if !hasPending {
		c.log.Info().Str("account", account.Email).Msg("all weekly games already in the library")
		return Outcome{Status: OutcomeNoPending}
	}

	return c.checkout(added)
}

func (c *Collector) authorizeAccount(account Account) error {
	session := NewSession(c.page, account, c.solver, c.config, c.log)

	// Drop everything the previous account left behind before touching
	// the login surface.
	if err := session.ClearState(); err != nil {
		c.log.Warn().Err(err).Msg("failed to clear prior session state")
	}

	return session.Authorize()
}

func (c *Collector) reconcileOffers(offerURLs []string) (bool, []Offer) {
	return NewReconciler(c.page, c.config, c.log).AddEligible(offerURLs)
}

func (c *Collector) checkoutCart(added []Offer) Outcome {
	return NewCheckout(c.page, c.config, c.solver, c.log).PurchasePendingCart(added)
}
