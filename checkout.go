package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

// errCheckoutExhausted is the circuit breaker around the purchase routine:
// failed attempts reload and retry only up to the configured bound, then
// surface this error instead of looping forever.
var errCheckoutExhausted = errors.New("checkout retries exhausted")

type OutcomeStatus int

const (
	OutcomeFailed OutcomeStatus = iota
	OutcomeNoPending
	OutcomeCollected
)

// Outcome is the single terminal result of one account's claim attempt.
type Outcome struct {
	Status OutcomeStatus
	Added  []Offer
	Err    error
}

// Checkout drives the purchase confirmation sequence for a populated cart.
type Checkout struct {
	page   *rod.Page
	config *Config
	solver ChallengeSolver
	log    zerolog.Logger

	// Seams swapped out in tests; NewCheckout installs the page-driven
	// defaults.
	attempt     func() error
	reset       func()
	waitSuccess func() error
}

func NewCheckout(page *rod.Page, config *Config, solver ChallengeSolver, log zerolog.Logger) *Checkout {
	c := &Checkout{
		page:   page,
		config: config,
		solver: solver,
		log:    log.With().Str("component", "checkout").Logger(),
	}
	c.attempt = c.purchaseAttempt
	c.reset = func() {
		if err := c.page.Reload(); err != nil {
			c.log.Warn().Err(err).Msg("reload between checkout attempts failed")
		}
	}
	c.waitSuccess = func() error {
		wait := time.Duration(c.config.SuccessWaitSeconds) * time.Second
		return waitForURLPrefix(c.page, urlCartSuccess, wait)
	}
	return c
}

// PurchasePendingCart runs the full checkout sequence for the offers the
// reconciler put in the cart. Every attempt starts over from the cart page;
// failed attempts reload and retry up to the configured bound. Success is
// only claimed once the browser lands on the order-success URL - if that
// never happens the added offers are discarded from the outcome even though
// the cart mutation already went through.
func (c *Checkout) PurchasePendingCart(added []Offer) Outcome {
	if err := retryBounded(c.config.CheckoutRetries, c.attempt, c.reset); err != nil {
		c.log.Error().Err(err).Int("attempts", c.config.CheckoutRetries).Msg("checkout failed")
		return Outcome{Status: OutcomeFailed, Err: fmt.Errorf("%w: %v", errCheckoutExhausted, err)}
	}

	if err := c.waitSuccess(); err != nil {
		c.log.Warn().Err(err).Msg("order success page never arrived")
		return Outcome{Status: OutcomeFailed, Err: err}
	}

	c.log.Info().Int("offers", len(added)).Msg("weekly games collected")
	return Outcome{Status: OutcomeCollected, Added: added}
}

// purchaseAttempt is one pass through the whole sequence: cart page, paid
// item eviction, checkout click, license ack, payment container, regional
// confirm, and the verification challenge gating the final submit.
func (c *Checkout) purchaseAttempt() error {
	if err := c.page.Navigate(urlCart); err != nil {
		return fmt.Errorf("failed to open cart: %w", err)
	}
	if err := c.page.Timeout(c.timeout()).WaitLoad(); err != nil {
		return fmt.Errorf("cart page did not load: %w", err)
	}

	settled, err := settleCart(c.config.CartSettleRounds,
		time.Duration(c.config.CartSettleDelayMs)*time.Millisecond,
		c.evictPaidItems)
	if err != nil {
		return fmt.Errorf("failed to empty cart of paid items: %w", err)
	}
	if !settled {
		c.log.Warn().Msg("paid items still in cart after all eviction rounds")
	}

	if err := c.clickCheckout(); err != nil {
		return err
	}

	c.agreeLicense()

	if err := c.activatePaymentContainer(); err != nil {
		return err
	}

	c.confirmRegionalOrder()

	if err := c.solver.Resolve(c.page); err != nil {
		return fmt.Errorf("checkout challenge unresolved: %w", err)
	}

	return nil
}

// evictPaidItems scans the cart line items once and moves every non-free one
// to the wishlist. It reports whether anything was moved, which means the
// cart will re-render and needs another scan.
func (c *Checkout) evictPaidItems() (bool, error) {
	cards, err := c.page.Timeout(c.timeout()).ElementsX(c.config.Selectors.CartItemCard)
	if err != nil {
		return false, fmt.Errorf("cart items unreadable: %w", err)
	}

	moved := false
	for _, card := range cards {
		isFree, _, err := card.HasX(c.config.Selectors.FreeBadge)
		if err != nil || isFree {
			continue
		}
		wishlistBtn, err := card.ElementX(c.config.Selectors.MoveToWishlist)
		if err != nil {
			return moved, fmt.Errorf("wishlist button missing on paid item: %w", err)
		}
		c.log.Info().Msg("moving paid item to wishlist")
		if err := wishlistBtn.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return moved, fmt.Errorf("wishlist click failed: %w", err)
		}
		moved = true
	}
	return moved, nil
}

func (c *Checkout) clickCheckout() error {
	btn, err := c.page.Timeout(c.timeout()).ElementX(c.config.Selectors.CheckoutButton)
	if err != nil {
		return fmt.Errorf("checkout button not found: %w", err)
	}
	if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("checkout click failed: %w", err)
	}
	return nil
}

// agreeLicense checks the agreement box and clicks Accept when the regional
// flow presents one. Absence of either element is not an error.
func (c *Checkout) agreeLicense() {
	wait := time.Duration(c.config.LicenseWaitSeconds) * time.Second

	checkbox, err := c.page.Timeout(wait).ElementX(c.config.Selectors.LicenseCheckbox)
	if err != nil {
		c.log.Debug().Msg("no license agreement presented")
		return
	}
	if err := checkbox.Click(proto.InputMouseButtonLeft, 1); err != nil {
		c.log.Warn().Err(err).Msg("license checkbox click failed")
		return
	}

	accept, err := c.page.Timeout(5 * time.Second).ElementX(c.config.Selectors.LicenseAccept)
	if err != nil {
		c.log.Debug().Msg("license accept button not present")
		return
	}
	if err := accept.Click(proto.InputMouseButtonLeft, 1); err != nil {
		c.log.Warn().Err(err).Msg("license accept click failed")
		return
	}
	c.log.Info().Msg("license accepted")
}

// activatePaymentContainer waits for the embedded purchase frame to attach
// and clicks the order confirmation inside it.
func (c *Checkout) activatePaymentContainer() error {
	wait := time.Duration(c.config.PaymentWaitSeconds) * time.Second

	frameEl, err := c.page.Timeout(wait).ElementX(c.config.Selectors.PurchaseFrame)
	if err != nil {
		return fmt.Errorf("purchase frame never attached: %w", err)
	}
	frame, err := frameEl.Frame()
	if err != nil {
		return fmt.Errorf("purchase frame unreachable: %w", err)
	}

	paymentBtn, err := frame.Timeout(wait).ElementX(c.config.Selectors.PaymentConfirm)
	if err != nil {
		return fmt.Errorf("payment confirmation not found: %w", err)
	}

	// The frame re-renders shortly after attaching; clicking too early
	// lands on a detached node.
	time.Sleep(2 * time.Second)

	if err := paymentBtn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("payment confirmation click failed: %w", err)
	}

	c.log.Info().Msg("payment container activated")
	return nil
}

// confirmRegionalOrder clicks the extra zero-cost order confirmation some
// jurisdictions require. Best-effort: most regions never show it.
func (c *Checkout) confirmRegionalOrder() {
	wait := time.Duration(c.config.RegionConfirmWaitSeconds) * time.Second

	frameEl, err := c.page.Timeout(wait).ElementX(c.config.Selectors.PurchaseFrame)
	if err != nil {
		return
	}
	frame, err := frameEl.Frame()
	if err != nil {
		return
	}
	btn, err := frame.Timeout(wait).ElementX(c.config.Selectors.RegionConfirmButton)
	if err != nil {
		c.log.Debug().Msg("no regional order confirmation required")
		return
	}
	if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		c.log.Warn().Err(err).Msg("regional confirm click failed")
		return
	}
	c.log.Info().Msg("regional order confirmed")
}

func (c *Checkout) timeout() time.Duration {
	return time.Duration(c.config.PageLoadTimeout) * time.Second
}

// settleCart drives sweep until a pass moves nothing or the round budget
// runs out. The cart re-renders asynchronously after each removal, so each
// round waits before rescanning. Returns false when rounds were exhausted
// with items still moving.
func settleCart(rounds int, settle time.Duration, sweep func() (bool, error)) (bool, error) {
	for i := 0; i < rounds; i++ {
		moved, err := sweep()
		if err != nil {
			return false, err
		}
		if !moved {
			return true, nil
		}
		time.Sleep(settle)
	}
	return false, nil
}
