package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

// Storefront button labels the reconciler keys off.
const (
	markerOwned     = "In Library"
	markerBuyNow    = "Buy Now"
	markerGet       = "Get"
	markerAddToCart = "Add To Cart"
	markerInCart    = "View In Cart"
)

type eligibilityState int

const (
	stateUnknown eligibilityState = iota
	stateOwnedAlready
	stateNotPurchasable
	stateFreeAddable
	stateAlreadyInCart
)

func (s eligibilityState) String() string {
	switch s {
	case stateOwnedAlready:
		return "owned"
	case stateNotPurchasable:
		return "not purchasable"
	case stateFreeAddable:
		return "free, addable"
	case stateAlreadyInCart:
		return "already in cart"
	default:
		return "unknown"
	}
}

// Offer is one storefront item under reconciliation. Offers live for a
// single pass and are never persisted.
type Offer struct {
	URL   string
	Title string
	State eligibilityState
}

func (o Offer) Label() string {
	if o.Title != "" {
		return o.Title
	}
	return o.URL
}

// classifyOffer maps the three button labels of an offer page onto an
// eligibility state. Kept free of any page access so the heuristics are
// testable on their own.
func classifyOffer(asideText, purchaseLabel, cartLabel string) eligibilityState {
	if strings.Contains(asideText, markerOwned) {
		return stateOwnedAlready
	}
	if strings.Contains(purchaseLabel, markerBuyNow) || !strings.Contains(purchaseLabel, markerGet) {
		return stateNotPurchasable
	}
	switch strings.TrimSpace(cartLabel) {
	case markerInCart:
		return stateAlreadyInCart
	case markerAddToCart:
		return stateFreeAddable
	}
	return stateUnknown
}

// Reconciler brings the cart to the desired state: every free, not-yet-owned
// offer in, everything else untouched.
type Reconciler struct {
	page   *rod.Page
	config *Config
	log    zerolog.Logger
}

func NewReconciler(page *rod.Page, config *Config, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		page:   page,
		config: config,
		log:    log.With().Str("component", "cart").Logger(),
	}
}

// AddEligible walks the offer URLs in order, classifies each one, and clicks
// the free ones into the cart. A failing offer is logged and skipped; one bad
// page never aborts the pass. Offers already sitting in the cart count as
// pending and are included in the returned list so the account summary can
// name every title the checkout will collect.
func (r *Reconciler) AddEligible(offerURLs []string) (bool, []Offer) {
	hasPendingFree := false
	var added []Offer

	for _, url := range offerURLs {
		offer, err := r.evaluateOffer(url)
		if err != nil {
			r.log.Warn().Err(err).Str("url", url).Msg("failed to evaluate offer, skipping")
			continue
		}

		r.log.Info().Str("url", url).Stringer("state", offer.State).Msg("offer classified")

		switch offer.State {
		case stateFreeAddable, stateAlreadyInCart:
			hasPendingFree = true
			added = append(added, offer)
		}
	}

	return hasPendingFree, added
}

// evaluateOffer classifies one offer page and, for a free claimable offer,
// performs the add-to-cart click and verifies the label flips to "in cart".
func (r *Reconciler) evaluateOffer(url string) (Offer, error) {
	offer := Offer{URL: url}

	if err := r.page.Navigate(url); err != nil {
		return offer, fmt.Errorf("navigation failed: %w", err)
	}
	if err := r.page.Timeout(r.timeout()).WaitLoad(); err != nil {
		return offer, fmt.Errorf("offer page did not load: %w", err)
	}

	asideText, err := r.sidebarText()
	if err != nil {
		return offer, err
	}

	// Owned offers short-circuit before the CTA labels are read: the
	// purchase buttons are absent once a game is in the library.
	if strings.Contains(asideText, markerOwned) {
		offer.State = stateOwnedAlready
		return offer, nil
	}

	purchaseLabel, err := r.buttonText(r.config.Selectors.PurchaseCTA)
	if err != nil {
		return offer, fmt.Errorf("purchase button unreadable: %w", err)
	}

	cartLabel := ""
	if cl, err := r.buttonText(r.config.Selectors.AddToCartCTA); err == nil {
		cartLabel = cl
	}

	offer.State = classifyOffer(asideText, purchaseLabel, cartLabel)
	offer.Title = r.offerTitle()

	if offer.State == stateFreeAddable {
		if err := r.addToCart(); err != nil {
			return offer, err
		}
	}

	return offer, nil
}

func (r *Reconciler) addToCart() error {
	btn, err := r.page.Timeout(r.timeout()).ElementX(r.config.Selectors.AddToCartCTA)
	if err != nil {
		return fmt.Errorf("add-to-cart button not found: %w", err)
	}
	if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("add-to-cart click failed: %w", err)
	}

	// The label must flip to "in cart" or the click did not take.
	deadline := time.Now().Add(r.timeout())
	for time.Now().Before(deadline) {
		label, err := r.buttonText(r.config.Selectors.AddToCartCTA)
		if err == nil && strings.TrimSpace(label) == markerInCart {
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("cart button never confirmed the add")
}

func (r *Reconciler) sidebarText() (string, error) {
	buttons, err := r.page.Timeout(r.timeout()).ElementsX(r.config.Selectors.AsideButtons)
	if err != nil {
		return "", fmt.Errorf("sidebar buttons unreadable: %w", err)
	}
	var sb strings.Builder
	for _, btn := range buttons {
		text, err := btn.Text()
		if err != nil {
			continue
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

func (r *Reconciler) buttonText(xpath string) (string, error) {
	btn, err := r.page.Timeout(r.timeout()).ElementX(xpath)
	if err != nil {
		return "", err
	}
	return btn.Text()
}

func (r *Reconciler) offerTitle() string {
	result, err := r.page.Eval(`() => document.title`)
	if err != nil {
		return ""
	}
	return trimStoreSuffix(result.Value.Str())
}

func (r *Reconciler) timeout() time.Duration {
	return time.Duration(r.config.PageLoadTimeout) * time.Second
}

// trimStoreSuffix cuts the storefront boilerplate off a document title,
// e.g. "Control | Download and Buy Today - Epic Games Store" -> "Control".
func trimStoreSuffix(title string) string {
	if i := strings.Index(title, " | "); i >= 0 {
		title = title[:i]
	}
	return strings.TrimSpace(title)
}
