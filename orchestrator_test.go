package main

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	messages []string
	fail     bool
}

func (n *recordingNotifier) Send(message string) error {
	n.messages = append(n.messages, message)
	if n.fail {
		return fmt.Errorf("delivery refused")
	}
	return nil
}

func newTestCollector(notifier Notifier) *Collector {
	return NewCollector(DefaultConfig(), nil, nil, notifier, zerolog.Nop())
}

func TestRunAllReportsEveryAccountOnce(t *testing.T) {
	notifier := &recordingNotifier{}
	c := newTestCollector(notifier)

	var processed []string
	c.pipeline = func(account Account, offerURLs []string) Outcome {
		processed = append(processed, account.Email)
		switch account.Email {
		case "a@example.com":
			return Outcome{Status: OutcomeCollected, Added: []Offer{{Title: "Control"}}}
		case "b@example.com":
			return Outcome{Status: OutcomeNoPending}
		default:
			return Outcome{Status: OutcomeFailed, Err: fmt.Errorf("boom")}
		}
	}

	accounts := []Account{
		{Email: "a@example.com", Password: "x"},
		{Email: "b@example.com", Password: "y"},
		{Email: "c@example.com", Password: "z"},
	}

	results := c.RunAll(accounts, []string{"https://store.example/p/control"})

	require.Len(t, results, 3)
	require.Equal(t, []string{"a@example.com", "b@example.com", "c@example.com"}, processed,
		"accounts run strictly in order")

	require.Equal(t, OutcomeCollected, results[0].Outcome.Status)
	require.Equal(t, OutcomeNoPending, results[1].Outcome.Status)
	require.Equal(t, OutcomeFailed, results[2].Outcome.Status)

	require.Len(t, notifier.messages, 3, "exactly one status line per account")
	require.Contains(t, notifier.messages[0], "Control")
	require.Contains(t, notifier.messages[2], "❌")
}

// One account blowing up must never take the rest of the batch with it.
func TestRunAllContainsPanics(t *testing.T) {
	notifier := &recordingNotifier{}
	c := newTestCollector(notifier)

	c.pipeline = func(account Account, offerURLs []string) Outcome {
		if account.Email == "a@example.com" {
			panic("browser vanished")
		}
		return Outcome{Status: OutcomeNoPending}
	}

	results := c.RunAll([]Account{
		{Email: "a@example.com"},
		{Email: "b@example.com"},
	}, nil)

	require.Len(t, results, 2)
	require.Equal(t, OutcomeFailed, results[0].Outcome.Status)
	require.ErrorContains(t, results[0].Outcome.Err, "browser vanished")
	require.Equal(t, OutcomeNoPending, results[1].Outcome.Status)
}

func TestRunAllSurvivesNotifierFailures(t *testing.T) {
	notifier := &recordingNotifier{fail: true}
	c := newTestCollector(notifier)
	c.pipeline = func(Account, []string) Outcome {
		return Outcome{Status: OutcomeNoPending}
	}

	results := c.RunAll([]Account{{Email: "a@example.com"}, {Email: "b@example.com"}}, nil)

	require.Len(t, results, 2)
	require.Len(t, notifier.messages, 2, "a failing notifier still gets every summary")
}

// An account with nothing left to claim ends its pipeline at the reconcile
// step; the checkout sequence must never start for it.
func TestCollectOneSkipsCheckoutWhenNothingPending(t *testing.T) {
	c := newTestCollector(&recordingNotifier{})
	c.authorize = func(Account) error { return nil }
	c.reconcile = func([]string) (bool, []Offer) { return false, nil }
	checkouts := 0
	c.checkout = func([]Offer) Outcome {
		checkouts++
		return Outcome{Status: OutcomeCollected}
	}

	out := c.collectOne(Account{Email: "a@example.com"}, []string{"https://store.example/p/control"})

	require.Equal(t, OutcomeNoPending, out.Status)
	require.Zero(t, checkouts, "empty reconcile pass must not reach checkout")
	require.Empty(t, out.Added)
}

func TestCollectOneChecksOutPendingOffers(t *testing.T) {
	c := newTestCollector(&recordingNotifier{})
	c.authorize = func(Account) error { return nil }
	pending := []Offer{{Title: "Control", State: stateFreeAddable}}
	c.reconcile = func([]string) (bool, []Offer) { return true, pending }
	var checkedOut []Offer
	c.checkout = func(added []Offer) Outcome {
		checkedOut = added
		return Outcome{Status: OutcomeCollected, Added: added}
	}

	out := c.collectOne(Account{Email: "a@example.com"}, nil)

	require.Equal(t, OutcomeCollected, out.Status)
	require.Equal(t, pending, checkedOut, "checkout receives exactly the reconciled offers")
}

func TestCollectOneStopsAfterAuthFailure(t *testing.T) {
	c := newTestCollector(&recordingNotifier{})
	c.authorize = func(Account) error { return errAuthExhausted }
	c.reconcile = func([]string) (bool, []Offer) {
		t.Fatal("reconcile must not run for an unauthorized account")
		return false, nil
	}
	c.checkout = func([]Offer) Outcome {
		t.Fatal("checkout must not run for an unauthorized account")
		return Outcome{}
	}

	out := c.collectOne(Account{Email: "a@example.com"}, nil)

	require.Equal(t, OutcomeFailed, out.Status)
	require.ErrorIs(t, out.Err, errAuthExhausted)
}

func TestRunAllAuthFailureIsTerminalForAccountOnly(t *testing.T) {
	notifier := &recordingNotifier{}
	c := newTestCollector(notifier)

	c.pipeline = func(account Account, offerURLs []string) Outcome {
		if account.Email == "a@example.com" {
			return Outcome{Status: OutcomeFailed, Err: errAuthExhausted}
		}
		return Outcome{Status: OutcomeCollected, Added: []Offer{{Title: "Hades"}}}
	}

	results := c.RunAll([]Account{{Email: "a@example.com"}, {Email: "b@example.com"}}, nil)

	require.Equal(t, OutcomeFailed, results[0].Outcome.Status)
	require.ErrorIs(t, results[0].Outcome.Err, errAuthExhausted)
	require.Equal(t, OutcomeCollected, results[1].Outcome.Status)
}
