package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Notifier delivers one human-readable status line per processed account.
// Delivery failures are never fatal to the batch.
type Notifier interface {
	Send(message string) error
}

const telegramAPIBase = "https://api.telegram.org"

type TelegramNotifier struct {
	client  *http.Client
	apiBase string
	token   string
	chatID  string
}

func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return newTelegramNotifier(telegramAPIBase, token, chatID, &http.Client{Timeout: 10 * time.Second})
}

func newTelegramNotifier(apiBase, token, chatID string, client *http.Client) *TelegramNotifier {
	return &TelegramNotifier{
		client:  client,
		apiBase: apiBase,
		token:   token,
		chatID:  chatID,
	}
}

func (n *TelegramNotifier) Send(message string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.token)

	resp, err := n.client.PostForm(endpoint, url.Values{
		"chat_id": {n.chatID},
		"text":    {message},
	})
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// logNotifier is the fallback when no delivery channel is configured.
type logNotifier struct {
	log zerolog.Logger
}

func (n logNotifier) Send(message string) error {
	n.log.Info().Str("summary", message).Msg("account processed")
	return nil
}

// NewNotifier picks Telegram when a bot token and chat are configured,
// otherwise summaries go to the log only.
func NewNotifier(config *Config, log zerolog.Logger) Notifier {
	if config.TelegramBotToken != "" && config.TelegramChatID != "" {
		return NewTelegramNotifier(config.TelegramBotToken, config.TelegramChatID)
	}
	return logNotifier{log: log.With().Str("component", "notify").Logger()}
}

// buildAccountSummary renders the one terminal status string an account
// yields, whatever happened internally.
func buildAccountSummary(email string, outcome Outcome) string {
	switch outcome.Status {
	case OutcomeCollected:
		labels := make([]string, 0, len(outcome.Added))
		for _, offer := range outcome.Added {
			labels = append(labels, offer.Label())
		}
		return fmt.Sprintf("✅ %s: collected %s", email, strings.Join(labels, ", "))
	case OutcomeNoPending:
		return fmt.Sprintf("✅ %s: no new free games this week", email)
	default:
		if outcome.Err != nil {
			return fmt.Sprintf("❌ %s: %v", email, outcome.Err)
		}
		return fmt.Sprintf("❌ %s: claim failed", email)
	}
}
