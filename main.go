package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	emails := flag.String("email", "", "Account email (comma-separate for multiple accounts, overrides config)")
	passwords := flag.String("password", "", "Account password (comma-separate, paired with -email)")
	apiKey := flag.String("api-key", "", "API key for the challenge solving agent")
	userDataDir := flag.String("user-data-dir", "", "Directory for the persistent browser profile")
	allGames := flag.Bool("all-games", false, "Collect the whole free catalog, not just weekly promotions")
	schedule := flag.Bool("schedule", false, "Wait for the configured claim times instead of running immediately")
	headless := flag.Bool("headless", true, "Run the browser headless (-headless=false shows the window)")
	debug := flag.Bool("debug", false, "Enable detailed debug logging")
	flag.Parse()

	headlessSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "headless" {
			headlessSet = true
		}
	})

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()
	if *debug {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	if *allGames {
		fmt.Println("🙌 -all-games is not implemented yet.")
		return
	}

	config, err := LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	applyOverrides(config, *emails, *passwords, *apiKey, *userDataDir, *headless, headlessSet, *debug)

	accounts, err := ParseAccounts(config.Emails, config.Passwords)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid account configuration")
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║               Epic Free Games Collector                   ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("Accounts: %d\n", len(accounts))
	fmt.Printf("Browser Profile: %s\n", config.UserDataDir)
	if config.DebugMode {
		fmt.Println("🔍 DEBUG MODE - Detailed logging enabled")
	}
	fmt.Println()

	fmt.Println("🌐 Step 1: Launching browser...")
	browser := NewBrowser(config, logger)
	if err := browser.Start(config.UserDataDir); err != nil {
		logger.Fatal().Err(err).Msg("failed to start browser")
	}
	defer browser.Close()

	page, err := browser.NewStealthPage()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open page")
	}

	solver := NewFrameSolver(config, logger)
	notifier := NewNotifier(config, logger)
	collector := NewCollector(config, page, solver, notifier, logger)

	runBatch := func() error {
		if !browser.Alive() {
			return fmt.Errorf("browser is no longer running")
		}

		offerURLs := config.OfferURLs
		if len(offerURLs) == 0 {
			promotions, err := FetchPromotions(&http.Client{Timeout: 30 * time.Second}, config.PromotionsURL)
			if err != nil {
				return fmt.Errorf("failed to fetch weekly promotions: %w", err)
			}
			for _, game := range promotions {
				logger.Info().Str("title", game.Title).Str("url", game.URL).Msg("weekly promotion")
				offerURLs = append(offerURLs, game.URL)
			}
		}
		if len(offerURLs) == 0 {
			logger.Info().Msg("no free promotions available right now")
			return nil
		}

		results := collector.RunAll(accounts, offerURLs)
		for _, result := range results {
			logger.Info().Str("account", result.Email).Str("summary", buildAccountSummary(result.Email, result.Outcome)).Msg("account done")
		}
		return nil
	}

	if *schedule && len(config.ClaimTimes) > 0 {
		fmt.Println("⏰ Step 2: Waiting for the configured claim windows...")
		scheduler := NewScheduler(config, logger, runBatch)
		if err := scheduler.Run(); err != nil {
			logger.Fatal().Err(err).Msg("scheduled claims failed")
		}
	} else {
		fmt.Println("🚀 Step 2: Claiming this week's free games...")
		if err := runBatch(); err != nil {
			logger.Fatal().Err(err).Msg("claim run failed")
		}
	}

	fmt.Println()
	fmt.Println("✓ Collection run completed")
}

// applyOverrides layers flags and environment variables over the config
// file. Flags win over env vars, env vars win over the file. headlessSet
// marks whether -headless was given explicitly; only then does it override
// the file, in either direction.
func applyOverrides(config *Config, emails, passwords, apiKey, userDataDir string, headless, headlessSet, debug bool) {
	if v := os.Getenv("EPIC_EMAIL"); v != "" {
		config.Emails = v
	}
	if v := os.Getenv("EPIC_PASSWORD"); v != "" {
		config.Passwords = v
	}
	if v := os.Getenv("SOLVER_API_KEY"); v != "" {
		config.SolverAPIKey = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		config.TelegramBotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		config.TelegramChatID = v
	}

	if emails != "" {
		config.Emails = emails
	}
	if passwords != "" {
		config.Passwords = passwords
	}
	if apiKey != "" {
		config.SolverAPIKey = apiKey
	}
	if userDataDir != "" {
		config.UserDataDir = userDataDir
	}
	if headlessSet {
		config.Headless = headless
	}
	if debug {
		config.DebugMode = true
	}
}
