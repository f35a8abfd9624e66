package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Comma-delimited lists, paired by position. The Nth email goes with
	// the Nth password.
	Emails    string `yaml:"emails"`
	Passwords string `yaml:"passwords"`

	// Key for the challenge-solving extension loaded into the browser
	// profile. The claimer itself never calls the solving service; it only
	// warns when no key is configured, since challenges will then sit
	// unsolved until they time out.
	SolverAPIKey string `yaml:"solver_api_key"`

	TelegramBotToken string `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id"`

	UserDataDir string `yaml:"user_data_dir"`

	Headless  bool `yaml:"headless"`
	DebugMode bool `yaml:"debug_mode"`

	PageLoadTimeout int `yaml:"page_load_timeout"`
	TypeDelayMs     int `yaml:"type_delay_ms"`

	LoginRetries    int `yaml:"login_retries"`
	CheckoutRetries int `yaml:"checkout_retries"`

	CartSettleRounds  int `yaml:"cart_settle_rounds"`
	CartSettleDelayMs int `yaml:"cart_settle_delay_ms"`

	LicenseWaitSeconds       int `yaml:"license_wait_seconds"`
	PaymentWaitSeconds       int `yaml:"payment_wait_seconds"`
	RegionConfirmWaitSeconds int `yaml:"region_confirm_wait_seconds"`
	SuccessWaitSeconds       int `yaml:"success_wait_seconds"`

	ChallengeGraceSeconds int `yaml:"challenge_grace_seconds"`
	ChallengeWaitSeconds  int `yaml:"challenge_wait_seconds"`

	PromotionsURL string `yaml:"promotions_url"`

	// Explicit offer pages to reconcile. When empty the current weekly
	// promotions are fetched from the storefront API instead.
	OfferURLs []string `yaml:"offer_urls"`

	// Claim instants for schedule mode, e.g. "2025-01-16 16:00" (UTC).
	ClaimTimes       []string `yaml:"claim_times"`
	PreClaimMinutes  int      `yaml:"pre_claim_minutes"`
	PostClaimMinutes int      `yaml:"post_claim_minutes"`

	Selectors SelectorConfig `yaml:"selectors"`
}

type SelectorConfig struct {
	NavRoot           string `yaml:"nav_root"`
	AccountMenuButton string `yaml:"account_menu_button"`
	LogoutLink        string `yaml:"logout_link"`
	EmailInput        string `yaml:"email_input"`
	PasswordInput     string `yaml:"password_input"`
	SignInButton      string `yaml:"sign_in_button"`

	AsideButtons string `yaml:"aside_buttons"`
	PurchaseCTA  string `yaml:"purchase_cta"`
	AddToCartCTA string `yaml:"add_to_cart_cta"`

	CartItemCard   string `yaml:"cart_item_card"`
	FreeBadge      string `yaml:"free_badge"`
	MoveToWishlist string `yaml:"move_to_wishlist"`
	CheckoutButton string `yaml:"checkout_button"`

	LicenseCheckbox     string `yaml:"license_checkbox"`
	LicenseAccept       string `yaml:"license_accept"`
	PurchaseFrame       string `yaml:"purchase_frame"`
	PaymentConfirm      string `yaml:"payment_confirm"`
	RegionConfirmButton string `yaml:"region_confirm_button"`

	ChallengeFrame string `yaml:"challenge_frame"`
}

func DefaultConfig() *Config {
	return &Config{
		UserDataDir:              filepath.Join(userCacheDir(), "user_data"),
		Headless:                 true,
		DebugMode:                false,
		PageLoadTimeout:          29,
		TypeDelayMs:              30,
		LoginRetries:             3,
		CheckoutRetries:          5,
		CartSettleRounds:         30,
		CartSettleDelayMs:        2000,
		LicenseWaitSeconds:       29,
		PaymentWaitSeconds:       29,
		RegionConfirmWaitSeconds: 5,
		SuccessWaitSeconds:       30,
		ChallengeGraceSeconds:    5,
		ChallengeWaitSeconds:     120,
		PromotionsURL:            defaultPromotionsURL,
		PreClaimMinutes:          10,
		PostClaimMinutes:         20,
		Selectors: SelectorConfig{
			NavRoot:           "//egs-navigation",
			AccountMenuButton: "//button[@id='account-menu-button']",
			LogoutLink:        "//a[contains(@href, '/logout')]",
			EmailInput:        "#email",
			PasswordInput:     "#password",
			SignInButton:      "#sign-in",

			AsideButtons: "//aside//button",
			PurchaseCTA:  "//aside//button[@data-testid='purchase-cta-button']",
			AddToCartCTA: "//aside//button[@data-testid='add-to-cart-cta-button']",

			CartItemCard:   "//div[@data-testid='offer-card-layout-wrapper']",
			FreeBadge:      ".//span[text()='Free']",
			MoveToWishlist: ".//button//span[text()='Move to wishlist']",
			CheckoutButton: "//button//span[text()='Check Out']",

			LicenseCheckbox:     "//label[@for='agree']",
			LicenseAccept:       "//button//span[text()='Accept']",
			PurchaseFrame:       "//iframe[@class='']",
			PaymentConfirm:      "//div[@class='payment-order-confirm']",
			RegionConfirmButton: "//button[contains(@class, 'payment-confirm__btn payment-btn--primary')]",

			ChallengeFrame: "//iframe[contains(@src, 'hcaptcha')]",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := config.Save(path); err != nil {
			return nil, err
		}
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}

	if config.UserDataDir != "" {
		if err := os.MkdirAll(config.UserDataDir, 0755); err != nil {
			return nil, err
		}
	}

	return config, nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Account carries one storefront login. The password stays out of every log
// line and notification; only the email identifies the account.
type Account struct {
	Email    string
	Password string
}

// ParseAccounts pairs comma-delimited email and password lists. Blank pairs
// are dropped, a count mismatch is an error.
func ParseAccounts(emails, passwords string) ([]Account, error) {
	if strings.TrimSpace(emails) == "" || strings.TrimSpace(passwords) == "" {
		return nil, fmt.Errorf("no accounts configured: set emails and passwords")
	}

	emailList := strings.Split(emails, ",")
	passwordList := strings.Split(passwords, ",")

	if len(emailList) != len(passwordList) {
		return nil, fmt.Errorf("account mismatch: %d emails but %d passwords", len(emailList), len(passwordList))
	}

	var accounts []Account
	for i := range emailList {
		email := strings.TrimSpace(emailList[i])
		password := strings.TrimSpace(passwordList[i])
		if email == "" || password == "" {
			continue
		}
		accounts = append(accounts, Account{Email: email, Password: password})
	}

	if len(accounts) == 0 {
		return nil, fmt.Errorf("no usable accounts after trimming blank entries")
	}

	return accounts, nil
}

func userCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./gamenab-data"
	}
	return filepath.Join(home, ".gamenab")
}
