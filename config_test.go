package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.NotNil(t, config)

	require.Equal(t, 3, config.LoginRetries)
	require.Equal(t, 5, config.CheckoutRetries)
	require.Equal(t, 30, config.CartSettleRounds)
	require.Equal(t, 2000, config.CartSettleDelayMs)
	require.Equal(t, 29, config.PageLoadTimeout)
	require.Equal(t, 30, config.SuccessWaitSeconds)
	require.True(t, config.Headless)

	require.NotEmpty(t, config.Selectors.AddToCartCTA)
	require.NotEmpty(t, config.Selectors.CartItemCard)
	require.NotEmpty(t, config.Selectors.NavRoot)
	require.NotEmpty(t, config.PromotionsURL)
}

func TestConfigSaveAndLoad(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "test-config.yaml")

	config := DefaultConfig()
	config.Emails = "one@example.com,two@example.com"
	config.Passwords = "pw1,pw2"
	config.LoginRetries = 7
	config.Headless = false
	config.UserDataDir = filepath.Join(tempDir, "profile")

	require.NoError(t, config.Save(configPath))

	loaded, err := LoadConfig(configPath)
	require.NoError(t, err)

	require.Equal(t, config.Emails, loaded.Emails)
	require.Equal(t, config.Passwords, loaded.Passwords)
	require.Equal(t, 7, loaded.LoginRetries)
	require.False(t, loaded.Headless)
}

func TestLoadConfigCreatesDefaultIfMissing(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "new-config.yaml")

	config, err := LoadConfig(configPath)
	require.NoError(t, err)
	require.NotNil(t, config)

	_, err = os.Stat(configPath)
	require.NoError(t, err, "config file should have been created")

	require.Equal(t, 3, config.LoginRetries)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid-config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("invalid: yaml: content: [unclosed"), 0644))

	_, err := LoadConfig(configPath)
	require.Error(t, err)
}

func TestParseAccounts(t *testing.T) {
	tests := []struct {
		name      string
		emails    string
		passwords string
		want      []Account
		wantErr   string
	}{
		{
			name:      "single account",
			emails:    "a@example.com",
			passwords: "secret",
			want:      []Account{{Email: "a@example.com", Password: "secret"}},
		},
		{
			name:      "multiple accounts with whitespace",
			emails:    "a@example.com, b@example.com",
			passwords: "pw1 , pw2",
			want: []Account{
				{Email: "a@example.com", Password: "pw1"},
				{Email: "b@example.com", Password: "pw2"},
			},
		},
		{
			name:      "count mismatch",
			emails:    "a@example.com,b@example.com",
			passwords: "pw1",
			wantErr:   "account mismatch",
		},
		{
			name:      "empty configuration",
			emails:    "",
			passwords: "",
			wantErr:   "no accounts configured",
		},
		{
			name:      "blank pair dropped",
			emails:    "a@example.com,,b@example.com",
			passwords: "pw1,,pw2",
			want: []Account{
				{Email: "a@example.com", Password: "pw1"},
				{Email: "b@example.com", Password: "pw2"},
			},
		},
		{
			name:      "only blank pairs",
			emails:    " , ",
			passwords: " , ",
			wantErr:   "no usable accounts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts, err := ParseAccounts(tt.emails, tt.passwords)
			if tt.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, accounts)
		})
	}
}
