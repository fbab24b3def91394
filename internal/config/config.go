package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds infrastructure-level configuration for the protocol engine.
// Per-wallet behavior (timeouts, deeplink routing) is keyed off wallet
// identity at runtime; only the knobs live here.
type Config struct {
	// Credential store
	StorePath string // sqlite file for the encrypted credential store

	// Keyring (at-rest encryption of credential store values)
	KeyringProvider   string // local, aws-kms or vault
	LocalMasterKeyHex string
	AWSKMSKeyID       string
	AWSKMSRegion      string
	VaultAddress      string
	VaultToken        string
	VaultTransitKey   string

	// MWA protocol timeouts
	AssociationTimeout         time.Duration
	ExtendedAssociationTimeout time.Duration // wallets needing hardware-backed confirmation
	HandshakeTimeout           time.Duration

	// Deeplink protocol
	AppURL          string   // dapp URL advertised in connect requests
	RedirectScheme  string   // custom scheme the wallet redirects back to
	Cluster         string   // chain cluster sent with connect requests
	DeeplinkWallets []string // wallets routed over the deeplink protocol

	// Identity of the dapp presented during MWA authorize
	IdentityName string
	IdentityURI  string

	// Backend collaborator (SIWS challenge service)
	BackendURL string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		StorePath:                  getEnv("STORE_PATH", "walletbridge.db"),
		KeyringProvider:            getEnv("KEYRING_PROVIDER", "local"),
		LocalMasterKeyHex:          getEnv("KEYRING_LOCAL_MASTER_KEY", ""),
		AWSKMSKeyID:                getEnv("KEYRING_AWS_KEY_ID", ""),
		AWSKMSRegion:               getEnv("KEYRING_AWS_REGION", ""),
		VaultAddress:               getEnv("KEYRING_VAULT_ADDR", ""),
		VaultToken:                 getEnv("KEYRING_VAULT_TOKEN", ""),
		VaultTransitKey:            getEnv("KEYRING_VAULT_TRANSIT_KEY", ""),
		AssociationTimeout:         getEnvDuration("MWA_ASSOCIATION_TIMEOUT", 30*time.Second),
		ExtendedAssociationTimeout: getEnvDuration("MWA_ASSOCIATION_TIMEOUT_EXTENDED", 60*time.Second),
		HandshakeTimeout:           getEnvDuration("MWA_HANDSHAKE_TIMEOUT", 45*time.Second),
		AppURL:                     getEnv("APP_URL", "https://lumeo.social"),
		RedirectScheme:             getEnv("REDIRECT_SCHEME", "lumeo"),
		Cluster:                    getEnv("CLUSTER", "mainnet-beta"),
		DeeplinkWallets:            getEnvList("DEEPLINK_WALLETS", []string{"phantom"}),
		IdentityName:               getEnv("IDENTITY_NAME", "Lumeo"),
		IdentityURI:                getEnv("IDENTITY_URI", "https://lumeo.social"),
		BackendURL:                 getEnv("BACKEND_URL", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.StorePath == "" {
		return fmt.Errorf("STORE_PATH is required")
	}

	switch c.KeyringProvider {
	case "local", "":
		if c.LocalMasterKeyHex == "" {
			return fmt.Errorf("KEYRING_LOCAL_MASTER_KEY is required when KEYRING_PROVIDER is 'local'")
		}
	case "aws-kms":
		if c.AWSKMSKeyID == "" {
			return fmt.Errorf("KEYRING_AWS_KEY_ID is required when KEYRING_PROVIDER is 'aws-kms'")
		}
		if c.AWSKMSRegion == "" {
			return fmt.Errorf("KEYRING_AWS_REGION is required when KEYRING_PROVIDER is 'aws-kms'")
		}
	case "vault":
		if c.VaultAddress == "" || c.VaultToken == "" || c.VaultTransitKey == "" {
			return fmt.Errorf("KEYRING_VAULT_ADDR, KEYRING_VAULT_TOKEN and KEYRING_VAULT_TRANSIT_KEY are required when KEYRING_PROVIDER is 'vault'")
		}
	default:
		return fmt.Errorf("KEYRING_PROVIDER must be 'local', 'aws-kms' or 'vault', got: %s", c.KeyringProvider)
	}

	if c.AssociationTimeout <= 0 || c.HandshakeTimeout <= 0 {
		return fmt.Errorf("MWA timeouts must be positive")
	}
	if c.ExtendedAssociationTimeout < c.AssociationTimeout {
		return fmt.Errorf("MWA_ASSOCIATION_TIMEOUT_EXTENDED must not be shorter than MWA_ASSOCIATION_TIMEOUT")
	}

	return nil
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvDuration gets a duration environment variable with a default value.
// Accepts Go duration strings ("30s") or plain seconds ("30").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// getEnvList gets a comma-separated environment variable with a default value.
func getEnvList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
