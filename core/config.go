package core

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultExpirySafetyMarginSeconds is subtracted from the provider-stated
	// token lifetime before the expiry is persisted, so a record reported
	// fresh is still usable by the time it reaches the provider.
	DefaultExpirySafetyMarginSeconds = 120

	DefaultRequestTimeoutSeconds = 30

	DefaultAuthURL  = "https://login.microsoftonline.com/common/oauth2/v2.0/authorize"
	DefaultTokenURL = "https://login.microsoftonline.com/common/oauth2/v2.0/token"
)

func defaultScopes() []string {
	return []string{"offline_access", "Files.ReadWrite", "Sites.Read.All", "User.Read"}
}

type ProviderConfig struct {
	ClientID              string   `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret          string   `koanf:"client_secret" mapstructure:"client_secret"`
	RedirectURI           string   `koanf:"redirect_uri" mapstructure:"redirect_uri"`
	AuthURL               string   `koanf:"auth_url" mapstructure:"auth_url"`
	TokenURL              string   `koanf:"token_url" mapstructure:"token_url"`
	Scopes                []string `koanf:"scopes" mapstructure:"scopes"`
	RequestTimeoutSeconds int      `koanf:"request_timeout_seconds" mapstructure:"request_timeout_seconds"`
}

func (p ProviderConfig) RequestTimeout() time.Duration {
	if p.RequestTimeoutSeconds <= 0 {
		return DefaultRequestTimeoutSeconds * time.Second
	}
	return time.Duration(p.RequestTimeoutSeconds) * time.Second
}

type CryptoConfig struct {
	// Key is the base64 encoding of exactly 32 raw bytes. It is injected once
	// at start-up and never re-read or rotated within the process lifetime.
	Key string `koanf:"key" mapstructure:"key"`
}

// KeyBytes decodes and length-checks the configured key. A missing or
// wrong-length key is a fatal start-up condition for any cipher consumer.
func (c CryptoConfig) KeyBytes() ([]byte, error) {
	trimmed := strings.TrimSpace(c.Key)
	if trimmed == "" {
		return nil, fmt.Errorf("core: crypto key is required")
	}
	raw, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("core: decode crypto key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("core: crypto key must be 32 bytes, got %d", len(raw))
	}
	return raw, nil
}

type StoreConfig struct {
	URL                   string `koanf:"url" mapstructure:"url"`
	ServiceKey            string `koanf:"service_key" mapstructure:"service_key"`
	ConnectionsTable      string `koanf:"connections_table" mapstructure:"connections_table"`
	DestinationsTable     string `koanf:"destinations_table" mapstructure:"destinations_table"`
	RequestTimeoutSeconds int    `koanf:"request_timeout_seconds" mapstructure:"request_timeout_seconds"`
}

func (s StoreConfig) RequestTimeout() time.Duration {
	if s.RequestTimeoutSeconds <= 0 {
		return DefaultRequestTimeoutSeconds * time.Second
	}
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

type Config struct {
	ServiceName               string         `koanf:"service_name" mapstructure:"service_name"`
	ExpirySafetyMarginSeconds int            `koanf:"expiry_safety_margin_seconds" mapstructure:"expiry_safety_margin_seconds"`
	Provider                  ProviderConfig `koanf:"provider" mapstructure:"provider"`
	Crypto                    CryptoConfig   `koanf:"crypto" mapstructure:"crypto"`
	Store                     StoreConfig    `koanf:"store" mapstructure:"store"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:               "driveconnect",
		ExpirySafetyMarginSeconds: DefaultExpirySafetyMarginSeconds,
		Provider: ProviderConfig{
			AuthURL:               DefaultAuthURL,
			TokenURL:              DefaultTokenURL,
			Scopes:                defaultScopes(),
			RequestTimeoutSeconds: DefaultRequestTimeoutSeconds,
		},
		Store: StoreConfig{
			ConnectionsTable:      "drive_connections",
			DestinationsTable:     "drive_destinations",
			RequestTimeoutSeconds: DefaultRequestTimeoutSeconds,
		},
	}
}

func (c Config) ExpirySafetyMargin() time.Duration {
	if c.ExpirySafetyMarginSeconds < 0 {
		return 0
	}
	return time.Duration(c.ExpirySafetyMarginSeconds) * time.Second
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.ExpirySafetyMarginSeconds < 0 {
		return fmt.Errorf("core: expiry_safety_margin_seconds must not be negative")
	}
	return nil
}
