// Package config handles loading and validation of service configuration.
// Supports both development (env vars) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"

	"storefront-checkout/internal/model"
)

// Defaults for optional settings.
const (
	DefaultPort            = "8080"
	DefaultSecretName      = "storefront-checkout"
	DefaultUpstreamTimeout = 15 * time.Second
	DefaultPickupName      = "Primary"
	minCartHashKeyLen      = 32
)

// Config holds all service configuration.
// Environment determines whether secrets load from env vars (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject string
	SecretName string

	// Storefront origin used for post-payment redirects
	SiteURL string

	// Per-call deadline for WooCommerce, Razorpay and Shiprocket
	UpstreamTimeout time.Duration

	// Optional shared lock store; empty means in-process locks
	RedisAddr     string
	RedisPassword string

	// Store credentials and settings (loaded from secrets in production)
	Store StoreConfig
}

// StoreConfig contains the platform credentials and store settings.
// In production, this is loaded from Secret Manager as JSON.
// In development, loaded from individual env vars or CONFIG_FILE.
type StoreConfig struct {
	StoreURL       string `json:"store_url"`
	ConsumerKey    string `json:"wc_consumer_key"`
	ConsumerSecret string `json:"wc_consumer_secret"`

	RazorpayKeyID         string `json:"razorpay_key_id"`
	RazorpayKeySecret     string `json:"razorpay_key_secret"`
	RazorpayWebhookSecret string `json:"razorpay_webhook_secret"`
	Currency              string `json:"currency,omitempty"`

	ShiprocketEmail    string `json:"shiprocket_email"`
	ShiprocketPassword string `json:"shiprocket_password"`
	PickupPostcode     string `json:"shiprocket_pickup_postcode"`
	PickupName         string `json:"shiprocket_pickup_name,omitempty"`
	ChannelID          string `json:"shiprocket_channel_id,omitempty"`

	// Cart cookie keys. The hash key signs, the optional block key encrypts.
	CartHashKey  string `json:"cart_hash_key"`
	CartBlockKey string `json:"cart_block_key,omitempty"`

	// Shared secret of the storefront login tokens; empty disables auth.
	JWTSecret string `json:"jwt_secret,omitempty"`
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	// If CONFIG_FILE is set, load everything from the JSON file
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	timeout, err := durationOrDefault(os.Getenv("UPSTREAM_TIMEOUT"), DefaultUpstreamTimeout)
	if err != nil {
		return nil, fmt.Errorf("parsing UPSTREAM_TIMEOUT: %w", err)
	}

	cfg := &Config{
		Port:            envOrDefault("PORT", DefaultPort),
		Environment:     envOrDefault("ENVIRONMENT", "development"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		GCPProject:      os.Getenv("GCP_PROJECT"),
		SecretName:      envOrDefault("SECRET_NAME", DefaultSecretName),
		SiteURL:         os.Getenv("SITE_URL"),
		UpstreamTimeout: timeout,
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
	}

	// Load store config based on environment
	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		err = cfg.loadFromSecretManager(ctx)
	} else {
		cfg.loadFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading store config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Use a struct that matches the JSON structure
	var fileConfig struct {
		Port            string      `json:"port"`
		Environment     string      `json:"environment"`
		LogLevel        string      `json:"log_level"`
		SiteURL         string      `json:"site_url"`
		UpstreamTimeout string      `json:"upstream_timeout"`
		RedisAddr       string      `json:"redis_addr"`
		RedisPassword   string      `json:"redis_password"`
		Store           StoreConfig `json:"store"`
	}

	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	timeout, err := durationOrDefault(fileConfig.UpstreamTimeout, DefaultUpstreamTimeout)
	if err != nil {
		return nil, fmt.Errorf("parsing upstream_timeout: %w", err)
	}

	cfg := &Config{
		Port:            withDefault(fileConfig.Port, DefaultPort),
		Environment:     withDefault(fileConfig.Environment, "development"),
		LogLevel:        withDefault(fileConfig.LogLevel, "info"),
		SiteURL:         fileConfig.SiteURL,
		UpstreamTimeout: timeout,
		RedisAddr:       fileConfig.RedisAddr,
		RedisPassword:   fileConfig.RedisPassword,
		Store:           fileConfig.Store,
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// loadFromSecretManager fetches the store config from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{secret_name}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.SecretName)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	if err := json.Unmarshal(result.Payload.Data, &c.Store); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}

	return nil
}

// loadFromEnv reads the store config from individual environment variables.
// Used in development mode for local testing.
func (c *Config) loadFromEnv() {
	c.Store = StoreConfig{
		StoreURL:              os.Getenv("STORE_URL"),
		ConsumerKey:           os.Getenv("WC_CONSUMER_KEY"),
		ConsumerSecret:        os.Getenv("WC_CONSUMER_SECRET"),
		RazorpayKeyID:         os.Getenv("RAZORPAY_KEY_ID"),
		RazorpayKeySecret:     os.Getenv("RAZORPAY_KEY_SECRET"),
		RazorpayWebhookSecret: os.Getenv("RAZORPAY_WEBHOOK_SECRET"),
		Currency:              os.Getenv("CURRENCY"),
		ShiprocketEmail:       os.Getenv("SHIPROCKET_EMAIL"),
		ShiprocketPassword:    os.Getenv("SHIPROCKET_PASSWORD"),
		PickupPostcode:        os.Getenv("SHIPROCKET_PICKUP_POSTCODE"),
		PickupName:            os.Getenv("SHIPROCKET_PICKUP_NAME"),
		ChannelID:             os.Getenv("SHIPROCKET_CHANNEL_ID"),
		CartHashKey:           os.Getenv("CART_HASH_KEY"),
		CartBlockKey:          os.Getenv("CART_BLOCK_KEY"),
		JWTSecret:             os.Getenv("JWT_SECRET"),
	}
}

func (c *Config) applyDefaults() {
	c.Store.StoreURL = strings.TrimSuffix(c.Store.StoreURL, "/")
	if c.Store.Currency == "" {
		c.Store.Currency = model.DefaultCurrency
	}
	if c.Store.PickupName == "" {
		c.Store.PickupName = DefaultPickupName
	}
	if c.SiteURL == "" {
		c.SiteURL = c.Store.StoreURL
	}
	c.SiteURL = strings.TrimSuffix(c.SiteURL, "/")
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"store_url", c.Store.StoreURL},
		{"wc_consumer_key", c.Store.ConsumerKey},
		{"wc_consumer_secret", c.Store.ConsumerSecret},
		{"razorpay_key_id", c.Store.RazorpayKeyID},
		{"razorpay_key_secret", c.Store.RazorpayKeySecret},
		{"razorpay_webhook_secret", c.Store.RazorpayWebhookSecret},
		{"shiprocket_email", c.Store.ShiprocketEmail},
		{"shiprocket_password", c.Store.ShiprocketPassword},
		{"shiprocket_pickup_postcode", c.Store.PickupPostcode},
		{"cart_hash_key", c.Store.CartHashKey},
	}
	for _, f := range required {
		if f.value == "" {
			return fmt.Errorf("%s is required", f.name)
		}
	}

	// Validate store URL is well-formed
	if u, err := url.Parse(c.Store.StoreURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid store_url: %q", c.Store.StoreURL)
	}
	if len(c.Store.CartHashKey) < minCartHashKeyLen {
		return fmt.Errorf("cart_hash_key must be at least %d bytes", minCartHashKeyLen)
	}
	switch len(c.Store.CartBlockKey) {
	case 0, 16, 24, 32:
	default:
		return fmt.Errorf("cart_block_key must be 16, 24 or 32 bytes")
	}

	return nil
}

// Production reports whether the service runs in production mode.
func (c *Config) Production() bool {
	return c.Environment == "production"
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func durationOrDefault(val string, defaultVal time.Duration) (time.Duration, error) {
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", val)
	}
	return d, nil
}
