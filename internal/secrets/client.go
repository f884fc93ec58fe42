package secrets

import (
	"context"
	"fmt"
	"sync"

	"hyperliquid-alpha-bot/config"

	"github.com/hashicorp/vault/api"
)

// WalletKey is an agent wallet credential stored in the secrets backend.
// The private key signs exchange actions on the owner's behalf but can
// never withdraw.
type WalletKey struct {
	PrivateKey string `json:"private_key"`
	Address    string `json:"address"`
	Label      string `json:"label"`
	IsTestnet  bool   `json:"is_testnet"`
}

// Client wraps HashiCorp Vault's KV v2 engine for wallet keys, with an
// in-memory cache. When the backend is disabled the cache is the only
// store, which suits local development.
type Client struct {
	client *api.Client
	config config.SecretsConfig
	mu     sync.RWMutex
	cache  map[string]*WalletKey
}

func NewClient(cfg config.SecretsConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{
			config: cfg,
			cache:  make(map[string]*WalletKey),
		}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{CACert: cfg.CACert}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{
		client: client,
		config: cfg,
		cache:  make(map[string]*WalletKey),
	}, nil
}

// NewMockClient returns a disabled client backed only by the cache.
func NewMockClient() *Client {
	return &Client{
		config: config.SecretsConfig{Enabled: false},
		cache:  make(map[string]*WalletKey),
	}
}

// StoreWalletKey stores an agent wallet key for a Telegram user.
func (c *Client) StoreWalletKey(ctx context.Context, userID int64, key WalletKey) error {
	if !c.config.Enabled {
		c.mu.Lock()
		c.cache[c.cacheKey(userID, key.IsTestnet)] = &key
		c.mu.Unlock()
		return nil
	}

	path := c.secretPath(userID, key.IsTestnet)
	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"private_key": key.PrivateKey,
			"address":     key.Address,
			"label":       key.Label,
			"is_testnet":  key.IsTestnet,
		},
	}

	if _, err := c.client.Logical().WriteWithContext(ctx, path, secretData); err != nil {
		return fmt.Errorf("failed to store wallet key: %w", err)
	}

	c.mu.Lock()
	c.cache[c.cacheKey(userID, key.IsTestnet)] = &key
	c.mu.Unlock()
	return nil
}

// GetWalletKey retrieves a user's agent wallet key, from cache when
// possible.
func (c *Client) GetWalletKey(ctx context.Context, userID int64, isTestnet bool) (*WalletKey, error) {
	c.mu.RLock()
	if cached, ok := c.cache[c.cacheKey(userID, isTestnet)]; ok {
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return nil, fmt.Errorf("wallet key not found and secrets backend is disabled")
	}

	path := c.secretPath(userID, isTestnet)
	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet key: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("wallet key not found")
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format")
	}

	key := &WalletKey{
		PrivateKey: getString(data, "private_key"),
		Address:    getString(data, "address"),
		Label:      getString(data, "label"),
		IsTestnet:  getBool(data, "is_testnet"),
	}

	c.mu.Lock()
	c.cache[c.cacheKey(userID, isTestnet)] = key
	c.mu.Unlock()
	return key, nil
}

// DeleteWalletKey removes a user's wallet key and its metadata.
func (c *Client) DeleteWalletKey(ctx context.Context, userID int64, isTestnet bool) error {
	c.mu.Lock()
	delete(c.cache, c.cacheKey(userID, isTestnet))
	c.mu.Unlock()

	if !c.config.Enabled {
		return nil
	}

	if _, err := c.client.Logical().DeleteWithContext(ctx, c.metadataPath(userID, isTestnet)); err != nil {
		return fmt.Errorf("failed to delete wallet key: %w", err)
	}
	return nil
}

// RotateWalletKey replaces an existing key.
func (c *Client) RotateWalletKey(ctx context.Context, userID int64, newKey WalletKey) error {
	return c.StoreWalletKey(ctx, userID, newKey)
}

// InvalidateUser drops a user's cached keys.
func (c *Client) InvalidateUser(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, c.cacheKey(userID, false))
	delete(c.cache, c.cacheKey(userID, true))
}

// IsEnabled reports whether the real backend is in use.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Health checks the backend connection.
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}
	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}

func (c *Client) secretPath(userID int64, isTestnet bool) string {
	return fmt.Sprintf("%s/data/%s/%d/%s", c.config.MountPath, c.config.SecretPath, userID, network(isTestnet))
}

func (c *Client) metadataPath(userID int64, isTestnet bool) string {
	return fmt.Sprintf("%s/metadata/%s/%d/%s", c.config.MountPath, c.config.SecretPath, userID, network(isTestnet))
}

func (c *Client) cacheKey(userID int64, isTestnet bool) string {
	return fmt.Sprintf("%d/%s", userID, network(isTestnet))
}

func network(isTestnet bool) string {
	if isTestnet {
		return "testnet"
	}
	return "mainnet"
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func getBool(data map[string]interface{}, key string) bool {
	if val, ok := data[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}
