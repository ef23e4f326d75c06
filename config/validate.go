package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate rejects configurations the node cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ChainID) == "" {
		return fmt.Errorf("ChainID must be set")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir must be set")
	}
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("RPCAddress must be set")
	}
	if c.RPC.RequestsPerMinute < 0 || c.RPC.Burst < 0 {
		return fmt.Errorf("rpc: rate limits must not be negative")
	}
	if c.RPC.RequestsPerMinute > 0 && c.RPC.Burst == 0 {
		return fmt.Errorf("rpc: Burst must be positive when RequestsPerMinute is set")
	}
	if c.Quota.MaxRequestsPerEpoch > 0 && c.Quota.EpochSeconds == 0 {
		return fmt.Errorf("quota: EpochSeconds must be positive when MaxRequestsPerEpoch is set")
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 {
		return fmt.Errorf("log: rotation limits must not be negative")
	}
	if raw := strings.TrimSpace(c.Indexer.AMQPURL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("indexer: invalid AMQPURL: %w", err)
		}
		if u.Scheme != "amqp" && u.Scheme != "amqps" {
			return fmt.Errorf("indexer: AMQPURL scheme must be amqp or amqps")
		}
		if strings.TrimSpace(c.Indexer.Exchange) == "" {
			return fmt.Errorf("indexer: Exchange must be set when AMQPURL is configured")
		}
	}
	if raw := strings.TrimSpace(c.Webhook.URL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("webhook: URL must be an absolute http(s) URL")
		}
		if strings.TrimSpace(c.Webhook.Secret) == "" {
			return fmt.Errorf("webhook: Secret must be set when URL is configured")
		}
	}
	if c.Webhook.MaxAttempts < 0 {
		return fmt.Errorf("webhook: MaxAttempts must not be negative")
	}
	return nil
}
