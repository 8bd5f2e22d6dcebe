package minter

import (
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Timeouts bound the calls made during a mint attempt.
type Timeouts struct {
	// WalletOperation bounds each wallet data fetch.
	WalletOperation time.Duration `mapstructure:"wallet_operation" json:"walletOperation"`
	// Transaction bounds building, signing and submitting together.
	Transaction time.Duration `mapstructure:"transaction" json:"transaction"`
	// NetworkDetection bounds the wallet network id query.
	NetworkDetection time.Duration `mapstructure:"network_detection" json:"networkDetection"`
}

var DefaultTimeouts = Timeouts{
	WalletOperation:  10 * time.Second,
	Transaction:      2 * time.Minute,
	NetworkDetection: 5 * time.Second,
}

// WithDefaults fills any unset timeout from DefaultTimeouts.
func (t Timeouts) WithDefaults() Timeouts {
	if t.WalletOperation <= 0 {
		t.WalletOperation = DefaultTimeouts.WalletOperation
	}
	if t.Transaction <= 0 {
		t.Transaction = DefaultTimeouts.Transaction
	}
	if t.NetworkDetection <= 0 {
		t.NetworkDetection = DefaultTimeouts.NetworkDetection
	}
	return t
}

type Config struct {
	Blockfrost   BlockfrostConfig   `mapstructure:"blockfrost" json:"blockfrost"`
	WalletBridge WalletBridgeConfig `mapstructure:"wallet_bridge" json:"walletBridge"`
	Timeouts     Timeouts           `mapstructure:"timeouts" json:"timeouts"`
	Listen       string             `mapstructure:"listen" json:"listen"`
	Database     string             `mapstructure:"database" json:"database"`
	LogLevel     string             `mapstructure:"log_level" json:"logLevel"`
}

type BlockfrostConfig struct {
	MainNet string `mapstructure:"mainnet" json:"-"`
	PreProd string `mapstructure:"preprod" json:"-"`
}

func (c Config) Credentials() Credentials {
	return Credentials{
		NetworkMainNet: c.Blockfrost.MainNet,
		NetworkPreProd: c.Blockfrost.PreProd,
	}
}

type WalletBridgeConfig struct {
	// AllowedUrls are the bridge url prefixes clients may connect through.
	// When empty only loopback bridges are accepted.
	AllowedUrls []string `mapstructure:"allowed_urls" json:"allowedUrls"`
}

// BridgeAllowed checks a client supplied wallet bridge url. A url matches an
// allowed prefix when scheme and host are equal and its path sits under the
// prefix path.
func (c Config) BridgeAllowed(rawUrl string) error {
	parsed, err := url.Parse(strings.TrimSpace(rawUrl))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" || parsed.User != nil {
		return errors.Wrapf(ErrBridgeNotAllowed, "'%s'", rawUrl)
	}

	if len(c.WalletBridge.AllowedUrls) == 0 {
		if isLoopback(parsed.Hostname()) {
			return nil
		}
		return errors.Wrapf(ErrBridgeNotAllowed, "'%s' is not a loopback address", rawUrl)
	}

	for _, allowed := range c.WalletBridge.AllowedUrls {
		prefix, err := url.Parse(strings.TrimSpace(allowed))
		if err != nil || prefix.Host == "" {
			continue
		}
		if prefix.Scheme != parsed.Scheme || !strings.EqualFold(prefix.Host, parsed.Host) {
			continue
		}
		path := strings.TrimRight(prefix.Path, "/")
		if parsed.Path == path || strings.HasPrefix(parsed.Path, path+"/") {
			return nil
		}
	}

	return errors.Wrapf(ErrBridgeNotAllowed, "'%s'", rawUrl)
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
