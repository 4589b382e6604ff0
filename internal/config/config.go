// Package config loads the service configuration from the environment.
// Two independent credential families exist at the gateway: the direct
// XML API and the Hosted Payment Page. They carry separate merchant ids,
// accounts and shared secrets; mixing them up produces signatures that
// never validate, so they are kept in separate structs end to end.
package config

import (
	"fmt"
	"os"
	"strings"
)

// APIConfig is the direct server-to-server credential family, also used
// for refunds and vault (tokenization) traffic.
type APIConfig struct {
	MerchantID string
	Account    string
	Secret     string
	URL        string
}

// HPPConfig is the Hosted Payment Page credential family.
type HPPConfig struct {
	MerchantID  string
	Account     string
	Secret      string
	URL         string
	ResponseURL string
}

// Config is the full service configuration.
type Config struct {
	Addr    string
	DataDir string
	PGDSN   string

	API APIConfig
	HPP HPPConfig

	VaultEnabled bool
	VaultAccount string

	// AllowClientResult opts into accepting the lightbox/iframe
	// "client-side" sentinel signature on HPP responses. Off by default:
	// turning it on trusts the browser's result code.
	AllowClientResult bool
}

// Load reads configuration from GPC_* environment variables. The gateway
// credential families are required; storage and listen settings have
// defaults suitable for local development.
func Load() (Config, error) {
	cfg := Config{
		Addr:    getenv("GPC_ADDR", ":8080"),
		DataDir: getenv("GPC_DATA_DIR", "data"),
		PGDSN:   getenv("GPC_PG_DSN", ""),
		API: APIConfig{
			MerchantID: getenv("GPC_API_MERCHANT_ID", ""),
			Account:    getenv("GPC_API_ACCOUNT", ""),
			Secret:     getenv("GPC_API_SECRET", ""),
			URL:        getenv("GPC_API_URL", ""),
		},
		HPP: HPPConfig{
			MerchantID:  getenv("GPC_HPP_MERCHANT_ID", ""),
			Account:     getenv("GPC_HPP_ACCOUNT", ""),
			Secret:      getenv("GPC_HPP_SECRET", ""),
			URL:         getenv("GPC_HPP_URL", ""),
			ResponseURL: getenv("GPC_HPP_RESPONSE_URL", ""),
		},
		VaultEnabled:      getenv("GPC_VAULT_ENABLED", "") == "true",
		AllowClientResult: getenv("GPC_ALLOW_CLIENT_RESULT", "") == "true",
	}

	// The vault runs under the API merchant but may use a dedicated
	// sub-account.
	cfg.VaultAccount = getenv("GPC_VAULT_ACCOUNT", cfg.API.Account)

	var missing []string
	for _, f := range []struct{ name, value string }{
		{"GPC_API_MERCHANT_ID", cfg.API.MerchantID},
		{"GPC_API_ACCOUNT", cfg.API.Account},
		{"GPC_API_SECRET", cfg.API.Secret},
		{"GPC_API_URL", cfg.API.URL},
		{"GPC_HPP_MERCHANT_ID", cfg.HPP.MerchantID},
		{"GPC_HPP_ACCOUNT", cfg.HPP.Account},
		{"GPC_HPP_SECRET", cfg.HPP.Secret},
		{"GPC_HPP_URL", cfg.HPP.URL},
		{"GPC_HPP_RESPONSE_URL", cfg.HPP.ResponseURL},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("config: missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
