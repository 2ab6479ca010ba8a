package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// CredentialPolicy lists the config keys treated as credential material.
type CredentialPolicy struct {
	DeniedKeys     []string `mapstructure:"deniedKeys"`
	DeniedSuffixes []string `mapstructure:"deniedSuffixes"`
	AllowedKeys    []string `mapstructure:"allowedKeys"`
}

func DefaultCredentialPolicy() CredentialPolicy {
	return CredentialPolicy{
		DeniedKeys: []string{
			"password",
			"passwd",
			"passphrase",
			"pwd",
			"secret",
			"key",
			"api_key",
			"apikey",
			"token",
			"access_token",
			"refresh_token",
			"private_key",
			"private_key_id",
			"access_key",
			"secret_key",
			"client_secret",
			"credentials",
			"credential",
			"service_account_json",
			"connection_string",
			"auth",
			"authorization",
			"bearer",
		},
		DeniedSuffixes: []string{
			"_secret",
			"_token",
			"_password",
			"_key",
			"_credentials",
			"_auth",
			"_passphrase",
		},
		AllowedKeys: []string{
			"primary_key",
			"partition_key",
			"sort_key",
			"cluster_key",
			"foreign_key",
		},
	}
}

// IsCredentialKey reports whether key looks like a credential field.
// Keys are compared in snake_case, so "apiKey" and "API-KEY" match "api_key".
func (p CredentialPolicy) IsCredentialKey(key string) bool {
	normalized := NormalizeKey(key)
	if normalized == "" {
		return false
	}
	for _, allowed := range p.AllowedKeys {
		if normalized == NormalizeKey(allowed) {
			return false
		}
	}
	for _, denied := range p.DeniedKeys {
		if normalized == NormalizeKey(denied) {
			return true
		}
	}
	for _, suffix := range p.DeniedSuffixes {
		suffix = strings.ToLower(strings.TrimSpace(suffix))
		if suffix != "" && strings.HasSuffix(normalized, suffix) {
			return true
		}
	}
	return false
}

// NormalizeKey lowercases key and converts camelCase, dashes and spaces to snake_case.
func NormalizeKey(key string) string {
	key = strings.TrimSpace(key)
	var b strings.Builder
	b.Grow(len(key) + 4)
	runes := []rune(key)
	for i, r := range runes {
		switch {
		case r == '-' || r == ' ' || r == '.':
			b.WriteRune('_')
		case unicode.IsUpper(r):
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])) {
				b.WriteRune('_')
			}
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

type CredentialPolicyHolder struct {
	current atomic.Value // holds CredentialPolicy
}

// NewStaticCredentialPolicyHolder returns a holder that never reloads.
func NewStaticCredentialPolicyHolder(policy CredentialPolicy) *CredentialPolicyHolder {
	holder := &CredentialPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewCredentialPolicyHolder(cfg Config, log *zap.Logger) (*CredentialPolicyHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.credential_policy")

	v := viper.New()
	if cfg.CredentialPolicyPath != "" {
		v.SetConfigFile(cfg.CredentialPolicyPath)
	} else {
		v.SetConfigName("credential_policy")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/lunara")
		v.AddConfigPath(".")
	}

	defaults := DefaultCredentialPolicy()
	v.SetDefault("credentialPolicy.deniedKeys", defaults.DeniedKeys)
	v.SetDefault("credentialPolicy.deniedSuffixes", defaults.DeniedSuffixes)
	v.SetDefault("credentialPolicy.allowedKeys", defaults.AllowedKeys)

	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		found = false
	}

	var policy CredentialPolicy
	if err := v.UnmarshalKey("credentialPolicy", &policy); err != nil {
		return nil, err
	}
	if err := validateCredentialPolicy(policy); err != nil {
		return nil, err
	}

	holder := NewStaticCredentialPolicyHolder(policy)
	if !found {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated CredentialPolicy
		if err := v.UnmarshalKey("credentialPolicy", &updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validateCredentialPolicy(updated); err != nil {
			log.Warn("invalid policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("credential policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *CredentialPolicyHolder) Get() CredentialPolicy {
	return h.current.Load().(CredentialPolicy)
}

func validateCredentialPolicy(policy CredentialPolicy) error {
	if len(policy.DeniedKeys) == 0 && len(policy.DeniedSuffixes) == 0 {
		return errors.New("credentialPolicy must deny at least one key or suffix")
	}
	return nil
}
