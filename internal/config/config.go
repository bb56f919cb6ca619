// Package config loads onboarding settings from a file and the environment.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/isometry/ad-onboard/internal/identity"
	"github.com/isometry/ad-onboard/internal/ldap"
	"github.com/isometry/ad-onboard/internal/storage"
)

// EnvPrefix prefixes every environment override, e.g. AD_ONBOARD_LDAP_USERNAME.
const EnvPrefix = "AD_ONBOARD"

// Config is the complete tool configuration.
type Config struct {
	Domain         string             `mapstructure:"domain" validate:"required,fqdn"`
	LDAP           LDAPConfig         `mapstructure:"ldap"`
	Home           HomeConfig         `mapstructure:"home"`
	Provisioning   ProvisioningConfig `mapstructure:"provisioning"`
	OwnershipRetry RetryConfig        `mapstructure:"ownership_retry"`
	Metrics        MetricsConfig      `mapstructure:"metrics"`
}

// LDAPConfig describes how to reach and bind to the directory.
type LDAPConfig struct {
	URLs       []string       `mapstructure:"urls" validate:"omitempty,dive,url"`
	AuthMethod string         `mapstructure:"auth_method" default:"negotiate" validate:"oneof=negotiate kerberos ntlm simple"`
	Username   string         `mapstructure:"username"`
	Password   string         `mapstructure:"password"`
	NTLMDomain string         `mapstructure:"ntlm_domain"`
	Kerberos   KerberosConfig `mapstructure:"kerberos"`

	UseTLS             bool   `mapstructure:"use_tls" default:"true"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
	CACertFile         string `mapstructure:"ca_cert_file" validate:"omitempty,file"`

	Timeout        time.Duration `mapstructure:"timeout" default:"30s" validate:"gt=0"`
	MaxRetries     int           `mapstructure:"max_retries" default:"3" validate:"gte=0"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" default:"500ms" validate:"gt=0"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" default:"30s" validate:"gtefield=InitialBackoff"`
	BackoffFactor  float64       `mapstructure:"backoff_factor" default:"2.0" validate:"gt=1"`
}

// KerberosConfig holds GSSAPI settings.
type KerberosConfig struct {
	Realm  string `mapstructure:"realm"`
	Config string `mapstructure:"config" default:"/etc/krb5.conf"`
	Keytab string `mapstructure:"keytab" validate:"omitempty,file"`
	CCache string `mapstructure:"ccache"`
	SPN    string `mapstructure:"spn"`
}

// HomeConfig places home folders.
type HomeConfig struct {
	Drive string `mapstructure:"drive" default:"Z:"`
	Root  string `mapstructure:"root" default:"\\\\TEAMJOHN\\Bruger" validate:"required"`
}

// ProvisioningConfig tunes how entries are written.
type ProvisioningConfig struct {
	PasswordMode  string `mapstructure:"password_mode" default:"unicodepwd" validate:"oneof=unicodepwd extended"`
	EnableAccount bool   `mapstructure:"enable_account" default:"true"`
	GroupScope    string `mapstructure:"group_scope" default:"global" validate:"oneof=global universal domainlocal domain_local"`
	GroupCategory string `mapstructure:"group_category" default:"security" validate:"oneof=security distribution"`
}

// RetryConfig bounds the wait for a new account to become resolvable on
// the file server. At least one of MaxElapsed and MaxAttempts must be set.
type RetryConfig struct {
	InitialInterval time.Duration `mapstructure:"initial_interval" default:"500ms" validate:"gt=0"`
	MaxInterval     time.Duration `mapstructure:"max_interval" default:"10s" validate:"gtefield=InitialInterval"`
	Multiplier      float64       `mapstructure:"multiplier" default:"2.0" validate:"gte=1"`
	MaxElapsed      time.Duration `mapstructure:"max_elapsed" default:"2m" validate:"gte=0"`
	MaxAttempts     int           `mapstructure:"max_attempts" validate:"gte=0"`
}

// MetricsConfig controls the Prometheus textfile output.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// Load builds a Config from struct defaults, then the file at path (any
// format viper reads, skipped when path is empty), then AD_ONBOARD_*
// environment variables, then any changed flags in flags. Flags are
// bound by their key name, so a flag named "domain" overrides Domain.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range keys(reflect.TypeOf(*cfg), "") {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind environment for %s: %w", key, err)
		}
	}

	if flags != nil {
		for _, key := range []string{"domain"} {
			if f := flags.Lookup(key); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", key, err)
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	cfg.Domain = strings.TrimSuffix(strings.TrimSpace(cfg.Domain), ".")

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(validateRetryBounded, RetryConfig{})
	return v
}()

func validateRetryBounded(sl validator.StructLevel) {
	r := sl.Current().Interface().(RetryConfig)
	if r.MaxElapsed <= 0 && r.MaxAttempts <= 0 {
		sl.ReportError(r.MaxElapsed, "MaxElapsed", "MaxElapsed", "bounded", "")
	}
}

// Validate checks cfg against its validate tags.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// keys lists the dotted mapstructure keys of every leaf field in t.
func keys(t reflect.Type, prefix string) []string {
	var out []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := f.Tag.Get("mapstructure")
		if name == "" || name == "-" {
			continue
		}
		if prefix != "" {
			name = prefix + "." + name
		}
		if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Duration(0)) {
			out = append(out, keys(f.Type, name)...)
			continue
		}
		out = append(out, name)
	}
	return out
}

// ConnectionConfig converts the LDAP section into a dialer configuration.
func (c *Config) ConnectionConfig() (*ldap.ConnectionConfig, error) {
	method, err := ldap.ParseAuthMethod(c.LDAP.AuthMethod)
	if err != nil {
		return nil, err
	}

	cc := ldap.DefaultConfig()
	cc.Domain = c.Domain
	cc.LDAPURLs = append([]string(nil), c.LDAP.URLs...)
	cc.Timeout = c.LDAP.Timeout

	cc.AuthMethod = method
	cc.Username = c.LDAP.Username
	cc.Password = c.LDAP.Password
	cc.NTLMDomain = c.LDAP.NTLMDomain
	cc.KerberosRealm = c.LDAP.Kerberos.Realm
	cc.KerberosConfig = c.LDAP.Kerberos.Config
	cc.KerberosKeytab = c.LDAP.Kerberos.Keytab
	cc.KerberosCCache = c.LDAP.Kerberos.CCache
	cc.KerberosSPN = c.LDAP.Kerberos.SPN

	cc.UseTLS = c.LDAP.UseTLS
	cc.InsecureSkipVerify = c.LDAP.InsecureSkipVerify
	cc.TLSCACertFile = c.LDAP.CACertFile

	cc.MaxRetries = c.LDAP.MaxRetries
	cc.InitialBackoff = c.LDAP.InitialBackoff
	cc.MaxBackoff = c.LDAP.MaxBackoff
	cc.BackoffFactor = c.LDAP.BackoffFactor

	return cc, nil
}

// HomeLayout returns where home folders are created.
func (c *Config) HomeLayout() identity.HomeLayout {
	return identity.HomeLayout{Drive: c.Home.Drive, Root: c.Home.Root}
}

// RetryPolicy returns the ownership retry policy.
func (c *Config) RetryPolicy() storage.RetryPolicy {
	return storage.RetryPolicy{
		InitialInterval: c.OwnershipRetry.InitialInterval,
		MaxInterval:     c.OwnershipRetry.MaxInterval,
		Multiplier:      c.OwnershipRetry.Multiplier,
		MaxElapsed:      c.OwnershipRetry.MaxElapsed,
		MaxAttempts:     c.OwnershipRetry.MaxAttempts,
	}
}

// GroupType returns the configured scope and category for new groups.
func (c *Config) GroupType() (ldap.GroupScope, ldap.GroupCategory, error) {
	scope, err := ldap.ParseGroupScope(c.Provisioning.GroupScope)
	if err != nil {
		return "", "", err
	}
	category, err := ldap.ParseGroupCategory(c.Provisioning.GroupCategory)
	if err != nil {
		return "", "", err
	}
	return scope, category, nil
}
