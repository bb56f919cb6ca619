package ldap

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	"github.com/hashicorp/terraform-plugin-log/tflog"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
)

// kerberosPrincipal is the resolved user and realm used for a GSSAPI bind.
type kerberosPrincipal struct {
	Username string
	Realm    string
}

// performKerberosAuth performs a GSSAPI bind on conn.
func performKerberosAuth(ctx context.Context, conn *ldap.Conn, cfg *ConnectionConfig, server *ServerInfo) error {
	principal, err := resolveKerberosPrincipal(cfg)
	if err != nil {
		return fmt.Errorf("kerberos configuration error: %w", err)
	}

	gssapiClient, err := createGSSAPIClient(ctx, cfg, principal)
	if err != nil {
		return fmt.Errorf("failed to create GSSAPI client: %w", err)
	}
	defer func() {
		_ = gssapiClient.DeleteSecContext()
	}()

	spn, err := buildServicePrincipal(cfg, server)
	if err != nil {
		return fmt.Errorf("failed to build service principal: %w", err)
	}

	tflog.SubsystemDebug(ctx, SubsystemLDAP, "Performing GSSAPI bind", map[string]any{
		"spn":   spn,
		"realm": principal.Realm,
	})

	if err := conn.GSSAPIBind(gssapiClient, spn, ""); err != nil {
		return fmt.Errorf("GSSAPI bind failed: %w", err)
	}

	return nil
}

// resolveKerberosPrincipal splits user@REALM when no realm is configured.
// cfg is not modified.
func resolveKerberosPrincipal(cfg *ConnectionConfig) (kerberosPrincipal, error) {
	if cfg == nil {
		return kerberosPrincipal{}, fmt.Errorf("configuration cannot be nil")
	}

	p := kerberosPrincipal{Username: cfg.Username, Realm: cfg.KerberosRealm}
	if user, realm, ok := strings.Cut(cfg.Username, "@"); ok {
		p.Username = user
		if p.Realm == "" {
			p.Realm = realm
		}
	}
	if p.Realm == "" && cfg.Domain != "" {
		p.Realm = strings.ToUpper(cfg.Domain)
	}

	if p.Realm == "" {
		return p, fmt.Errorf("kerberos realm is required (set kerberos_realm or include realm in username)")
	}
	if p.Username == "" && cfg.KerberosCCache == "" {
		return p, fmt.Errorf("username (principal) is required for Kerberos authentication")
	}

	return p, nil
}

// createGSSAPIClient creates a GSSAPI client from the configured credentials.
// Priority order: credential cache → keytab → password.
func createGSSAPIClient(ctx context.Context, cfg *ConnectionConfig, p kerberosPrincipal) (ldap.GSSAPIClient, error) {
	krb5confPath := cfg.KerberosConfig
	if krb5confPath == "" {
		krb5confPath = "/etc/krb5.conf"
	}

	if !fileExists(krb5confPath) {
		return nil, fmt.Errorf("kerberos configuration file not found at %s; "+
			"create it or set ldap.kerberos_config. Example minimal configuration:\n%s",
			krb5confPath, exampleKrb5Conf(p.Realm))
	}

	if cfg.KerberosCCache != "" && fileExists(cfg.KerberosCCache) {
		return gssapi.NewClientFromCCache(cfg.KerberosCCache, krb5confPath, krb5client.DisablePAFXFAST(true))
	}

	if cfg.KerberosKeytab != "" && fileExists(cfg.KerberosKeytab) {
		return gssapi.NewClientWithKeytab(p.Username, p.Realm, cfg.KerberosKeytab, krb5confPath, krb5client.DisablePAFXFAST(true))
	}

	if p.Username != "" && cfg.Password != "" {
		return gssapi.NewClientWithPassword(p.Username, p.Realm, cfg.Password, krb5confPath, krb5client.DisablePAFXFAST(true))
	}

	if ccache := defaultCCachePath(); fileExists(ccache) {
		tflog.SubsystemDebug(ctx, SubsystemLDAP, "Using default credential cache", map[string]any{
			"ccache": ccache,
		})
		return gssapi.NewClientFromCCache(ccache, krb5confPath, krb5client.DisablePAFXFAST(true))
	}

	return nil, fmt.Errorf("no suitable credentials found for Kerberos authentication")
}

// buildServicePrincipal returns the LDAP service principal for server.
// cfg.KerberosSPN overrides the automatic ldap/<host> form.
func buildServicePrincipal(cfg *ConnectionConfig, server *ServerInfo) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("configuration is required for service principal")
	}

	if cfg.KerberosSPN != "" {
		return cfg.KerberosSPN, nil
	}

	if server == nil || server.Host == "" {
		return "", fmt.Errorf("hostname is required for service principal")
	}

	hostname := server.Host
	if i := strings.Index(hostname, ":"); i != -1 {
		hostname = hostname[:i]
	}

	return "ldap/" + hostname, nil
}

// defaultCCachePath returns the credential cache named by KRB5CCNAME or the
// per-user default.
func defaultCCachePath() string {
	if ccache := os.Getenv("KRB5CCNAME"); ccache != "" {
		return strings.TrimPrefix(ccache, "FILE:")
	}
	return fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid())
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	file.Close()
	return true
}

func exampleKrb5Conf(realm string) string {
	if realm == "" {
		realm = "YOUR.REALM.COM"
	}
	kdc := "dc." + strings.ToLower(realm)

	return fmt.Sprintf(`[libdefaults]
    default_realm = %[1]s
    dns_lookup_realm = false
    dns_lookup_kdc = true

[realms]
    %[1]s = {
        kdc = %[2]s:88
    }

[domain_realm]
    .%[3]s = %[1]s
    %[3]s = %[1]s`, realm, kdc, strings.ToLower(realm))
}
