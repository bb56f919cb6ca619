/*
Package ldap provides the Active Directory connection layer used for
onboarding.

# Connection Management

Dial produces a Client that wraps exactly one bound connection:

  - Configured ldap:// or ldaps:// URLs, or SRV-based domain controller discovery
  - LDAPS or StartTLS, with optional CA bundle
  - Kerberos (GSSAPI), NTLM, or TLS-only simple bind
  - Automatic retry with exponential backoff

# Active Directory Helpers

The package also carries the encodings AD requires on the wire:

  - Bind paths derived from DNS domain names (BindPathForDomain)
  - RFC 4514 DN value escaping
  - unicodePwd password encoding
  - objectGUID and objectSid decoding
  - groupType flag calculation

# Errors

Failures are wrapped in *LDAPError, which carries an ErrorCategory and a
retryable flag. Use GetErrorCategory, IsNotFoundError, IsAuthenticationError
or ResultCode rather than inspecting go-ldap errors directly.
*/
package ldap
