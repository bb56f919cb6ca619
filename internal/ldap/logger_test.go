package ldap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFields(t *testing.T) {
	fields := map[string]any{
		"username":     "svc-onboard",
		"Password":     "hunter2",
		"unicodePwd":   "\"x\"",
		"new_password": "Welcome1",
		"filter":       "(cn=Marketing)",
		"raw":          "user=svc password=hunter2",
		"attempts":     3,
	}

	got := SanitizeFields(fields)

	assert.Equal(t, "svc-onboard", got["username"])
	assert.Equal(t, "[REDACTED]", got["Password"])
	assert.Equal(t, "[REDACTED]", got["unicodePwd"])
	assert.Equal(t, "[REDACTED]", got["new_password"])
	assert.Equal(t, "(cn=Marketing)", got["filter"])
	assert.Equal(t, "[REDACTED]", got["raw"])
	assert.Equal(t, 3, got["attempts"])
	assert.Equal(t, "hunter2", fields["Password"], "input must not be modified")
}
