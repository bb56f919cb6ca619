package identity

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretRedaction(t *testing.T) {
	s := NewSecret("Welcome1")

	assert.Equal(t, "Welcome1", s.Reveal())
	assert.False(t, s.IsEmpty())
	assert.True(t, NewSecret("").IsEmpty())

	for _, format := range []string{"%v", "%+v", "%#v", "%s", "%q", "%x"} {
		assert.Equal(t, "[REDACTED]", fmt.Sprintf(format, s), format)
	}
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", s.GoString())

	out, err := json.Marshal(map[string]Secret{"password": s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"password":"[REDACTED]"}`, string(out))
}
