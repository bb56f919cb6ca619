package ldap

import (
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var adGUIDBytes = []byte{
	0xff, 0x19, 0x96, 0x6f, 0x86, 0x8b, 0x11, 0xd0,
	0xb4, 0x2d, 0x00, 0xc0, 0x4f, 0xc9, 0x64, 0xff,
}

const adGUIDString = "6f9619ff-8b86-d011-b42d-00c04fc964ff"

func TestDecodeGUID(t *testing.T) {
	got, err := DecodeGUID(adGUIDBytes)
	require.NoError(t, err)
	assert.Equal(t, adGUIDString, got)

	_, err = DecodeGUID(adGUIDBytes[:15])
	assert.Error(t, err)
}

func TestExtractGUID(t *testing.T) {
	entry := &ldap.Entry{
		DN: "CN=Anna Hansen,OU=danskvinimport,DC=local",
		Attributes: []*ldap.EntryAttribute{
			{Name: "objectGUID", ByteValues: [][]byte{adGUIDBytes}},
		},
	}

	got, err := ExtractGUID(entry)
	require.NoError(t, err)
	assert.Equal(t, adGUIDString, got)

	_, err = ExtractGUID(&ldap.Entry{DN: "CN=x"})
	assert.Error(t, err)

	_, err = ExtractGUID(nil)
	assert.Error(t, err)
}
