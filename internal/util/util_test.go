package util

import (
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddress(t *testing.T) {
	cases := map[string]string{
		"+55 (11) 98765-4321": "5511987654321",
		"5511987654321@c.us":  "5511987654321",
		"  011-2345-6789 ":    "01123456789",
		"abc":                 "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeAddress(in), in)
	}
}

func TestValidAddress(t *testing.T) {
	assert.True(t, ValidAddress("1198765432"))
	assert.True(t, ValidAddress("+55 11 98765 4321"))
	assert.False(t, ValidAddress("123456789"))
	assert.False(t, ValidAddress("12345678901234"))
}

func TestNew_IsSortableULID(t *testing.T) {
	a, b := New(), New()
	_, err := ulid.ParseStrict(a)
	require.NoError(t, err)
	assert.Less(t, a, b)
}
