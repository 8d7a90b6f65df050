package ton

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xssnick/tonutils-go/address"
)

func TestNormalizeAddress(t *testing.T) {
	hash := bytes.Repeat([]byte{0xab}, 32)
	raw := "0:" + hex.EncodeToString(hash)

	got, err := NormalizeAddress(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	// user-friendly формат того же кошелька дает тот же идентификатор
	friendly := address.NewAddress(0, 0, hash)
	for _, bounce := range []bool{true, false} {
		friendly.SetBounce(bounce)
		got, err = NormalizeAddress(friendly.String())
		require.NoError(t, err)
		assert.Equal(t, raw, got)
	}

	got, err = NormalizeAddress("  " + raw + "\n")
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestNormalizeAddress_Invalid(t *testing.T) {
	for _, addr := range []string{
		"",
		"alice",
		"0:zz",
		"0:abcd",
		"5:" + hex.EncodeToString(make([]byte, 32)),
		"EQDKbjIcfM6ezt8KjKJJLshZJJSqX7XOA4ff-W72r5gqPrXX",
	} {
		_, err := NormalizeAddress(addr)
		assert.ErrorIs(t, err, ErrBadAddress, addr)
		assert.False(t, ValidateAddress(addr))
	}
}

func TestShortAddress(t *testing.T) {
	raw := "0:" + hex.EncodeToString(bytes.Repeat([]byte{1}, 32))
	short := ShortAddress(raw)
	assert.Len(t, short, 13)
	assert.Contains(t, short, "...")
	assert.Equal(t, "not-an-address", ShortAddress("not-an-address"))
}
