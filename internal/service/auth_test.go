package service

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"impostor_relay/internal/ton"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-do-not-use-in-prod"

func rawAddr(b byte) string {
	return "0:" + hex.EncodeToString(bytes.Repeat([]byte{b}, 32))
}

func TestTokenManager_IssueAndAuthenticate(t *testing.T) {
	m := NewTokenManager(testSecret, time.Hour)
	addr := rawAddr(1)

	token, err := m.Issue(addr, time.Now())
	require.NoError(t, err)

	got, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, addr, got)

	got, err = m.Authenticate(addr, token)
	require.NoError(t, err)
	assert.Equal(t, addr, got)

	_, err = m.Authenticate(rawAddr(2), token)
	assert.ErrorIs(t, err, ErrAddressMismatch)

	_, err = m.Authenticate("alice", token)
	assert.ErrorIs(t, err, ton.ErrBadAddress)
}

func TestTokenManager_Rejects(t *testing.T) {
	m := NewTokenManager(testSecret, time.Hour)
	addr := rawAddr(3)

	expired, err := m.Issue(addr, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = m.Verify(expired)
	assert.ErrorIs(t, err, ErrExpiredToken)

	valid, err := m.Issue(addr, time.Now())
	require.NoError(t, err)

	other := NewTokenManager("another-secret", time.Hour)
	_, err = other.Verify(valid)
	assert.ErrorIs(t, err, ErrInvalidToken)

	parts := strings.Split(valid, ".")
	noneAlg := "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0." + parts[1] + "."
	_, err = m.Verify(noneAlg)
	assert.Error(t, err)

	_, err = m.Verify("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
