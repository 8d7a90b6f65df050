package service

import (
	"errors"
	"fmt"
	"time"

	"impostor_relay/internal/ton"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidSigningAlg = errors.New("invalid signing algorithm")
	ErrExpiredToken      = errors.New("token expired")
	ErrInvalidToken      = errors.New("invalid token")
	ErrAddressMismatch   = errors.New("token was issued for another address")
)

type addressClaims struct {
	Address string `json:"address"`
	jwt.RegisteredClaims
}

// TokenManager выдает и проверяет токены, привязанные к адресу кошелька
type TokenManager struct {
	secretKey []byte
	maxAge    time.Duration
}

func NewTokenManager(secretKey string, maxAge time.Duration) *TokenManager {
	return &TokenManager{secretKey: []byte(secretKey), maxAge: maxAge}
}

// Issue выдает токен для нормализованного адреса
func (m *TokenManager) Issue(address string, now time.Time) (string, error) {
	addr, err := ton.NormalizeAddress(address)
	if err != nil {
		return "", err
	}
	claims := addressClaims{
		Address: addr,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.maxAge)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify возвращает адрес из токена
func (m *TokenManager) Verify(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &addressClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSigningAlg
		}
		return m.secretKey, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidSigningAlg):
			return "", err
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", ErrExpiredToken
		default:
			return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
		}
	}

	claims, ok := parsed.Claims.(*addressClaims)
	if !ok || !parsed.Valid || claims.Address == "" {
		return "", ErrInvalidToken
	}
	return claims.Address, nil
}

// Authenticate проверяет, что токен выдан именно этому адресу.
// Возвращает адрес в raw формате.
func (m *TokenManager) Authenticate(address, token string) (string, error) {
	addr, err := ton.NormalizeAddress(address)
	if err != nil {
		return "", err
	}
	subject, err := m.Verify(token)
	if err != nil {
		return "", err
	}
	if subject != addr {
		return "", ErrAddressMismatch
	}
	return addr, nil
}
