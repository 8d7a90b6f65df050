package ton

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xssnick/tonutils-go/address"
)

var ErrBadAddress = errors.New("invalid TON address")

// NormalizeAddress приводит адрес к raw формату "wc:hex", чтобы один кошелек
// в user-friendly (EQ.../UQ...) и raw виде давал один и тот же идентификатор
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", ErrBadAddress
	}

	var (
		parsed *address.Address
		err    error
	)
	if strings.Contains(addr, ":") {
		parsed, err = parseRawAddress(addr)
	} else {
		parsed, err = address.ParseAddr(addr)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBadAddress, err)
	}
	return fmt.Sprintf("%d:%s", parsed.Workchain(), hex.EncodeToString(parsed.Data())), nil
}

// ValidateAddress - корректен ли адрес в любом из форматов
func ValidateAddress(addr string) bool {
	_, err := NormalizeAddress(addr)
	return err == nil
}

// ShortAddress - user-friendly адрес без bounce для уведомлений.
// Некорректный адрес возвращается как есть.
func ShortAddress(raw string) string {
	parsed, err := parseRawAddress(raw)
	if err != nil {
		return raw
	}
	parsed.SetBounce(false)
	s := parsed.String()
	if len(s) > 12 {
		return s[:6] + "..." + s[len(s)-4:]
	}
	return s
}

// parseRawAddress парсит raw адрес формата "0:hex" или "-1:hex"
func parseRawAddress(raw string) (*address.Address, error) {
	wcPart, hashHex, ok := strings.Cut(raw, ":")
	if !ok {
		return nil, fmt.Errorf("unknown raw address format: %s", raw)
	}
	workchain, err := strconv.ParseInt(wcPart, 10, 32)
	if err != nil || (workchain != 0 && workchain != -1) {
		return nil, fmt.Errorf("invalid workchain: %s", wcPart)
	}

	hashBytes, err := hex.DecodeString(hashHex)
	if err != nil {
		return nil, fmt.Errorf("invalid hex in address: %w", err)
	}
	if len(hashBytes) != 32 {
		return nil, fmt.Errorf("invalid hash length: expected 32 bytes, got %d", len(hashBytes))
	}

	return address.NewAddress(0, byte(workchain), hashBytes), nil
}
