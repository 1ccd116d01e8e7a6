package notification

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/cassiomorais/notifications/internal/domain/errors"
)

// SigningString builds the colon separated payload the gateway signs. Values are
// joined as received; notification signatures do not escape separators.
func SigningString(item *RequestItem) string {
	return strings.Join([]string{
		item.PSPReference,
		item.OriginalReference,
		item.MerchantAccountCode,
		item.MerchantReference,
		strconv.FormatInt(item.Amount.Value, 10),
		item.Amount.Currency,
		item.EventCode,
		item.Success.String(),
	}, ":")
}

// CalculateSignature returns the base64 HMAC-SHA256 of the signing string using
// the hex encoded key.
func CalculateSignature(item *RequestItem, hexKey string) (string, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return "", fmt.Errorf("decode hmac key: %w", err)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(SigningString(item)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// VerifySignature checks the hmacSignature carried in the additional data.
func VerifySignature(n *Notification, hexKey string) error {
	item := &n.NotificationRequestItem
	provided, ok := item.AdditionalValue(AdditionalDataHMACSignature)
	if !ok || provided == "" {
		return errors.ErrMissingSignature
	}
	expected, err := CalculateSignature(item, hexKey)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(expected), []byte(provided)) {
		return errors.ErrInvalidSignature
	}
	return nil
}
