package notification_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/cassiomorais/notifications/internal/domain/errors"
	"github.com/cassiomorais/notifications/internal/domain/notification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHMACKey = "44782DEF547AAA06C910C43932B1EB0C71FC68D9D0C057550C48EC2ACF6BA056"

func sampleNotification() *notification.Notification {
	return &notification.Notification{
		NotificationRequestItem: notification.RequestItem{
			AdditionalData: map[string]string{
				"expiryDate":  "12/2028",
				"cardSummary": "1111",
			},
			Amount:              notification.Amount{Value: 1000, Currency: "EUR"},
			EventCode:           "AUTHORISATION",
			EventDate:           "2026-10-01T10:00:00+02:00",
			MerchantAccountCode: "TestMerchant",
			MerchantReference:   "order-1",
			PaymentMethod:       "visa",
			PSPReference:        "P1",
			Reason:              "042814:1111:12/2028",
			Success:             true,
		},
	}
}

func TestParse_AcceptsStringAndBoolSuccess(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		expected bool
	}{
		{"string true", `{"NotificationRequestItem":{"eventCode":"CAPTURE","success":"true","pspReference":"P1"}}`, true},
		{"string false", `{"NotificationRequestItem":{"eventCode":"CAPTURE","success":"false","pspReference":"P1"}}`, false},
		{"bool true", `{"NotificationRequestItem":{"eventCode":"CAPTURE","success":true,"pspReference":"P1"}}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := notification.Parse([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, bool(n.NotificationRequestItem.Success))
		})
	}
}

func TestParse_InvalidSuccess(t *testing.T) {
	_, err := notification.Parse([]byte(`{"NotificationRequestItem":{"success":"maybe"}}`))
	assert.Error(t, err)
}

func TestSerialize_IsStable(t *testing.T) {
	a, err := sampleNotification().Serialize()
	require.NoError(t, err)
	b, err := sampleNotification().Serialize()
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Contains(t, a, `"success":"true"`)

	reparsed, err := notification.Parse([]byte(a))
	require.NoError(t, err)
	c, err := reparsed.Serialize()
	require.NoError(t, err)
	assert.Equal(t, a, c)
}

func TestForTracking_StripsSensitiveFields(t *testing.T) {
	n := sampleNotification()
	tracked := n.ForTracking()

	assert.Nil(t, tracked.NotificationRequestItem.AdditionalData)
	assert.Empty(t, tracked.NotificationRequestItem.Reason)
	assert.Equal(t, "P1", tracked.NotificationRequestItem.PSPReference)

	// the original is untouched
	assert.Equal(t, "1111", n.NotificationRequestItem.AdditionalData["cardSummary"])
	assert.NotEmpty(t, n.NotificationRequestItem.Reason)

	body, err := json.Marshal(tracked)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "additionalData")
	assert.NotContains(t, string(body), "reason")
}

func TestClone_IsDeep(t *testing.T) {
	n := sampleNotification()
	c := n.Clone()
	c.NotificationRequestItem.AdditionalData["cardSummary"] = "9999"

	assert.Equal(t, "1111", n.NotificationRequestItem.AdditionalData["cardSummary"])
}

// --- Signature ---

func TestSigningString(t *testing.T) {
	n := sampleNotification()
	n.NotificationRequestItem.OriginalReference = "orig:1"

	assert.Equal(t, `P1:orig:1:TestMerchant:order-1:1000:EUR:AUTHORISATION:true`,
		notification.SigningString(&n.NotificationRequestItem))
}

func TestVerifySignature_ReferenceWithSeparators(t *testing.T) {
	n := sampleNotification()
	n.NotificationRequestItem.MerchantReference = `order:1\a`

	key, err := hex.DecodeString(testHMACKey)
	require.NoError(t, err)
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(`P1::TestMerchant:order:1\a:1000:EUR:AUTHORISATION:true`))
	n.NotificationRequestItem.AdditionalData["hmacSignature"] = base64.StdEncoding.EncodeToString(mac.Sum(nil))

	assert.NoError(t, notification.VerifySignature(n, testHMACKey))
}

func TestVerifySignature_Valid(t *testing.T) {
	n := sampleNotification()
	sig, err := notification.CalculateSignature(&n.NotificationRequestItem, testHMACKey)
	require.NoError(t, err)
	n.NotificationRequestItem.AdditionalData["hmacSignature"] = sig

	assert.NoError(t, notification.VerifySignature(n, testHMACKey))
}

func TestVerifySignature_Tampered(t *testing.T) {
	n := sampleNotification()
	sig, err := notification.CalculateSignature(&n.NotificationRequestItem, testHMACKey)
	require.NoError(t, err)
	n.NotificationRequestItem.AdditionalData["hmacSignature"] = sig
	n.NotificationRequestItem.Amount.Value = 1

	assert.ErrorIs(t, notification.VerifySignature(n, testHMACKey), errors.ErrInvalidSignature)
}

func TestVerifySignature_Missing(t *testing.T) {
	n := sampleNotification()

	assert.ErrorIs(t, notification.VerifySignature(n, testHMACKey), errors.ErrMissingSignature)
}

func TestVerifySignature_BadKey(t *testing.T) {
	n := sampleNotification()
	n.NotificationRequestItem.AdditionalData["hmacSignature"] = "abc"

	err := notification.VerifySignature(n, "not-hex")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, errors.ErrInvalidSignature)
}
