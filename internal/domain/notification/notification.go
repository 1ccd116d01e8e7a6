package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"
)

// Event codes with special handling.
const (
	EventAuthorisation  = "AUTHORISATION"
	EventCancelOrRefund = "CANCEL_OR_REFUND"
)

// Additional data keys read by the reconciliation engine.
const (
	AdditionalDataHMACSignature      = "hmacSignature"
	AdditionalDataModificationAction = "modification.action"
)

// Notification is a single gateway notification as delivered inside a batch.
type Notification struct {
	NotificationRequestItem RequestItem `json:"NotificationRequestItem"`
}

// RequestItem carries the payload of a notification.
type RequestItem struct {
	AdditionalData      map[string]string `json:"additionalData,omitempty"`
	Amount              Amount            `json:"amount"`
	EventCode           string            `json:"eventCode" validate:"required"`
	EventDate           string            `json:"eventDate,omitempty"`
	MerchantAccountCode string            `json:"merchantAccountCode,omitempty"`
	MerchantReference   string            `json:"merchantReference,omitempty"`
	OriginalReference   string            `json:"originalReference,omitempty"`
	PaymentMethod       string            `json:"paymentMethod,omitempty"`
	PSPReference        string            `json:"pspReference" validate:"required"`
	Reason              string            `json:"reason,omitempty"`
	Success             Bool              `json:"success"`
	Operations          []string          `json:"operations,omitempty"`
}

// Amount is the notified amount in minor units.
type Amount struct {
	Value    int64  `json:"value"`
	Currency string `json:"currency" validate:"omitempty,len=3"`
}

// Bool accepts both JSON booleans and the "true"/"false" strings the gateway sends.
// It is always written back as a string so stored notifications keep the wire form.
type Bool bool

func (b Bool) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatBool(bool(b)))
}

func (b *Bool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*b = false
		return nil
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case bool:
		*b = Bool(v)
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid success flag %q: %w", v, err)
		}
		*b = Bool(parsed)
	default:
		return fmt.Errorf("invalid success flag %s", string(data))
	}
	return nil
}

// String returns "true" or "false".
func (b Bool) String() string {
	return strconv.FormatBool(bool(b))
}

// Parse decodes a single notification.
func Parse(data []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	return &n, nil
}

// Serialize returns the canonical JSON form of the notification. Two notifications
// with equal content always serialize to the same string; this is the identity
// used to detect redelivered notifications.
func (n *Notification) Serialize() (string, error) {
	body, err := json.Marshal(n)
	if err != nil {
		return "", fmt.Errorf("serialize notification: %w", err)
	}
	return string(body), nil
}

// Clone returns a deep copy of the notification.
func (n *Notification) Clone() *Notification {
	c := *n
	c.NotificationRequestItem.AdditionalData = maps.Clone(n.NotificationRequestItem.AdditionalData)
	if n.NotificationRequestItem.Operations != nil {
		c.NotificationRequestItem.Operations = append([]string(nil), n.NotificationRequestItem.Operations...)
	}
	return &c
}

// ForTracking returns a copy without the fields that may carry sensitive payment
// data (additional data and the free text reason).
func (n *Notification) ForTracking() *Notification {
	c := n.Clone()
	c.NotificationRequestItem.AdditionalData = nil
	c.NotificationRequestItem.Reason = ""
	return c
}

// AdditionalValue returns a value from the additional data, if present.
func (item *RequestItem) AdditionalValue(key string) (string, bool) {
	if item.AdditionalData == nil {
		return "", false
	}
	v, ok := item.AdditionalData[key]
	return v, ok
}

// Batch is the envelope the gateway posts to the webhook endpoint. Items are
// validated one by one so a bad item does not hold back the rest of the batch.
type Batch struct {
	Live              string         `json:"live"`
	NotificationItems []Notification `json:"notificationItems" validate:"required,min=1"`
}
