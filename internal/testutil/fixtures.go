package testutil

import (
	"time"

	"github.com/cassiomorais/notifications/internal/domain/notification"
	"github.com/cassiomorais/notifications/internal/domain/payment"
	"github.com/google/uuid"
)

// TestHMACKey is a hex encoded HMAC key for signing test notifications.
const TestHMACKey = "44782DEF547AAA06C910C43932B1EB0C71FC68D9D0C057550C48EC2ACF6BA056"

// FixedTime is the clock value used by deterministic tests.
var FixedTime = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func NewTestPayment(key, method string, amountCents int64, currency string) *payment.Payment {
	now := time.Now().UTC()
	return &payment.Payment{
		ID:            uuid.NewString(),
		Version:       1,
		Key:           key,
		AmountPlanned: payment.Money{CentAmount: amountCents, CurrencyCode: currency},
		PaymentMethodInfo: payment.PaymentMethodInfo{
			PaymentInterface: "ctp-adyen-integration",
			Method:           method,
		},
		CreatedAt:      now,
		LastModifiedAt: now,
	}
}

// WithTransaction appends a transaction to p and returns it.
func WithTransaction(p *payment.Payment, txType payment.TransactionType, state payment.TransactionState, interactionID string) *payment.Payment {
	p.Transactions = append(p.Transactions, payment.Transaction{
		ID:            uuid.NewString(),
		Type:          txType,
		State:         state,
		Amount:        p.AmountPlanned,
		InteractionID: interactionID,
	})
	return p
}

// WithInteraction appends a notification interaction storing serialized to p.
func WithInteraction(p *payment.Payment, eventCode, serialized string) *payment.Payment {
	p.InterfaceInteractions = append(p.InterfaceInteractions, payment.Interaction{
		ID:   uuid.NewString(),
		Type: payment.TypeReference{Key: payment.InteractionTypeKey, TypeID: "type"},
		Fields: payment.InteractionFields{
			CreatedAt:    FixedTime,
			Status:       eventCode,
			Type:         payment.InteractionTypeNotification,
			Notification: serialized,
		},
	})
	return p
}

func NewTestNotification(eventCode string, success bool, merchantReference, pspReference, method string, value int64, currency string) *notification.Notification {
	return &notification.Notification{
		NotificationRequestItem: notification.RequestItem{
			AdditionalData: map[string]string{
				"expiryDate":  "03/2030",
				"cardSummary": "0004",
			},
			Amount:              notification.Amount{Value: value, Currency: currency},
			EventCode:           eventCode,
			EventDate:           "2026-10-01T12:00:00+02:00",
			MerchantAccountCode: "TestMerchant",
			MerchantReference:   merchantReference,
			PaymentMethod:       method,
			PSPReference:        pspReference,
			Reason:              "081117:0004:03/2030",
			Success:             notification.Bool(success),
		},
	}
}

// Sign adds a valid HMAC signature for key to n.
func Sign(n *notification.Notification, key string) *notification.Notification {
	sig, err := notification.CalculateSignature(&n.NotificationRequestItem, key)
	if err != nil {
		panic(err)
	}
	if n.NotificationRequestItem.AdditionalData == nil {
		n.NotificationRequestItem.AdditionalData = map[string]string{}
	}
	n.NotificationRequestItem.AdditionalData[notification.AdditionalDataHMACSignature] = sig
	return n
}
