package payment

import (
	"fmt"
	"time"
)

// TransactionType represents the kind of money movement recorded on a payment
type TransactionType string

const (
	TypeAuthorization       TransactionType = "Authorization"
	TypeCancelAuthorization TransactionType = "CancelAuthorization"
	TypeCharge              TransactionType = "Charge"
	TypeRefund              TransactionType = "Refund"
	TypeChargeback          TransactionType = "Chargeback"
)

// TransactionState represents the lifecycle state of a transaction
type TransactionState string

const (
	StateInitial TransactionState = "Initial"
	StatePending TransactionState = "Pending"
	StateSuccess TransactionState = "Success"
	StateFailure TransactionState = "Failure"
)

// InteractionTypeKey identifies the custom type attached to notification interactions.
const InteractionTypeKey = "ctp-adyen-integration-interaction-notification"

// InteractionTypeNotification is the fields.type value of notification interactions.
const InteractionTypeNotification = "notification"

// Payment is a snapshot of the remote, versioned payment resource.
// The snapshot is never mutated by reconciliation; changes are expressed as UpdateActions.
type Payment struct {
	ID                    string            `json:"id"`
	Version               int64             `json:"version"`
	Key                   string            `json:"key"`
	AmountPlanned         Money             `json:"amountPlanned"`
	PaymentMethodInfo     PaymentMethodInfo `json:"paymentMethodInfo"`
	Transactions          []Transaction     `json:"transactions"`
	InterfaceInteractions []Interaction     `json:"interfaceInteractions"`
	CreatedAt             time.Time         `json:"createdAt"`
	LastModifiedAt        time.Time         `json:"lastModifiedAt"`
}

// Money represents a monetary amount in the smallest currency unit (e.g. cents).
type Money struct {
	CentAmount   int64  `json:"centAmount"`
	CurrencyCode string `json:"currencyCode"`
}

// String returns a human-readable representation of the amount.
func (m Money) String() string {
	whole := m.CentAmount / 100
	frac := m.CentAmount % 100
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%02d %s", whole, frac, m.CurrencyCode)
}

// PaymentMethodInfo describes how the customer paid.
type PaymentMethodInfo struct {
	PaymentInterface string          `json:"paymentInterface,omitempty"`
	Method           string          `json:"method,omitempty"`
	Name             LocalizedString `json:"name,omitempty"`
}

// Transaction is a single money movement on the payment.
// InteractionID holds the gateway's pspReference.
type Transaction struct {
	ID            string           `json:"id"`
	Type          TransactionType  `json:"type"`
	State         TransactionState `json:"state"`
	Amount        Money            `json:"amount"`
	InteractionID string           `json:"interactionId,omitempty"`
	Timestamp     *time.Time       `json:"timestamp,omitempty"`
}

// Interaction records a raw exchange with the payment gateway.
type Interaction struct {
	ID     string            `json:"id,omitempty"`
	Type   TypeReference     `json:"type"`
	Fields InteractionFields `json:"fields"`
}

// TypeReference points at the custom type describing interaction fields.
type TypeReference struct {
	Key    string `json:"key"`
	TypeID string `json:"typeId"`
}

// InteractionFields are the custom fields stored with a notification interaction.
type InteractionFields struct {
	CreatedAt    time.Time `json:"createdAt"`
	Status       string    `json:"status"`
	Type         string    `json:"type"`
	Notification string    `json:"notification"`
}

// FindTransactionByInteractionID returns the transaction created for the given gateway reference.
func (p *Payment) FindTransactionByInteractionID(interactionID string) (Transaction, bool) {
	for _, tx := range p.Transactions {
		if tx.InteractionID == interactionID {
			return tx, true
		}
	}
	return Transaction{}, false
}

// HasNotificationInteraction reports whether an interaction already stores one of the
// given serialized notifications.
func (p *Payment) HasNotificationInteraction(serialized ...string) bool {
	for _, interaction := range p.InterfaceInteractions {
		for _, s := range serialized {
			if interaction.Fields.Notification == s {
				return true
			}
		}
	}
	return false
}
