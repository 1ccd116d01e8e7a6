package payment

import (
	"encoding/json"
	"time"
)

// Update action names as understood by the resource API.
const (
	ActionAddInterfaceInteraction = "addInterfaceInteraction"
	ActionAddTransaction          = "addTransaction"
	ActionChangeTransactionState  = "changeTransactionState"
	ActionSetMethodInfoMethod     = "setMethodInfoMethod"
	ActionSetMethodInfoName       = "setMethodInfoName"
)

// UpdateAction is a single mutation intent submitted with a versioned update.
type UpdateAction interface {
	Action() string
}

// AddInterfaceInteraction stores a gateway notification on the payment.
type AddInterfaceInteraction struct {
	Type   TypeReference     `json:"type"`
	Fields InteractionFields `json:"fields"`
}

func (AddInterfaceInteraction) Action() string { return ActionAddInterfaceInteraction }

func (a AddInterfaceInteraction) MarshalJSON() ([]byte, error) {
	type alias AddInterfaceInteraction
	return marshalAction(a.Action(), alias(a))
}

// AddTransaction creates a new transaction on the payment.
type AddTransaction struct {
	Transaction TransactionDraft `json:"transaction"`
}

// TransactionDraft is the payload of an AddTransaction action.
type TransactionDraft struct {
	Type          TransactionType  `json:"type"`
	Amount        Money            `json:"amount"`
	State         TransactionState `json:"state"`
	InteractionID string           `json:"interactionId"`
	Timestamp     *time.Time       `json:"timestamp,omitempty"`
}

func (AddTransaction) Action() string { return ActionAddTransaction }

func (a AddTransaction) MarshalJSON() ([]byte, error) {
	type alias AddTransaction
	return marshalAction(a.Action(), alias(a))
}

// ChangeTransactionState moves an existing transaction to a new state.
type ChangeTransactionState struct {
	TransactionID string           `json:"transactionId"`
	State         TransactionState `json:"state"`
}

func (ChangeTransactionState) Action() string { return ActionChangeTransactionState }

func (a ChangeTransactionState) MarshalJSON() ([]byte, error) {
	type alias ChangeTransactionState
	return marshalAction(a.Action(), alias(a))
}

// SetMethodInfoMethod sets the payment method identifier.
type SetMethodInfoMethod struct {
	Method string `json:"method"`
}

func (SetMethodInfoMethod) Action() string { return ActionSetMethodInfoMethod }

func (a SetMethodInfoMethod) MarshalJSON() ([]byte, error) {
	type alias SetMethodInfoMethod
	return marshalAction(a.Action(), alias(a))
}

// SetMethodInfoName sets the localized, human readable payment method name.
type SetMethodInfoName struct {
	Name LocalizedString `json:"name"`
}

// LocalizedString maps a locale to a display text.
type LocalizedString map[string]string

func (SetMethodInfoName) Action() string { return ActionSetMethodInfoName }

func (a SetMethodInfoName) MarshalJSON() ([]byte, error) {
	type alias SetMethodInfoName
	return marshalAction(a.Action(), alias(a))
}

func marshalAction(name string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	actionName, err := json.Marshal(name)
	if err != nil {
		return nil, err
	}
	fields["action"] = actionName
	return json.Marshal(fields)
}

// ActionNames lists the action names in order, for logs and metrics.
func ActionNames(actions []UpdateAction) []string {
	names := make([]string, 0, len(actions))
	for _, a := range actions {
		names = append(names, a.Action())
	}
	return names
}
