package reconcile

import (
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/cassiomorais/notifications/internal/domain/eventmap"
	"github.com/cassiomorais/notifications/internal/domain/notification"
	"github.com/cassiomorais/notifications/internal/domain/payment"
)

// CompilerOptions configures an ActionCompiler.
type CompilerOptions struct {
	// RemoveSensitiveData stores notifications without additional data and reason.
	RemoveSensitiveData bool
	// PaymentMethodNames maps a gateway payment method to its localized display name.
	PaymentMethodNames map[string]payment.LocalizedString
	// Now is the clock used for interaction timestamps. Defaults to time.Now.
	Now func() time.Time
}

// ActionCompiler turns a notification and the current payment snapshot into the
// list of update actions needed to bring the payment in line with the notification.
// It never mutates its inputs and holds only immutable configuration.
type ActionCompiler struct {
	events              *eventmap.Table
	removeSensitiveData bool
	methodNames         map[string]payment.LocalizedString
	now                 func() time.Time
}

// NewActionCompiler creates a new ActionCompiler.
func NewActionCompiler(events *eventmap.Table, opts CompilerOptions) *ActionCompiler {
	names := make(map[string]payment.LocalizedString, len(opts.PaymentMethodNames))
	for method, name := range opts.PaymentMethodNames {
		names[method] = maps.Clone(name)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &ActionCompiler{
		events:              events,
		removeSensitiveData: opts.RemoveSensitiveData,
		methodNames:         names,
		now:                 now,
	}
}

// Compile returns the update actions for p. An empty list means the payment already
// reflects the notification.
func (c *ActionCompiler) Compile(p *payment.Payment, n *notification.Notification) ([]payment.UpdateAction, error) {
	var actions []payment.UpdateAction
	item := n.NotificationRequestItem

	interaction, err := c.interactionAction(p, n)
	if err != nil {
		return nil, err
	}
	if interaction != nil {
		actions = append(actions, interaction)
	}

	txAction, err := c.transactionAction(p, &item)
	if err != nil {
		return nil, err
	}
	if txAction != nil {
		actions = append(actions, txAction)
	}

	return append(actions, c.methodActions(p, &item)...), nil
}

func (c *ActionCompiler) interactionAction(p *payment.Payment, n *notification.Notification) (payment.UpdateAction, error) {
	full, err := n.Serialize()
	if err != nil {
		return nil, err
	}
	stored := full
	if c.removeSensitiveData {
		if stored, err = n.ForTracking().Serialize(); err != nil {
			return nil, err
		}
	}
	// Payments may hold either form depending on the setting at the time they were written.
	if p.HasNotificationInteraction(stored, full) {
		return nil, nil
	}

	return payment.AddInterfaceInteraction{
		Type: payment.TypeReference{Key: payment.InteractionTypeKey, TypeID: "type"},
		Fields: payment.InteractionFields{
			CreatedAt:    c.now().UTC(),
			Status:       strings.ToLower(n.NotificationRequestItem.EventCode),
			Type:         payment.InteractionTypeNotification,
			Notification: stored,
		},
	}, nil
}

func (c *ActionCompiler) transactionAction(p *payment.Payment, item *notification.RequestItem) (payment.UpdateAction, error) {
	txType, txState, ok := c.events.Resolve(item)
	if !ok {
		return nil, nil
	}

	existing, found := p.FindTransactionByInteractionID(item.PSPReference)
	if !found {
		return payment.AddTransaction{
			Transaction: payment.TransactionDraft{
				Type: txType,
				Amount: payment.Money{
					CentAmount:   item.Amount.Value,
					CurrencyCode: item.Amount.Currency,
				},
				State:         txState,
				InteractionID: item.PSPReference,
			},
		}, nil
	}

	order, err := payment.CompareStates(existing.State, txState)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", existing.ID, err)
	}
	if order != payment.Advance {
		return nil, nil
	}
	return payment.ChangeTransactionState{
		TransactionID: existing.ID,
		State:         txState,
	}, nil
}

func (c *ActionCompiler) methodActions(p *payment.Payment, item *notification.RequestItem) []payment.UpdateAction {
	method := item.PaymentMethod
	if method == "" || method == p.PaymentMethodInfo.Method {
		return nil
	}

	actions := []payment.UpdateAction{payment.SetMethodInfoMethod{Method: method}}
	if name, ok := c.methodNames[method]; ok {
		actions = append(actions, payment.SetMethodInfoName{Name: maps.Clone(name)})
	}
	return actions
}
