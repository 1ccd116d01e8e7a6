package testutil

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/notifications/internal/domain/errors"
	"github.com/cassiomorais/notifications/internal/domain/notification"
	"github.com/cassiomorais/notifications/internal/domain/payment"
	"github.com/google/uuid"
)

// --- Payment Repository Mock ---

// MockPaymentRepository is an in-memory payment.Repository with optimistic
// concurrency. Updates are applied action by action the way the resource API does.
type MockPaymentRepository struct {
	mu       sync.Mutex
	payments map[string]*payment.Payment
	byKey    map[string]string

	// ConflictsBeforeSuccess makes the next N updates fail with a conflict, each
	// one bumping the stored version as if another writer got there first.
	ConflictsBeforeSuccess int

	GetByKeyFunc func(ctx context.Context, key string) (*payment.Payment, error)
	GetByIDFunc  func(ctx context.Context, id string) (*payment.Payment, error)
	UpdateFunc   func(ctx context.Context, id string, version int64, actions []payment.UpdateAction) (*payment.Payment, error)

	GetByKeyCalls int
	GetByIDCalls  int
	UpdateCalls   int
	Submitted     [][]payment.UpdateAction
}

func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{
		payments: make(map[string]*payment.Payment),
		byKey:    make(map[string]string),
	}
}

// Add stores a payment.
func (m *MockPaymentRepository) Add(p *payment.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.ID] = clonePayment(p)
	m.byKey[p.Key] = p.ID
}

// Stored returns a copy of the stored payment.
func (m *MockPaymentRepository) Stored(id string) *payment.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil
	}
	return clonePayment(p)
}

func (m *MockPaymentRepository) GetByKey(ctx context.Context, key string) (*payment.Payment, error) {
	m.mu.Lock()
	m.GetByKeyCalls++
	m.mu.Unlock()
	if m.GetByKeyFunc != nil {
		return m.GetByKeyFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byKey[key]
	if !ok {
		return nil, domainErrors.ErrPaymentNotFound
	}
	return clonePayment(m.payments[id]), nil
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, id string) (*payment.Payment, error) {
	m.mu.Lock()
	m.GetByIDCalls++
	m.mu.Unlock()
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, domainErrors.ErrPaymentNotFound
	}
	return clonePayment(p), nil
}

func (m *MockPaymentRepository) Update(ctx context.Context, id string, version int64, actions []payment.UpdateAction) (*payment.Payment, error) {
	m.mu.Lock()
	m.UpdateCalls++
	m.Submitted = append(m.Submitted, actions)
	m.mu.Unlock()
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, id, version, actions)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, domainErrors.ErrPaymentNotFound
	}
	if m.ConflictsBeforeSuccess > 0 {
		m.ConflictsBeforeSuccess--
		p.Version++
		return nil, domainErrors.NewConflictError(id, version, p.Version)
	}
	if p.Version != version {
		return nil, domainErrors.NewConflictError(id, version, p.Version)
	}

	updated := clonePayment(p)
	for _, a := range actions {
		if err := ApplyAction(updated, a); err != nil {
			return nil, err
		}
	}
	updated.Version++
	updated.LastModifiedAt = time.Now().UTC()
	m.payments[id] = updated
	return clonePayment(updated), nil
}

// ApplyAction applies a single update action to p in place.
func ApplyAction(p *payment.Payment, action payment.UpdateAction) error {
	switch a := action.(type) {
	case payment.AddInterfaceInteraction:
		p.InterfaceInteractions = append(p.InterfaceInteractions, payment.Interaction{
			ID:     uuid.NewString(),
			Type:   a.Type,
			Fields: a.Fields,
		})
	case payment.AddTransaction:
		p.Transactions = append(p.Transactions, payment.Transaction{
			ID:            uuid.NewString(),
			Type:          a.Transaction.Type,
			State:         a.Transaction.State,
			Amount:        a.Transaction.Amount,
			InteractionID: a.Transaction.InteractionID,
			Timestamp:     a.Transaction.Timestamp,
		})
	case payment.ChangeTransactionState:
		for i := range p.Transactions {
			if p.Transactions[i].ID == a.TransactionID {
				p.Transactions[i].State = a.State
				return nil
			}
		}
		return fmt.Errorf("transaction %s not found: %w", a.TransactionID, domainErrors.ErrInvalidInput)
	case payment.SetMethodInfoMethod:
		p.PaymentMethodInfo.Method = a.Method
	case payment.SetMethodInfoName:
		p.PaymentMethodInfo.Name = maps.Clone(a.Name)
	default:
		return fmt.Errorf("unsupported update action %q: %w", action.Action(), domainErrors.ErrInvalidInput)
	}
	return nil
}

func clonePayment(p *payment.Payment) *payment.Payment {
	c := *p
	c.Transactions = append([]payment.Transaction(nil), p.Transactions...)
	c.InterfaceInteractions = append([]payment.Interaction(nil), p.InterfaceInteractions...)
	return &c
}

// --- HMAC Key Provider Mock ---

// StaticKeys is a fixed merchant account to HMAC key map.
type StaticKeys map[string]string

func (k StaticKeys) HMACKey(merchantAccount string) (string, bool) {
	key, ok := k[merchantAccount]
	return key, ok
}

// --- Notification Publisher Mock ---

// MockPublisher records published notifications.
type MockPublisher struct {
	mu        sync.Mutex
	Published []*notification.Notification

	PublishFunc func(ctx context.Context, n *notification.Notification) (string, error)
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) PublishNotification(ctx context.Context, n *notification.Notification) (string, error) {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, n)
	return fmt.Sprintf("%d-0", len(m.Published)), nil
}

// Count returns the number of published notifications.
func (m *MockPublisher) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Published)
}
