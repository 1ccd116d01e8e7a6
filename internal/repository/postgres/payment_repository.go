package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/notifications/internal/domain/errors"
	"github.com/cassiomorais/notifications/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const selectPayment = `SELECT id, key, version, amount_planned, currency, payment_interface, method, method_name, created_at, last_modified_at
	FROM payments`

// PaymentRepository implements payment.Repository using PostgreSQL. Every update
// runs in one transaction guarded by the payment version.
type PaymentRepository struct {
	pool      *pgxpool.Pool
	txManager *TxManager
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool, txManager: NewTxManager(pool)}
}

func (r *PaymentRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// GetByKey retrieves a payment by its key (the merchant reference).
func (r *PaymentRepository) GetByKey(ctx context.Context, key string) (*payment.Payment, error) {
	p, err := scanPayment(r.db(ctx).QueryRow(ctx, selectPayment+` WHERE key = $1`, key))
	if err != nil {
		return nil, err
	}
	return p, r.loadChildren(ctx, p)
}

// GetByID retrieves a payment by its ID.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*payment.Payment, error) {
	pid, err := uuid.Parse(id)
	if err != nil {
		return nil, domainErrors.ErrPaymentNotFound
	}
	p, err := scanPayment(r.db(ctx).QueryRow(ctx, selectPayment+` WHERE id = $1`, pid))
	if err != nil {
		return nil, err
	}
	return p, r.loadChildren(ctx, p)
}

// Update applies actions to the payment if it is still at version. A stale version
// yields *errors.ConflictError carrying the stored version.
func (r *PaymentRepository) Update(ctx context.Context, id string, version int64, actions []payment.UpdateAction) (*payment.Payment, error) {
	pid, err := uuid.Parse(id)
	if err != nil {
		return nil, domainErrors.ErrPaymentNotFound
	}

	err = r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		db := r.db(txCtx)
		tag, err := db.Exec(txCtx,
			`UPDATE payments SET version = version + 1, last_modified_at = NOW()
			 WHERE id = $1 AND version = $2`, pid, version)
		if err != nil {
			return fmt.Errorf("bump payment version: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var current int64
			err := db.QueryRow(txCtx, `SELECT version FROM payments WHERE id = $1`, pid).Scan(&current)
			if errors.Is(err, pgx.ErrNoRows) {
				return domainErrors.ErrPaymentNotFound
			}
			if err != nil {
				return fmt.Errorf("read payment version: %w", err)
			}
			return domainErrors.NewConflictError(id, version, current)
		}

		for _, action := range actions {
			if err := applyAction(txCtx, db, pid, action); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return r.GetByID(ctx, id)
}

func applyAction(ctx context.Context, db DBTX, paymentID uuid.UUID, action payment.UpdateAction) error {
	switch a := action.(type) {
	case payment.AddInterfaceInteraction:
		_, err := db.Exec(ctx,
			`INSERT INTO payment_interactions (id, payment_id, type_key, type_id, status, interaction_type, notification, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			uuid.New(), paymentID, a.Type.Key, a.Type.TypeID, a.Fields.Status, a.Fields.Type, a.Fields.Notification, a.Fields.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert interaction: %w", err)
		}
	case payment.AddTransaction:
		tx := a.Transaction
		_, err := db.Exec(ctx,
			`INSERT INTO payment_transactions (id, payment_id, type, state, amount, currency, interaction_id, timestamp)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			uuid.New(), paymentID, string(tx.Type), string(tx.State), tx.Amount.CentAmount, tx.Amount.CurrencyCode, tx.InteractionID, tx.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
	case payment.ChangeTransactionState:
		txID, err := uuid.Parse(a.TransactionID)
		if err != nil {
			return fmt.Errorf("transaction id %q: %w", a.TransactionID, domainErrors.ErrInvalidInput)
		}
		tag, err := db.Exec(ctx,
			`UPDATE payment_transactions SET state = $1 WHERE id = $2 AND payment_id = $3`,
			string(a.State), txID, paymentID,
		)
		if err != nil {
			return fmt.Errorf("change transaction state: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("transaction %s not found: %w", a.TransactionID, domainErrors.ErrInvalidInput)
		}
	case payment.SetMethodInfoMethod:
		if _, err := db.Exec(ctx, `UPDATE payments SET method = $1 WHERE id = $2`, a.Method, paymentID); err != nil {
			return fmt.Errorf("set method: %w", err)
		}
	case payment.SetMethodInfoName:
		name, err := encodeLocalized(a.Name)
		if err != nil {
			return err
		}
		if _, err := db.Exec(ctx, `UPDATE payments SET method_name = $1 WHERE id = $2`, name, paymentID); err != nil {
			return fmt.Errorf("set method name: %w", err)
		}
	default:
		return fmt.Errorf("unsupported update action %q: %w", action.Action(), domainErrors.ErrInvalidInput)
	}
	return nil
}

func (r *PaymentRepository) loadChildren(ctx context.Context, p *payment.Payment) error {
	txRows, err := r.db(ctx).Query(ctx,
		`SELECT id, type, state, amount, currency, interaction_id, timestamp
		 FROM payment_transactions WHERE payment_id = $1 ORDER BY seq`, p.ID)
	if err != nil {
		return fmt.Errorf("list transactions: %w", err)
	}
	defer txRows.Close()

	for txRows.Next() {
		var (
			tx      payment.Transaction
			id      uuid.UUID
			txType  string
			txState string
		)
		if err := txRows.Scan(&id, &txType, &txState, &tx.Amount.CentAmount, &tx.Amount.CurrencyCode, &tx.InteractionID, &tx.Timestamp); err != nil {
			return fmt.Errorf("scan transaction: %w", err)
		}
		tx.ID = id.String()
		tx.Type = payment.TransactionType(txType)
		tx.State = payment.TransactionState(txState)
		p.Transactions = append(p.Transactions, tx)
	}
	if err := txRows.Err(); err != nil {
		return fmt.Errorf("iterate transactions: %w", err)
	}
	txRows.Close()

	intRows, err := r.db(ctx).Query(ctx,
		`SELECT id, type_key, type_id, status, interaction_type, notification, created_at
		 FROM payment_interactions WHERE payment_id = $1 ORDER BY seq`, p.ID)
	if err != nil {
		return fmt.Errorf("list interactions: %w", err)
	}
	defer intRows.Close()

	for intRows.Next() {
		var (
			in payment.Interaction
			id uuid.UUID
		)
		if err := intRows.Scan(&id, &in.Type.Key, &in.Type.TypeID, &in.Fields.Status, &in.Fields.Type, &in.Fields.Notification, &in.Fields.CreatedAt); err != nil {
			return fmt.Errorf("scan interaction: %w", err)
		}
		in.ID = id.String()
		p.InterfaceInteractions = append(p.InterfaceInteractions, in)
	}
	return intRows.Err()
}

// scanPayment scans a payment row without its transactions and interactions.
func scanPayment(s scanner) (*payment.Payment, error) {
	p := &payment.Payment{}
	var (
		id         uuid.UUID
		methodName []byte
	)
	err := s.Scan(&id, &p.Key, &p.Version, &p.AmountPlanned.CentAmount, &p.AmountPlanned.CurrencyCode,
		&p.PaymentMethodInfo.PaymentInterface, &p.PaymentMethodInfo.Method, &methodName,
		&p.CreatedAt, &p.LastModifiedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	p.ID = id.String()

	name, err := decodeLocalized(methodName)
	if err != nil {
		return nil, err
	}
	p.PaymentMethodInfo.Name = name
	return p, nil
}

func encodeLocalized(name payment.LocalizedString) ([]byte, error) {
	if name == nil {
		name = payment.LocalizedString{}
	}
	b, err := json.Marshal(name)
	if err != nil {
		return nil, fmt.Errorf("marshal localized string: %w", err)
	}
	return b, nil
}

func decodeLocalized(raw []byte) (payment.LocalizedString, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var name payment.LocalizedString
	if err := json.Unmarshal(raw, &name); err != nil {
		return nil, fmt.Errorf("unmarshal localized string: %w", err)
	}
	if len(name) == 0 {
		return nil, nil
	}
	return name, nil
}
