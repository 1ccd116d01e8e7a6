// Package eventmap maps gateway event codes to payment transaction types and states.
package eventmap

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/cassiomorais/notifications/internal/domain/notification"
	"github.com/cassiomorais/notifications/internal/domain/payment"
)

//go:embed events.json
var defaultEvents []byte

// Mapping is one row of the event table. Every row needs a valid TransactionState.
// An empty TransactionType means the type is decided from the notification itself.
type Mapping struct {
	EventCode        string                   `json:"eventCode"`
	Success          bool                     `json:"success"`
	TransactionType  payment.TransactionType  `json:"transactionType"`
	TransactionState payment.TransactionState `json:"transactionState"`
}

type key struct {
	eventCode string
	success   bool
}

// Table is an immutable lookup table built once at startup.
type Table struct {
	entries map[key]Mapping
}

// New builds a table from the given rows.
func New(rows []Mapping) (*Table, error) {
	t := &Table{entries: make(map[key]Mapping, len(rows))}
	for _, row := range rows {
		if row.EventCode == "" {
			return nil, fmt.Errorf("event mapping without event code")
		}
		// A row without a type is still a state change; CANCEL_OR_REFUND picks its type later.
		if !row.TransactionState.IsValid() {
			return nil, fmt.Errorf("event %s/%t: invalid transaction state %q", row.EventCode, row.Success, row.TransactionState)
		}
		k := key{eventCode: row.EventCode, success: row.Success}
		if _, dup := t.entries[k]; dup {
			return nil, fmt.Errorf("duplicate event mapping %s/%t", row.EventCode, row.Success)
		}
		t.entries[k] = row
	}
	return t, nil
}

// Load reads a JSON array of mappings.
func Load(r io.Reader) (*Table, error) {
	var rows []Mapping
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode event mappings: %w", err)
	}
	return New(rows)
}

// LoadFile reads the mappings from path, or the built-in table when path is empty.
func LoadFile(path string) (*Table, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open event mappings: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Default returns the built-in table.
func Default() (*Table, error) {
	var rows []Mapping
	if err := json.Unmarshal(defaultEvents, &rows); err != nil {
		return nil, fmt.Errorf("decode built-in event mappings: %w", err)
	}
	return New(rows)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.entries)
}

// Lookup returns the row for an event code and success flag.
func (t *Table) Lookup(eventCode string, success bool) (Mapping, bool) {
	m, ok := t.entries[key{eventCode: eventCode, success: success}]
	return m, ok
}

// Resolve returns the transaction type and state a notification translates into.
// CANCEL_OR_REFUND is narrowed to Refund or CancelAuthorization using the
// modification.action additional data; otherwise the table row is used as is.
// ok is false when the notification does not translate into a transaction.
func (t *Table) Resolve(item *notification.RequestItem) (txType payment.TransactionType, txState payment.TransactionState, ok bool) {
	m, found := t.Lookup(item.EventCode, bool(item.Success))
	if !found {
		return "", "", false
	}
	if item.EventCode == notification.EventCancelOrRefund {
		action, _ := item.AdditionalValue(notification.AdditionalDataModificationAction)
		switch action {
		case "refund":
			m.TransactionType = payment.TypeRefund
		case "cancel":
			m.TransactionType = payment.TypeCancelAuthorization
		}
	}
	if m.TransactionType == "" {
		return "", "", false
	}
	return m.TransactionType, m.TransactionState, true
}
