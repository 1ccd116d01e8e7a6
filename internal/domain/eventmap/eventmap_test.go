package eventmap_test

import (
	"strings"
	"testing"

	"github.com/cassiomorais/notifications/internal/domain/eventmap"
	"github.com/cassiomorais/notifications/internal/domain/notification"
	"github.com/cassiomorais/notifications/internal/domain/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(eventCode string, success bool, additional map[string]string) *notification.RequestItem {
	return &notification.RequestItem{
		EventCode:      eventCode,
		Success:        notification.Bool(success),
		AdditionalData: additional,
	}
}

func TestDefault_Loads(t *testing.T) {
	table, err := eventmap.Default()
	require.NoError(t, err)
	assert.Greater(t, table.Len(), 0)

	m, ok := table.Lookup("AUTHORISATION", true)
	require.True(t, ok)
	assert.Equal(t, payment.TypeAuthorization, m.TransactionType)
	assert.Equal(t, payment.StateSuccess, m.TransactionState)
}

func TestResolve(t *testing.T) {
	table, err := eventmap.Default()
	require.NoError(t, err)

	tests := []struct {
		name      string
		item      *notification.RequestItem
		wantOK    bool
		wantType  payment.TransactionType
		wantState payment.TransactionState
	}{
		{"authorisation success", item("AUTHORISATION", true, nil), true, payment.TypeAuthorization, payment.StateSuccess},
		{"authorisation failure", item("AUTHORISATION", false, nil), true, payment.TypeAuthorization, payment.StateFailure},
		{"capture", item("CAPTURE", true, nil), true, payment.TypeCharge, payment.StateSuccess},
		{"cancel or refund as refund", item("CANCEL_OR_REFUND", true, map[string]string{"modification.action": "refund"}), true, payment.TypeRefund, payment.StateSuccess},
		{"cancel or refund as cancel", item("CANCEL_OR_REFUND", true, map[string]string{"modification.action": "cancel"}), true, payment.TypeCancelAuthorization, payment.StateSuccess},
		{"cancel or refund failed as refund", item("CANCEL_OR_REFUND", false, map[string]string{"modification.action": "refund"}), true, payment.TypeRefund, payment.StateFailure},
		{"cancel or refund without action", item("CANCEL_OR_REFUND", true, nil), false, "", ""},
		{"cancel or refund with unknown action", item("CANCEL_OR_REFUND", true, map[string]string{"modification.action": "capture"}), false, "", ""},
		{"unknown event", item("REPORT_AVAILABLE", true, nil), false, "", ""},
		{"known event unknown success flag", item("REFUND_FAILED", false, nil), false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txType, txState, ok := table.Resolve(tt.item)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantType, txType)
			assert.Equal(t, tt.wantState, txState)
		})
	}
}

func TestResolve_DoesNotMutateTable(t *testing.T) {
	table, err := eventmap.Default()
	require.NoError(t, err)

	_, _, ok := table.Resolve(item("CANCEL_OR_REFUND", true, map[string]string{"modification.action": "refund"}))
	require.True(t, ok)

	m, found := table.Lookup("CANCEL_OR_REFUND", true)
	require.True(t, found)
	assert.Empty(t, m.TransactionType)
}

func TestResolve_CancelOrRefundKeepsMappedType(t *testing.T) {
	table, err := eventmap.New([]eventmap.Mapping{
		{EventCode: "CANCEL_OR_REFUND", Success: true, TransactionType: payment.TypeRefund, TransactionState: payment.StateSuccess},
	})
	require.NoError(t, err)

	txType, _, ok := table.Resolve(item("CANCEL_OR_REFUND", true, map[string]string{"other": "x"}))
	require.True(t, ok)
	assert.Equal(t, payment.TypeRefund, txType)
}

func TestLoad(t *testing.T) {
	table, err := eventmap.Load(strings.NewReader(
		`[{"eventCode":"OFFER_CLOSED","success":true,"transactionType":"Authorization","transactionState":"Failure"}]`))
	require.NoError(t, err)

	txType, txState, ok := table.Resolve(item("OFFER_CLOSED", true, nil))
	require.True(t, ok)
	assert.Equal(t, payment.TypeAuthorization, txType)
	assert.Equal(t, payment.StateFailure, txState)

	_, _, ok = table.Resolve(item("AUTHORISATION", true, nil))
	assert.False(t, ok)
}

func TestNew_RejectsInvalidRows(t *testing.T) {
	_, err := eventmap.New([]eventmap.Mapping{{EventCode: "X", Success: true, TransactionState: "Paid"}})
	assert.Error(t, err)

	_, err = eventmap.New([]eventmap.Mapping{
		{EventCode: "X", Success: true, TransactionState: payment.StateSuccess},
		{EventCode: "X", Success: true, TransactionState: payment.StateFailure},
	})
	assert.Error(t, err)

	_, err = eventmap.New([]eventmap.Mapping{{Success: true}})
	assert.Error(t, err)
}

func TestNew_RequiresTransactionState(t *testing.T) {
	_, err := eventmap.New([]eventmap.Mapping{{EventCode: "X", Success: true, TransactionType: payment.TypeCharge}})
	assert.Error(t, err)

	_, err = eventmap.New([]eventmap.Mapping{{EventCode: "X", Success: true}})
	assert.Error(t, err)

	_, err = eventmap.New([]eventmap.Mapping{{EventCode: "X", Success: true, TransactionState: payment.StatePending}})
	assert.NoError(t, err)
}

func TestLoadFile_EmptyPathUsesDefault(t *testing.T) {
	table, err := eventmap.LoadFile("")
	require.NoError(t, err)

	_, ok := table.Lookup("CAPTURE", true)
	assert.True(t, ok)
}
