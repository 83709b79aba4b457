package sales

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mycelium-customer-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_Decode(t *testing.T) {
	raw := `{"event_type":"sale.recorded","sale_id":"S1","customer_id":"C-1","order_date":"2024-01-10",
		"total_amount":"30000","payment_status":"PENDING","product_name":"표고버섯 1kg"}`

	var event Event
	require.NoError(t, json.Unmarshal([]byte(raw), &event))
	require.NoError(t, event.Validate())

	amount, err := event.LedgerAmount()
	require.NoError(t, err)
	assert.Equal(t, int64(30000), amount)
	assert.True(t, event.PaymentPending())

	d, err := event.SaleDate()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), d)
	assert.Equal(t, "매출: 표고버섯 1kg (S1)", event.Description())
}

func TestEvent_LedgerAmount(t *testing.T) {
	partial := decimal.NewFromInt(12000)

	testCases := []struct {
		name    string
		event   Event
		want    int64
		wantErr bool
	}{
		{"Total", Event{Type: EventSaleCancelled, TotalAmount: decimal.NewFromInt(30000)}, 30000, false},
		{"PartialReturn", Event{Type: EventSaleReturned, TotalAmount: decimal.NewFromInt(30000), ReturnAmount: &partial}, 12000, false},
		{"ReturnAmountIgnoredForCancel", Event{Type: EventSaleCancelled, TotalAmount: decimal.NewFromInt(30000), ReturnAmount: &partial}, 30000, false},
		{"Fractional", Event{Type: EventSaleRecorded, TotalAmount: decimal.RequireFromString("100.5")}, 0, true},
		{"Zero", Event{Type: EventSaleRecorded, TotalAmount: decimal.Zero}, 0, true},
		{"Negative", Event{Type: EventSaleRecorded, TotalAmount: decimal.NewFromInt(-5)}, 0, true},
		{"WholeWithTrailingZeros", Event{Type: EventSaleRecorded, TotalAmount: decimal.RequireFromString("500.00")}, 500, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.event.LedgerAmount()
			if tc.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidSale))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvent_Validate(t *testing.T) {
	valid := Event{
		Type:          EventSaleRecorded,
		SaleID:        "S1",
		CustomerID:    "C-1",
		OrderDate:     "2024-01-10",
		TotalAmount:   decimal.NewFromInt(1000),
		PaymentStatus: shared.SalePaymentPending,
	}
	assert.NoError(t, valid.Validate())

	unknown := valid
	unknown.Type = "sale.refunded"
	assert.True(t, errors.Is(unknown.Validate(), ErrUnknownEventType))

	noSale := valid
	noSale.SaleID = " "
	assert.True(t, errors.Is(noSale.Validate(), ErrInvalidSale))

	badDate := valid
	badDate.OrderDate = "10/01/2024"
	assert.True(t, errors.Is(badDate.Validate(), ErrInvalidSale))

	cancelWithoutDate := valid
	cancelWithoutDate.Type = EventSaleCancelled
	cancelWithoutDate.OrderDate = ""
	assert.NoError(t, cancelWithoutDate.Validate())
}

func TestEvent_LedgerEventRef(t *testing.T) {
	testCases := []struct {
		name  string
		event Event
		want  string
	}{
		{"Recorded", Event{Type: EventSaleRecorded, SaleID: "S1", EventID: "E1"}, "S1"},
		{"Cancelled", Event{Type: EventSaleCancelled, SaleID: "S1", EventID: "E1"}, "S1"},
		{"ReturnByReturnID", Event{Type: EventSaleReturned, SaleID: "S1", EventID: "E1", ReturnID: "R1"}, "return:R1"},
		{"ReturnByEventID", Event{Type: EventSaleReturned, SaleID: "S1", EventID: "E1"}, "event:E1"},
		{"ReturnWithoutIdentity", Event{Type: EventSaleReturned, SaleID: "S1", ReturnID: "  "}, "S1"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.event.LedgerEventRef())
		})
	}
}

func TestEvent_DecodeReturnIdentity(t *testing.T) {
	raw := `{"event_id":"E9","event_type":"sale.returned","sale_id":"S1","return_id":"R2","customer_id":"C-1",
		"order_date":"2024-01-10","total_amount":"30000","return_amount":"5000","payment_status":"PENDING"}`

	var event Event
	require.NoError(t, json.Unmarshal([]byte(raw), &event))
	assert.Equal(t, "E9", event.EventID)
	assert.Equal(t, "R2", event.ReturnID)
	assert.Equal(t, "return:R2", event.LedgerEventRef())
}
