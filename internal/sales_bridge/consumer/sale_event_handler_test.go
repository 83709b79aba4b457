package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mycelium-customer-ledger/internal/domain/ledger"
	"github.com/mycelium-customer-ledger/internal/domain/sales"
	"github.com/mycelium-customer-ledger/internal/domain/shared"
	"github.com/mycelium-customer-ledger/internal/platform/messaging/producers"
	"github.com/mycelium-customer-ledger/internal/sales_bridge/service"
)

// MockBridgeService for testing
type MockBridgeService struct {
	mock.Mock
}

func (m *MockBridgeService) HandleSaleEvent(ctx context.Context, event *sales.Event) (service.Outcome, error) {
	args := m.Called(ctx, event)
	return args.Get(0).(service.Outcome), args.Error(1)
}

// MockDeadLetterPublisher for testing
type MockDeadLetterPublisher struct {
	mock.Mock
}

func (m *MockDeadLetterPublisher) PublishToDLQ(ctx context.Context, key string, value []byte, reason string) error {
	args := m.Called(ctx, key, value, reason)
	return args.Error(0)
}

func (m *MockDeadLetterPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

const validSale = `{"event_type":"sale.recorded","sale_id":"S1","customer_id":"C-1","order_date":"2024-01-10",
	"total_amount":"30000","payment_status":"pending"}`

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandleMessage(t *testing.T) {
	key := []byte("C-1")

	tests := []struct {
		name       string
		value      string
		headers    map[string]string
		setupMocks func(bridge *MockBridgeService, dlq *MockDeadLetterPublisher)
		wantErr    error
	}{
		{
			name:    "successful processing uses header correlation id",
			value:   validSale,
			headers: map[string]string{shared.CorrelationIDHeader: "corr-1"},
			setupMocks: func(bridge *MockBridgeService, dlq *MockDeadLetterPublisher) {
				bridge.On("HandleSaleEvent", mock.Anything, mock.MatchedBy(func(e *sales.Event) bool {
					return e.SaleID == "S1" && e.CorrelationID == "corr-1"
				})).Return(service.OutcomePosted, nil).Once()
			},
		},
		{
			name:  "malformed json goes to DLQ",
			value: `{"event_type":`,
			setupMocks: func(bridge *MockBridgeService, dlq *MockDeadLetterPublisher) {
				dlq.On("PublishToDLQ", mock.Anything, "C-1", []byte(`{"event_type":`), mock.AnythingOfType("string")).Return(nil).Once()
			},
		},
		{
			name:  "invalid event goes to DLQ",
			value: `{"event_type":"sale.recorded","sale_id":"S1","customer_id":"C-1","order_date":"2024-01-10","total_amount":"-5"}`,
			setupMocks: func(bridge *MockBridgeService, dlq *MockDeadLetterPublisher) {
				dlq.On("PublishToDLQ", mock.Anything, "C-1", mock.Anything, mock.Anything).Return(nil).Once()
			},
		},
		{
			name:  "unknown customer goes to DLQ",
			value: validSale,
			setupMocks: func(bridge *MockBridgeService, dlq *MockDeadLetterPublisher) {
				bridge.On("HandleSaleEvent", mock.Anything, mock.Anything).
					Return(service.Outcome(""), ledger.ErrCustomerNotFound{CustomerID: "C-1"}).Once()
				dlq.On("PublishToDLQ", mock.Anything, "C-1", []byte(validSale), mock.Anything).Return(nil).Once()
			},
		},
		{
			name:  "conflict is retried",
			value: validSale,
			setupMocks: func(bridge *MockBridgeService, dlq *MockDeadLetterPublisher) {
				bridge.On("HandleSaleEvent", mock.Anything, mock.Anything).
					Return(service.Outcome(""), fmt.Errorf("create ledger entry: %w", ledger.ErrConflict)).Once()
			},
			wantErr: ledger.ErrConflict,
		},
		{
			name:  "DLQ failure is retried",
			value: `not json`,
			setupMocks: func(bridge *MockBridgeService, dlq *MockDeadLetterPublisher) {
				dlq.On("PublishToDLQ", mock.Anything, "C-1", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()
			},
			wantErr: errors.New("broker down"),
		},
		{
			name:  "disabled DLQ drops the message",
			value: `not json`,
			setupMocks: func(bridge *MockBridgeService, dlq *MockDeadLetterPublisher) {
				dlq.On("PublishToDLQ", mock.Anything, "C-1", mock.Anything, mock.Anything).Return(producers.ErrDLQDisabled).Once()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bridge := &MockBridgeService{}
			dlq := &MockDeadLetterPublisher{}
			tt.setupMocks(bridge, dlq)

			handler := NewSaleEventHandler(newTestLogger(), bridge, dlq)
			err := handler.HandleMessage(context.Background(), key, []byte(tt.value), tt.headers)

			switch {
			case tt.wantErr == nil:
				require.NoError(t, err)
			case errors.Is(tt.wantErr, ledger.ErrConflict):
				assert.ErrorIs(t, err, ledger.ErrConflict)
			default:
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr.Error())
			}
			bridge.AssertExpectations(t)
			dlq.AssertExpectations(t)
		})
	}
}

func TestHandleMessage_EventCorrelationIDWins(t *testing.T) {
	bridge := &MockBridgeService{}
	value := `{"event_type":"sale.cancelled","sale_id":"S1","customer_id":"C-1","total_amount":"30000","correlation_id":"from-body"}`
	bridge.On("HandleSaleEvent", mock.Anything, mock.MatchedBy(func(e *sales.Event) bool {
		return e.CorrelationID == "from-body"
	})).Return(service.OutcomeSkipped, nil).Once()

	handler := NewSaleEventHandler(newTestLogger(), bridge, nil)
	err := handler.HandleMessage(context.Background(), []byte("C-1"), []byte(value),
		map[string]string{shared.CorrelationIDHeader: "from-header"})

	require.NoError(t, err)
	bridge.AssertExpectations(t)
}

func TestHandleMessage_NilDLQDropsPoisonMessage(t *testing.T) {
	handler := NewSaleEventHandler(newTestLogger(), &MockBridgeService{}, nil)
	err := handler.HandleMessage(context.Background(), []byte("k"), []byte("garbage"), nil)
	assert.NoError(t, err)
}
