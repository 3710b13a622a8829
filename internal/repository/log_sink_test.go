package repository

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gateway-service/internal/gateway"
	"gateway-service/internal/models"
)

type MockLogStore struct {
	mock.Mock
}

func (m *MockLogStore) CreateGatewayLog(ctx context.Context, entry *models.GatewayLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestLogSink_StoresTenantBoundRecord(t *testing.T) {
	store := new(MockLogStore)
	store.On("CreateGatewayLog", mock.Anything, mock.MatchedBy(func(l *models.GatewayLog) bool {
		return l.TenantID == "t1" &&
			l.GatewayType == models.GatewayEway &&
			l.Direction == models.LogDirectionInput &&
			string(l.Payload) == `{"ewayCardNumber":"****"}` &&
			l.Success
	})).Return(nil)

	sink := NewLogSink(store, "t1", quietLogger())
	sink.Log(context.Background(), &gateway.LogEntry{
		Gateway:   models.GatewayEway,
		URL:       "https://www.eway.com.au/gateway_cvn/xmlpayment.asp",
		Direction: models.LogDirectionInput,
		Payload:   json.RawMessage(`{"ewayCardNumber":"****"}`),
		Success:   true,
	})

	store.AssertExpectations(t)
}

func TestLogSink_StoreFailureIsSwallowed(t *testing.T) {
	store := new(MockLogStore)
	store.On("CreateGatewayLog", mock.Anything, mock.Anything).Return(errors.New("db down"))

	sink := NewLogSink(store, "t1", quietLogger())
	assert.NotPanics(t, func() {
		sink.Log(context.Background(), &gateway.LogEntry{Gateway: models.GatewaySkrill, Direction: models.LogDirectionOutput})
		sink.Log(context.Background(), nil)
	})
	store.AssertNumberOfCalls(t, "CreateGatewayLog", 1)
}
