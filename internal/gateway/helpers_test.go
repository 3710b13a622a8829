package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
)

// MockTransport is a mock implementation of Transport
type MockTransport struct {
	mock.Mock
}

var _ Transport = (*MockTransport)(nil)

func (m *MockTransport) Post(ctx context.Context, endpoint, body string, headers map[string]string) (string, error) {
	args := m.Called(ctx, endpoint, body, headers)
	return args.String(0), args.Error(1)
}

func (m *MockTransport) Get(ctx context.Context, endpoint string, headers map[string]string) (string, error) {
	args := m.Called(ctx, endpoint, headers)
	return args.String(0), args.Error(1)
}

// recordingSink keeps every log entry
type recordingSink struct {
	mu      sync.Mutex
	entries []*LogEntry
}

func (s *recordingSink) Log(_ context.Context, entry *LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
}

// payloads returns every recorded payload as one string
func (s *recordingSink) payloads() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out string
	for _, e := range s.entries {
		out += string(e.Payload) + "\n"
	}
	return out
}

var fixedNow = time.Unix(1700000000, 0)

func testOptions(transport Transport, sink LogSink) Options {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return Options{
		Transport: transport,
		Sink:      sink,
		Log:       logrus.NewEntry(logger),
		Clock:     func() time.Time { return fixedNow },
	}
}
