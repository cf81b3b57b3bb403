package logger

import (
	"github.com/stretchr/testify/mock"
)

// MockLogger is a testify mock implementing Logger.
//
// With returns the receiver unless an expectation for "With" was registered,
// so child loggers record into the same mock.
type MockLogger struct {
	mock.Mock
}

var _ Logger = (*MockLogger)(nil)

func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

// Ignore accepts any number of calls to the given level methods, e.g. "Debug" or "Info",
// so a test only sets expectations for the levels it checks.
func (m *MockLogger) Ignore(methods ...string) *MockLogger {
	for _, method := range methods {
		m.On(method, mock.Anything, mock.Anything).Maybe()
	}

	return m
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Info(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Warn(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Error(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Fatal(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) SetLevel(level LogLevel) {
	m.Called(level)
}

func (m *MockLogger) Level() LogLevel {
	args := m.Called()
	return args.Get(0).(LogLevel) //nolint:forcetypeassert
}

func (m *MockLogger) With(keyValues ...any) Logger {
	for _, c := range m.ExpectedCalls {
		if c.Method == "With" {
			args := m.Called(keyValues...)
			return args.Get(0).(Logger) //nolint:forcetypeassert
		}
	}

	return m
}
