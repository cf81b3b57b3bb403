package ddcci

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-hidlink/frame"
	"github.com/arloliu/go-hidlink/transport"
)

type mockController struct {
	mock.Mock
}

func (m *mockController) GetVCP(ctx context.Context, code byte) (VCPValue, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(VCPValue), args.Error(1) //nolint:forcetypeassert
}

func (m *mockController) SetVCP(ctx context.Context, code byte, value uint16) error {
	return m.Called(ctx, code, value).Error(0)
}

func TestWithRetry_GetRecoversFromFraming(t *testing.T) {
	m := &mockController{}
	m.On("GetVCP", mock.Anything, byte(0x10)).Return(VCPValue{}, frame.Fail(frame.CheckChecksum, 10, 0, 1)).Once()
	m.On("GetVCP", mock.Anything, byte(0x10)).Return(VCPValue{Current: 30, Maximum: 100}, nil).Once()

	c := WithRetry(m, transport.Retrier{Retries: DefaultRetries})
	v, err := c.GetVCP(context.Background(), 0x10)
	require.NoError(t, err)
	assert.Equal(t, uint16(30), v.Current)
	m.AssertExpectations(t)
}

func TestWithRetry_UnsupportedNotRetried(t *testing.T) {
	m := &mockController{}
	m.On("GetVCP", mock.Anything, byte(0xDF)).Return(VCPValue{}, ErrUnsupportedVCP).Once()

	c := WithRetry(m, transport.Retrier{Retries: 3})
	_, err := c.GetVCP(context.Background(), 0xDF)
	require.ErrorIs(t, err, ErrUnsupportedVCP)
	m.AssertNumberOfCalls(t, "GetVCP", 1)
}

func TestWithRetry_SetExhausted(t *testing.T) {
	m := &mockController{}
	m.On("SetVCP", mock.Anything, byte(0x10), uint16(50)).Return(transport.ErrReplyTimeout)

	c := WithRetry(m, transport.Retrier{Retries: 2})
	err := c.SetVCP(context.Background(), 0x10, 50)
	require.ErrorIs(t, err, transport.ErrReplyTimeout)
	m.AssertNumberOfCalls(t, "SetVCP", 3)
}
