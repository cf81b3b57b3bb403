package ddcci

import (
	"context"

	"github.com/arloliu/go-hidlink/transport"
)

// DefaultRetries is the retry count used for displays behind a shared bus.
const DefaultRetries = 1

type retryController struct {
	next    VCPController
	retrier transport.Retrier
}

// WithRetry wraps c so that failed requests of a retryable kind are attempted up to
// retries more times. Unsupported VCP codes and canceled requests are returned at once.
func WithRetry(c VCPController, r transport.Retrier) VCPController {
	return &retryController{next: c, retrier: r}
}

func (c *retryController) GetVCP(ctx context.Context, code byte) (VCPValue, error) {
	return transport.RetryValue(ctx, c.retrier, func(ctx context.Context) (VCPValue, error) {
		return c.next.GetVCP(ctx, code)
	})
}

func (c *retryController) SetVCP(ctx context.Context, code byte, value uint16) error {
	return c.retrier.Do(ctx, func(ctx context.Context) error {
		return c.next.SetVCP(ctx, code, value)
	})
}
