package llm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// RetryingCompleter 随机指数退避重试，最大间隔 60s，请求错误和 context 取消不重试
type RetryingCompleter struct {
	next            Completer
	retries         int
	initialInterval time.Duration
	maxInterval     time.Duration
}

func NewRetryingCompleter(next Completer, retries int) *RetryingCompleter {
	return &RetryingCompleter{
		next:            next,
		retries:         retries,
		initialInterval: time.Second,
		maxInterval:     60 * time.Second,
	}
}

func (c *RetryingCompleter) Complete(ctx context.Context, req *Request) (*Response, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	b.MaxInterval = c.maxInterval
	b.MaxElapsedTime = 0

	attempt := 0
	op := func() (*Response, error) {
		attempt++
		attemptCtx := ctx
		if req.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, req.Timeout)
			defer cancel()
		}
		resp, err := c.next.Complete(attemptCtx, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		if errors.Is(err, ErrBadRequest) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	notify := func(err error, wait time.Duration) {
		zap.S().Warnf("模型 %s 第 %d 次调用失败，%s 后重试: %v", req.Model, attempt, wait.Round(time.Millisecond), err)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.retries)), ctx)
	return backoff.RetryNotifyWithData(op, policy, notify)
}
