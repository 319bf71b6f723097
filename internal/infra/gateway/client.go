package gateway

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"paybridge/internal/domain"
	"paybridge/internal/domain/model"
	"paybridge/internal/infra/metrics"
)

// Client wraps resty for calls to one provider's API. Adapters share it so
// timeouts, retries and call metrics behave the same across providers.
type Client struct {
	r        *resty.Client
	provider model.Provider
	log      *zerolog.Logger
}

func NewClient(provider model.Provider, baseURL string, timeout time.Duration, log *zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	r := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(3*time.Second).
		SetHeader("Accept", "application/json").
		// Retry only requests that never reached the provider; an HTTP error
		// status means the provider already saw this call.
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil && resp == nil
		})

	return &Client{r: r, provider: provider, log: log}
}

// Request returns a resty request for chaining; adapters set auth and body.
func (c *Client) Request(ctx context.Context) *resty.Request {
	return c.r.R().SetContext(ctx)
}

// Do executes the prepared request and records the call metric under op.
// Transport failures come back as typed payment errors; HTTP error statuses
// are returned as-is for the adapter to interpret.
func (c *Client) Do(req *resty.Request, method, path, op string) (*resty.Response, error) {
	start := time.Now()
	resp, err := req.Execute(method, path)
	elapsed := time.Since(start)

	result := "ok"
	switch {
	case err != nil:
		result = "transport_error"
	case resp.IsError():
		result = "http_error"
	}
	metrics.ObserveGatewayCall(string(c.provider), op, result, elapsed.Seconds())

	if err != nil {
		c.log.Warn().Err(err).
			Str("provider", string(c.provider)).
			Str("op", op).
			Dur("elapsed", elapsed).
			Msg("provider call failed")
		return nil, c.wrapTransportErr(op, err)
	}

	c.log.Debug().
		Str("provider", string(c.provider)).
		Str("op", op).
		Int("status", resp.StatusCode()).
		Dur("elapsed", elapsed).
		Msg("provider call")
	return resp, nil
}

// wrapTransportErr distinguishes timeouts from other transport failures so
// callers can avoid caching results that may still land provider-side.
func (c *Client) wrapTransportErr(op string, err error) error {
	var uerr *url.Error
	timedOut := errors.As(err, &uerr) && uerr.Timeout()
	if timedOut || errors.Is(err, context.DeadlineExceeded) {
		return domain.NewPaymentError(domain.CodeGatewayTimeout, string(c.provider), op+" timed out", err)
	}
	return domain.NewPaymentError(domain.CodeGatewayError, string(c.provider), op+" failed", err)
}
