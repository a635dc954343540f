/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"net"
	"net/http"
	"strconv"
	"syscall"

	"github.com/acronis/go-appkit/httpclient"
	"github.com/acronis/go-appkit/log"

	"github.com/acronis/go-reqsched"
)

// Request describes a single HTTP call to be executed.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is the result of a successfully executed Request.
// Responses with a 4xx/5xx status code are reported as errors, not as Responses.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client executes HTTP requests on behalf of a reqsched.Scheduler.
type Client struct {
	// Delegate is the underlying HTTP client used for sending requests.
	Delegate *http.Client

	// Logger is used for logging. log.NewDisabledLogger() is used by default.
	Logger log.FieldLogger
}

var _ reqsched.Executor[*Request, *Response] = (*Client)(nil)

// Opts represents options for NewWithOpts.
type Opts struct {
	// Logger is used for logging.
	Logger log.FieldLogger
}

// New creates a new Client on top of the given *http.Client.
// A nil delegate means a client with a cloned default transport.
func New(delegate *http.Client) *Client {
	return NewWithOpts(delegate, Opts{})
}

// NewWithOpts creates a new Client with the specified options.
func NewWithOpts(delegate *http.Client, opts Opts) *Client {
	if delegate == nil {
		delegate = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	return &Client{Delegate: delegate, Logger: opts.Logger}
}

// NewFromConfig creates a new Client with the underlying *http.Client built
// from the go-appkit httpclient configuration (logging, metrics, rate
// limiting and user agent round trippers). Retries in cfg should stay
// disabled: the scheduler owns the retry policy.
func NewFromConfig(cfg *httpclient.Config, opts Opts) (*Client, error) {
	delegate, err := httpclient.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}
	return NewWithOpts(delegate, opts), nil
}

// Execute implements reqsched.Executor. All failures are reported as
// *reqsched.ExecutorError so that the scheduler can classify them.
func (c *Client) Execute(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, reqsched.NewExecutorError(reqsched.FailureUnknown, err)
	}
	if req.Header != nil {
		httpReq.Header = req.Header.Clone()
	}

	resp, err := c.Delegate.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.Logger.Error("failed to close response body", log.Error(closeErr))
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, reqsched.NewBadResponseError(resp.StatusCode, nil)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: respBody}, nil
}

// DedupKey derives a deduplication key for the request from its method, URL
// and body, suitable for reqsched.SubmitOpts.DedupKey.
func DedupKey(req *Request) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(req.Method))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(req.URL))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(req.Body)
	return req.Method + " " + req.URL + "#" + strconv.FormatUint(h.Sum64(), 16)
}

// classifyTransportError maps a net/http transport error to the scheduler's
// failure taxonomy.
func classifyTransportError(err error) *reqsched.ExecutorError {
	if errors.Is(err, context.Canceled) {
		return reqsched.NewExecutorError(reqsched.FailureCancelled, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		kind := reqsched.FailureConnectionError
		switch opErr.Op {
		case "dial":
			if opErr.Timeout() {
				kind = reqsched.FailureConnectTimeout
			}
		case "read":
			if opErr.Timeout() {
				kind = reqsched.FailureReceiveTimeout
			}
		case "write":
			if opErr.Timeout() {
				kind = reqsched.FailureSendTimeout
			}
		}
		return reqsched.NewExecutorError(kind, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return reqsched.NewExecutorError(reqsched.FailureReceiveTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return reqsched.NewExecutorError(reqsched.FailureReceiveTimeout, err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return reqsched.NewExecutorError(reqsched.FailureConnectionError, err)
	}
	return reqsched.NewExecutorError(reqsched.FailureUnknown, err)
}
