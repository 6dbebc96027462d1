package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/emmanuel-nwafor/foremade/domain"
)

const maxResponseBytes = 1 << 20

// gatewayClient posts JSON to a payment backend with a per-call timeout.
type gatewayClient struct {
	gateway domain.Gateway
	baseURL string
	timeout time.Duration
	http    *http.Client
}

func newGatewayClient(gateway domain.Gateway, baseURL string, timeout time.Duration, hc *http.Client) *gatewayClient {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &gatewayClient{
		gateway: gateway,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		http:    hc,
	}
}

type gatewayErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (c *gatewayClient) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return &TransientNetworkError{Op: path, Err: err}
		}
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(err) {
			return &TransientNetworkError{Op: path, Err: err}
		}
		return fmt.Errorf("read %s response: %w", path, err)
	}

	if resp.StatusCode >= 300 {
		var eb gatewayErrorBody
		_ = json.Unmarshal(raw, &eb)
		msg := eb.Error
		if msg == "" {
			msg = eb.Message
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		code := eb.Code
		if code == "" {
			code = "gateway_error"
		}
		return &PaymentError{Gateway: c.gateway, StatusCode: resp.StatusCode, Code: code, Message: msg}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
