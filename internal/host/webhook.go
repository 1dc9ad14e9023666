package host

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/protocol"
)

const defaultWebhookTimeout = 30 * time.Second

type webhookRequest struct {
	Key           string         `json:"key"`
	Args          []any          `json:"args"`
	Idempotent    bool           `json:"idempotent"`
	CorrelationID string         `json:"correlationId"`
	Written       map[string]int `json:"written,omitempty"`
}

type webhookResponse struct {
	Result any `json:"result"`
}

// Webhook serves a host function by posting the call to a URL.
type Webhook struct {
	spec   FunctionSpec
	client *resty.Client
}

// NewWebhook creates the webhook described by spec.
func NewWebhook(spec FunctionSpec) *Webhook {
	timeout := time.Duration(spec.Timeout)
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	if spec.Method == "" {
		spec.Method = http.MethodPost
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(spec.Retries).
		SetRetryWaitTime(100*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("User-Agent", "scripthost-webhook/1.0").
		SetHeaders(spec.Headers).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return r != nil && r.StatusCode() >= http.StatusInternalServerError
		})

	return &Webhook{spec: spec, client: client}
}

// Call sends call to the webhook and returns the "result" field of its
// JSON reply.
func (w *Webhook) Call(ctx context.Context, call protocol.Call) (any, error) {
	args := call.Args
	if args == nil {
		args = []any{}
	}

	var out webhookResponse
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(webhookRequest{
			Key:           call.Key,
			Args:          args,
			Idempotent:    call.Idempotent,
			CorrelationID: call.CorrelationID,
			Written:       call.Written,
		}).
		SetResult(&out).
		Execute(w.spec.Method, w.spec.URL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", w.spec.Name, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%s: webhook returned %s", w.spec.Name, resp.Status())
	}
	return out.Result, nil
}
