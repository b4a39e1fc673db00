package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/veloxpay/dispatch/event"
	"github.com/veloxpay/dispatch/signature"
	"github.com/veloxpay/dispatch/subscription"
)

const (
	maxResponseBody = 1024 // 1KB cap on stored response bodies

	userAgent = "veloxpay-dispatch/1.0"

	// Outbound header names.
	HeaderDeliveryID = "X-Dispatch-Delivery-ID"
	HeaderEventType  = "X-Dispatch-Event-Type"
	HeaderSignature  = "X-Dispatch-Signature"
)

// envelope is the JSON body of every webhook request. The signature is
// computed over the exact serialized bytes of this structure.
type envelope struct {
	DeliveryID string    `json:"delivery_id"`
	EventType  string    `json:"event_type"`
	Data       any       `json:"data"`
	CreatedAt  time.Time `json:"created_at"`
}

// Request is a fully prepared outbound webhook request: the canonical body
// bytes and the signature header value covering them.
type Request struct {
	Body      []byte
	Signature string
}

// Sender performs HTTP webhook delivery.
type Sender struct {
	client *http.Client
}

// NewSender creates a sender with the given HTTP timeout.
func NewSender(timeout time.Duration) *Sender {
	return &Sender{
		client: &http.Client{Timeout: timeout},
	}
}

// Prepare serializes the event into the envelope body and signs it with the
// subscription's secret. Preparing is separate from sending so the body and
// signature can be recorded in the attempt trail before any network I/O.
func (s *Sender) Prepare(sub *subscription.Subscription, evt *event.Event, d *Delivery) (Request, error) {
	body, err := json.Marshal(envelope{
		DeliveryID: d.ID.String(),
		EventType:  evt.Type,
		Data:       evt.Data,
		CreatedAt:  evt.CreatedAt,
	})
	if err != nil {
		return Request{}, fmt.Errorf("marshal payload: %w", err)
	}

	return Request{
		Body:      body,
		Signature: signature.Header(body, sub.Secret),
	}, nil
}

// Send posts a prepared request to the subscription's URL and returns the
// outcome. A transport failure yields a Result with StatusCode 0.
func (s *Sender) Send(ctx context.Context, sub *subscription.Subscription, evt *event.Event, d *Delivery, req Request) Result {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(req.Body))
	if err != nil {
		return Result{Error: fmt.Sprintf("create request: %v", err)}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set(HeaderDeliveryID, d.ID.String())
	httpReq.Header.Set(HeaderEventType, evt.Type)
	httpReq.Header.Set(HeaderSignature, req.Signature)

	// Custom subscription headers.
	for k, v := range sub.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := s.client.Do(httpReq) //nolint:gosec // G704: URL is a user-configured webhook destination; SSRF is by design.
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return Result{
			Error:     err.Error(),
			LatencyMs: int(latency),
		}
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if readErr != nil {
		return Result{
			StatusCode: resp.StatusCode,
			Error:      fmt.Sprintf("read response: %v", readErr),
			LatencyMs:  int(latency),
		}
	}

	return Result{
		StatusCode: resp.StatusCode,
		Response:   string(respBody),
		LatencyMs:  int(latency),
	}
}
