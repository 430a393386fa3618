package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"boxoffice/pkg/model"
)

// Gateway talks to an external payment gateway over HTTP. One client serves
// all payment methods; the method only changes the endpoint path, which is
// why card/wallet/upi do not need separate types.
type Gateway struct {
	baseURL    string
	method     model.PaymentMethod
	httpClient *http.Client
}

func NewGateway(baseURL string, method model.PaymentMethod, timeout time.Duration) *Gateway {
	return &Gateway{
		baseURL: baseURL,
		method:  method,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type gatewayRequest struct {
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Method    string `json:"method"`
}

type gatewayResponse struct {
	Status string `json:"status"`
}

func (g *Gateway) Charge(ctx context.Context, reference string, amount int64) error {
	return g.post(ctx, "/v1/charges", reference, amount)
}

func (g *Gateway) Refund(ctx context.Context, reference string, amount int64) error {
	return g.post(ctx, "/v1/refunds", reference, amount)
}

func (g *Gateway) post(ctx context.Context, path, reference string, amount int64) error {
	payload, err := json.Marshal(gatewayRequest{
		Reference: reference,
		Amount:    amount,
		Method:    string(g.method),
	})
	if err != nil {
		return fmt.Errorf("encode gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call payment gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusUnprocessableEntity {
		return ErrDeclined
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("payment gateway returned status %d", resp.StatusCode)
	}

	var body gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	if body.Status != "SUCCESS" {
		return ErrDeclined
	}
	return nil
}
