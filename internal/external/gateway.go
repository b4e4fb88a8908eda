package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"payflow/internal/types"
)

// gatewayAPIBase is the default payment gateway API base URL.
// Overridable in tests via GatewayClientConfig.BaseURL.
const gatewayAPIBase = "https://api.yookassa.ru/v3"

// userAgent identifies this service on outbound calls.
const userAgent = "AVT-Billing/1.0"

// GatewayClientConfig holds the configuration for creating a GatewayClient.
type GatewayClientConfig struct {
	ShopID    string
	SecretKey types.SecretString
	BaseURL   string // Override for testing; defaults to gatewayAPIBase
	Logger    *slog.Logger
}

// GatewayClient implements billing.PaymentGateway by calling the YooKassa
// payments API through BaseClient.
//
// Charge submission is configured with zero transport retries: a POST to
// /payments is a money movement, and a retried submission is a new logical
// attempt that requires a fresh Idempotence-Key from the caller. The
// circuit breaker still applies, so a flapping gateway fails fast instead
// of queueing charges behind timeouts.
type GatewayClient struct {
	base      *BaseClient
	shopID    string
	secretKey types.SecretString
	baseURL   string
	logger    *slog.Logger
}

// NewGatewayClient creates a payment gateway client. The httpClient timeout
// bounds each attempt; configure it from GatewayConfig.Timeout.
func NewGatewayClient(httpClient *http.Client, cfg GatewayClientConfig) *GatewayClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = gatewayAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"payment-gateway",
		RetryPolicy{
			MaxRetries: 0,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		userAgent,
	)

	return &GatewayClient{
		base:      base,
		shopID:    cfg.ShopID,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

// gatewayPaymentRequest is the JSON body of a payment creation call.
type gatewayPaymentRequest struct {
	Amount       gatewayAmount       `json:"amount"`
	Confirmation gatewayConfirmation `json:"confirmation"`
	Capture      bool                `json:"capture"`
	Description  string              `json:"description"`
	Metadata     map[string]string   `json:"metadata,omitempty"`
}

type gatewayAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type gatewayConfirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

// gatewayPaymentResponse is the subset of the gateway's payment object the
// service consumes.
type gatewayPaymentResponse struct {
	ID            string              `json:"id"`
	Status        string              `json:"status"`
	Confirmation  gatewayConfirmation `json:"confirmation"`
	PaymentMethod *gatewayMethod      `json:"payment_method"`
}

type gatewayMethod struct {
	Type string `json:"type"`
}

// gatewayErrorResponse is the gateway's JSON error body.
type gatewayErrorResponse struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

// CreateRedirectPayment submits one charge attempt for redirect confirmation.
// The amount is formatted with exactly two decimal places as the gateway
// requires, and the caller's IdempotenceKey deduplicates the submission on
// the gateway side should the request ever race a network timeout.
func (g *GatewayClient) CreateRedirectPayment(ctx context.Context, req types.ChargeRequest) (*types.ChargeResult, error) {
	body := gatewayPaymentRequest{
		Amount: gatewayAmount{
			Value:    req.Amount.StringFixed(2),
			Currency: req.Currency,
		},
		Confirmation: gatewayConfirmation{
			Type:      "redirect",
			ReturnURL: req.ReturnURL,
		},
		Capture:     true,
		Description: req.Description,
		Metadata:    req.Metadata,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode payment request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/payments", bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build payment request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotence-Key", req.IdempotenceKey)
	httpReq.SetBasicAuth(g.shopID, g.secretKey.Unmask())

	resp, err := g.base.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, g.handleErrorResponse(resp)
	}

	var payment gatewayPaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&payment); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamGatewayAPI,
			"failed to decode gateway payment response",
			err,
		)
	}
	if payment.ID == "" {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamGatewayAPI,
			"gateway payment response is missing the payment id",
			nil,
		)
	}

	result := &types.ChargeResult{
		ExternalID:      payment.ID,
		Status:          types.PaymentStatus(payment.Status),
		ConfirmationURL: payment.Confirmation.ConfirmationURL,
	}
	if payment.PaymentMethod != nil && payment.PaymentMethod.Type != "" {
		method := payment.PaymentMethod.Type
		result.PaymentMethod = &method
	}

	g.logger.InfoContext(ctx, "gateway payment created",
		slog.String("external_payment_id", payment.ID),
		slog.String("status", payment.Status),
	)

	return result, nil
}

// handleErrorResponse reads a gateway error body and maps it to an AppError.
func (g *GatewayClient) handleErrorResponse(resp *http.Response) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamGatewayAPI,
			fmt.Sprintf("gateway returned status %d and response body was unreadable", resp.StatusCode),
			readErr,
		)
	}

	var gatewayErr gatewayErrorResponse
	if jsonErr := json.Unmarshal(body, &gatewayErr); jsonErr != nil || gatewayErr.Description == "" {
		return types.NewAppError(
			types.ErrCodeUpstreamGatewayAPI,
			fmt.Sprintf("gateway rejected the payment with status %d", resp.StatusCode),
			nil,
		)
	}

	return types.NewAppErrorWithDetails(
		types.ErrCodeUpstreamGatewayAPI,
		fmt.Sprintf("gateway rejected the payment: %s", gatewayErr.Description),
		nil,
		map[string]any{
			"gateway_code": gatewayErr.Code,
			"http_status":  resp.StatusCode,
		},
	)
}
