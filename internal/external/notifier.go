package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"payflow/internal/types"
)

// NotifierClientConfig holds the configuration for creating a NotifierClient.
type NotifierClientConfig struct {
	URL       string
	AuthToken types.SecretString
	FromName  string
	Logger    *slog.Logger
}

// NotifierClient delivers expiry notices to the notification service.
// Implements scheduler.Notifier.
//
// Delivery is best-effort: a notice that cannot be delivered after retries
// surfaces as an error for the caller to log, never to abort a sweep on.
type NotifierClient struct {
	base     *BaseClient
	url      string
	token    types.SecretString
	fromName string
	logger   *slog.Logger
}

// NewNotifierClient creates a notification service client. The httpClient
// timeout bounds each attempt; configure it from NotifierConfig.Timeout.
func NewNotifierClient(httpClient *http.Client, cfg NotifierClientConfig) *NotifierClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"notifier",
		DefaultRetryPolicy(),
		userAgent,
	)

	return &NotifierClient{
		base:     base,
		url:      strings.TrimSuffix(cfg.URL, "/"),
		token:    cfg.AuthToken,
		fromName: cfg.FromName,
		logger:   logger,
	}
}

// notificationRequest is the JSON body posted to the notification service.
type notificationRequest struct {
	Action    string         `json:"action"`
	ToEmail   string         `json:"to_email"`
	Subject   string         `json:"subject"`
	Message   string         `json:"message"`
	PlanType  types.PlanType `json:"plan_type"`
	DaysLeft  int            `json:"days_left"`
	AutoRenew bool           `json:"auto_renew"`
	Name      string         `json:"name"`
	FromName  string         `json:"from_name,omitempty"`
}

// SendExpiryNotice posts one expiry notice to the notification service.
func (n *NotifierClient) SendExpiryNotice(ctx context.Context, notice types.ExpiryNotice) error {
	payload, err := json.Marshal(notificationRequest{
		Action:    "send_subscription_notification",
		ToEmail:   notice.ToEmail,
		Subject:   notice.Subject,
		Message:   notice.Message,
		PlanType:  notice.PlanType,
		DaysLeft:  notice.DaysLeft,
		AutoRenew: notice.AutoRenew,
		Name:      notice.Name,
		FromName:  n.fromName,
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode expiry notice", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build notification request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.token.IsSet() {
		req.Header.Set("Authorization", "Bearer "+n.token.Unmask())
	}

	resp, err := n.base.Do(req)
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamNotifier, "notification delivery failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return types.NewAppError(
			types.ErrCodeUpstreamNotifier,
			fmt.Sprintf("notification service returned status %d", resp.StatusCode),
			nil,
		)
	}

	n.logger.InfoContext(ctx, "expiry notice delivered",
		slog.String("to_email", notice.ToEmail),
		slog.Int("days_left", notice.DaysLeft),
	)

	return nil
}
