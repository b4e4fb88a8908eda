// Package scheduler implements the subscription lifecycle sweep: expiry
// warnings for subscriptions nearing their end date, followed by a bulk
// expiry of overdue rows. The sweep is designed to run from a cron-style
// trigger and is safe to re-run at any cadence.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"payflow/internal/types"
)

// ExpiringSource provides the subscription rows the sweep operates on.
// Implemented by db.SubscriptionRepo.
type ExpiringSource interface {
	// ListExpiringWithin returns active subscriptions expiring inside
	// (now, now+within], joined with owner contact info.
	ListExpiringWithin(ctx context.Context, now time.Time, within time.Duration) ([]types.ExpiringSubscription, error)

	// ExpireOverdue flips active subscriptions past their end date to
	// expired and returns the number of rows changed.
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

// Notifier delivers expiry notices. Implemented by external.NotifierClient.
type Notifier interface {
	SendExpiryNotice(ctx context.Context, notice types.ExpiryNotice) error
}

// SweeperConfig carries the sweep tuning parameters.
type SweeperConfig struct {
	// NotifyWithin is the look-ahead window for expiry warnings.
	NotifyWithin time.Duration
	// Concurrency bounds the notification fan-out.
	Concurrency int
	// DashboardURL is the public customer dashboard URL embedded in
	// notification messages (no trailing slash).
	DashboardURL string
}

// SweepResult summarizes one lifecycle sweep.
type SweepResult struct {
	ExpiringCount     int   `json:"expiring_count"`
	NotificationsSent int   `json:"notifications_sent"`
	ExpiredCount      int64 `json:"expired_count"`
}

// Sweeper runs the subscription lifecycle sweep.
type Sweeper struct {
	subs     ExpiringSource
	notifier Notifier
	cfg      SweeperConfig
	logger   *slog.Logger
}

// NewSweeper creates a lifecycle sweeper. A nil notifier disables delivery;
// expiring subscriptions are then logged instead of notified, which is the
// demo-mode behavior.
func NewSweeper(subs ExpiringSource, notifier Notifier, cfg SweeperConfig, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Sweeper{
		subs:     subs,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// SweepExpiring runs one lifecycle sweep at the given instant:
//
//  1. Warn: fan out expiry notices for active subscriptions ending within
//     the notify window. Delivery failures are logged and never abort the
//     sweep; a notice is at-least-once over repeated sweeps, not exactly-once.
//  2. Expire: flip every active subscription past its end date to expired
//     in one bulk statement.
//
// The two phases are intentionally unordered with respect to each other's
// rows: the warn window excludes already-overdue subscriptions, so no row is
// both warned and expired in the same sweep.
func (s *Sweeper) SweepExpiring(ctx context.Context, now time.Time) (*SweepResult, error) {
	expiring, err := s.subs.ListExpiringWithin(ctx, now, s.cfg.NotifyWithin)
	if err != nil {
		return nil, err
	}

	var sent atomic.Int64

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for _, sub := range expiring {
		sub := sub
		g.Go(func() error {
			notice := s.buildNotice(sub, now)

			if s.notifier == nil {
				s.logger.InfoContext(gCtx, "expiry notice skipped, no notifier configured",
					slog.String("subscription_id", sub.SubscriptionID),
					slog.Int("days_left", notice.DaysLeft),
				)
				return nil
			}

			if err := s.notifier.SendExpiryNotice(gCtx, notice); err != nil {
				// Delivery is best-effort; the next sweep retries.
				s.logger.WarnContext(gCtx, "expiry notice delivery failed",
					slog.String("subscription_id", sub.SubscriptionID),
					slog.String("to_email", sub.Email),
					slog.Any("error", err),
				)
				return nil
			}

			sent.Add(1)
			return nil
		})
	}

	// Goroutines never return errors; Wait only observes ctx cancellation.
	if err := g.Wait(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "notification fan-out interrupted", err)
	}

	expired, err := s.subs.ExpireOverdue(ctx, now)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{
		ExpiringCount:     len(expiring),
		NotificationsSent: int(sent.Load()),
		ExpiredCount:      expired,
	}

	s.logger.InfoContext(ctx, "lifecycle sweep completed",
		slog.Int("expiring_count", result.ExpiringCount),
		slog.Int("notifications_sent", result.NotificationsSent),
		slog.Int64("expired_count", result.ExpiredCount),
	)

	return result, nil
}

// planDisplayNames maps plan tiers to their Russian display names used in
// customer-facing notifications.
var planDisplayNames = map[types.PlanType]string{
	types.PlanStarter:      "Стартовый",
	types.PlanProfessional: "Профессиональный",
	types.PlanEnterprise:   "Корпоративный",
}

// buildNotice renders the expiry notice for one subscription. The wording
// differs by auto-renew: an auto-renewing customer is told about the coming
// charge, everyone else is told how to resubscribe.
func (s *Sweeper) buildNotice(sub types.ExpiringSubscription, now time.Time) types.ExpiryNotice {
	name := sub.FullName
	if name == "" {
		name = "Пользователь"
	}

	planName := planDisplayNames[sub.PlanType]
	if planName == "" {
		planName = string(sub.PlanType)
	}

	daysLeft := sub.DaysLeft(now)
	manageURL := s.cfg.DashboardURL + "?tab=payment"

	var subject, message string
	if sub.AutoRenew {
		subject = fmt.Sprintf("💳 Автопродление подписки AVT - %s", planName)
		message = fmt.Sprintf(`Здравствуйте, %s!

Ваша подписка на тариф "%s" истекает через %d дн.

✅ Автопродление включено
Ваша подписка будет автоматически продлена. Средства будут списаны с карты, привязанной к вашему аккаунту.

Если вы хотите отменить автопродление, перейдите в раздел "Оплата" в личном кабинете.

🔗 Управление подпиской: %s

С уважением,
Команда AVT Platform`, name, planName, daysLeft, manageURL)
	} else {
		subject = fmt.Sprintf("⚠️ Подписка AVT истекает через %d дн.", daysLeft)
		message = fmt.Sprintf(`Здравствуйте, %s!

Ваша подписка на тариф "%s" истекает через %d дн.

❌ Автопродление отключено
Для продления доступа к функциям вашего тарифа необходимо оформить новую подписку.

После истечения срока действия подписки:
• Будет ограничен доступ к ИИ-функциям
• Сохранится доступ к базовым функциям
• Все ваши данные останутся в безопасности

🔗 Продлить подписку: %s

С уважением,
Команда AVT Platform`, name, planName, daysLeft, manageURL)
	}

	return types.ExpiryNotice{
		ToEmail:   sub.Email,
		Subject:   subject,
		Message:   message,
		PlanType:  sub.PlanType,
		DaysLeft:  daysLeft,
		AutoRenew: sub.AutoRenew,
		Name:      name,
	}
}
