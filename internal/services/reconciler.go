package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

// ReconcilerService applies gateway webhook outcomes to orders. The
// gateway delivers at-least-once, so every path here has to be safe to
// take twice; the pending-only transition in the repository guarantees
// the downstream effects fire exactly once per logical event.
type ReconcilerService struct {
	orders        domain.OrderRepository
	notifier      domain.Notifier
	eventPub      domain.EventPublisher
	lookupRetries int
	lookupDelay   time.Duration
	log           logger.Logger
}

func NewReconcilerService(
	orders domain.OrderRepository,
	notifier domain.Notifier,
	eventPub domain.EventPublisher,
	lookupRetries int,
	lookupDelay time.Duration,
	log logger.Logger,
) *ReconcilerService {
	return &ReconcilerService{
		orders:        orders,
		notifier:      notifier,
		eventPub:      eventPub,
		lookupRetries: lookupRetries,
		lookupDelay:   lookupDelay,
		log:           log,
	}
}

func (r *ReconcilerService) OnGatewayEvent(ctx context.Context, event *domain.GatewayEvent) error {
	r.log.Info("Gateway event received",
		"event_id", event.ID, "session_id", event.SessionID, "outcome", event.Outcome)

	var target domain.PaymentStatus
	switch event.Outcome {
	case domain.OutcomeSucceeded:
		target = domain.PaymentPaid
	case domain.OutcomeFailed:
		target = domain.PaymentFailed
	default:
		return fmt.Errorf("unknown gateway outcome %q", event.Outcome)
	}

	order, err := r.lookupOrder(ctx, event.SessionID)
	if err != nil {
		// Returning the error makes the webhook respond non-2xx, so
		// the gateway's own retry policy redelivers rather than the
		// event being dropped.
		return err
	}

	if order.PaymentStatus == target {
		r.log.Info("Duplicate gateway event, already applied",
			"order_id", order.ID, "status", target)
		return nil
	}
	if order.PaymentStatus != domain.PaymentPending {
		// Terminal but different outcome: never regress. Acknowledge so
		// the gateway stops retrying, but make it visible.
		r.log.Error("Conflicting gateway outcome for terminal order",
			"order_id", order.ID, "current", order.PaymentStatus, "incoming", target)
		return nil
	}

	paidAt := time.Time{}
	if target == domain.PaymentPaid {
		paidAt = time.Now()
	}

	transitioned, err := r.orders.MarkPaymentOutcome(ctx, order.ID, target, paidAt)
	if err != nil {
		return fmt.Errorf("mark payment outcome for order %s: %w", order.ID, err)
	}
	if !transitioned {
		// A concurrent duplicate delivery won the transition.
		r.log.Info("Payment outcome already applied concurrently", "order_id", order.ID)
		return nil
	}

	if target == domain.PaymentPaid {
		r.onPaid(ctx, order)
	} else {
		r.onFailed(ctx, order)
	}
	return nil
}

// lookupOrder tolerates the event arriving before settlement has
// persisted the real session id: a short retry bridges the race, and a
// final miss is handed back to the gateway's redelivery.
func (r *ReconcilerService) lookupOrder(ctx context.Context, sessionID string) (*domain.Order, error) {
	var lastErr error
	for attempt := 0; attempt <= r.lookupRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(r.lookupDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		order, err := r.orders.GetOrderBySession(ctx, sessionID)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, domain.ErrOrderNotFound) {
			return nil, err
		}
		lastErr = err
	}

	r.log.Warn("No order for gateway session after retries", "session_id", sessionID)
	return nil, lastErr
}

func (r *ReconcilerService) onPaid(ctx context.Context, order *domain.Order) {
	r.log.Info("Order paid", "order_id", order.ID, "buyer_id", order.BuyerID,
		"amount", order.TotalAmount)

	if err := r.eventPub.PublishEngineEvent(ctx, &domain.EngineEvent{
		Type:      domain.EventPaymentPaid,
		UserID:    order.BuyerID,
		Amount:    order.TotalAmount,
		Timestamp: time.Now(),
	}); err != nil {
		r.log.Error("Failed to publish payment event", "order_id", order.ID, "error", err)
	}

	r.notifier.Notify(ctx, order.BuyerID, domain.NotifyPaymentPaid,
		fmt.Sprintf("Payment of %.2f received, your order %s is confirmed", order.TotalAmount, order.ID),
		order.ID)
	for _, seller := range sellerIDs(order) {
		r.notifier.Notify(ctx, seller, domain.NotifyPaymentPaid,
			fmt.Sprintf("Buyer paid %.2f for order %s", order.TotalAmount, order.ID),
			order.ID)
	}
}

func (r *ReconcilerService) onFailed(ctx context.Context, order *domain.Order) {
	r.log.Warn("Order payment failed", "order_id", order.ID, "buyer_id", order.BuyerID)

	if err := r.eventPub.PublishEngineEvent(ctx, &domain.EngineEvent{
		Type:      domain.EventPaymentFailed,
		UserID:    order.BuyerID,
		Amount:    order.TotalAmount,
		Timestamp: time.Now(),
	}); err != nil {
		r.log.Error("Failed to publish payment event", "order_id", order.ID, "error", err)
	}

	// Failure notifies the buyer only; sellers see nothing until a
	// successful payment actually happens.
	r.notifier.Notify(ctx, order.BuyerID, domain.NotifyPaymentFailed,
		fmt.Sprintf("Payment for order %s failed, please try again", order.ID),
		order.ID)
}

func sellerIDs(order *domain.Order) []string {
	seen := make(map[string]bool)
	var sellers []string
	for _, item := range order.Items {
		if item.SellerID != "" && !seen[item.SellerID] {
			seen[item.SellerID] = true
			sellers = append(sellers, item.SellerID)
		}
	}
	return sellers
}
