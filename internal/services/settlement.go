package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
	"auction-engine/pkg/utils"
)

// CheckoutOptions carries the static parts of every checkout session.
type CheckoutOptions struct {
	Currency   string
	SuccessURL string
	CancelURL  string
}

// SettlementService converts a winning bid (or buy-now purchase) into a
// payable order. The database writes are transactional; the gateway
// call is not and is covered by an idempotency key instead, so a retry
// after a partial failure cannot double-charge.
type SettlementService struct {
	orders      domain.OrderRepository
	auctionRepo domain.AuctionRepository
	gateway     domain.PaymentGateway
	notifier    domain.Notifier
	eventPub    domain.EventPublisher
	opts        CheckoutOptions
	log         logger.Logger
}

func NewSettlementService(
	orders domain.OrderRepository,
	auctionRepo domain.AuctionRepository,
	gateway domain.PaymentGateway,
	notifier domain.Notifier,
	eventPub domain.EventPublisher,
	opts CheckoutOptions,
	log logger.Logger,
) *SettlementService {
	return &SettlementService{
		orders:      orders,
		auctionRepo: auctionRepo,
		gateway:     gateway,
		notifier:    notifier,
		eventPub:    eventPub,
		opts:        opts,
		log:         log,
	}
}

func (s *SettlementService) Settle(ctx context.Context, auction *domain.Auction, winnerID string, amount float64) (*domain.Order, error) {
	// A re-run (second close pass, duplicate handoff) finds the order
	// from the first run. If its checkout session never fully landed,
	// the re-run re-drives it; the stable idempotency key makes the
	// repeated gateway call safe.
	existing, err := s.orders.GetOrderByAuction(ctx, auction.ID)
	if err == nil {
		if existing.PaymentStatus == domain.PaymentPending && existing.GatewayStatus != domain.GatewayCreated {
			if gwErr := s.createGatewaySession(ctx, existing, auction.ID, winnerID); gwErr != nil {
				s.log.Warn("Gateway session re-drive failed", "order_id", existing.ID, "error", gwErr)
			}
		}
		s.log.Info("Settlement already completed", "auction_id", auction.ID, "order_id", existing.ID)
		return existing, nil
	}
	if !errors.Is(err, domain.ErrOrderNotFound) {
		return nil, err
	}

	order := &domain.Order{
		ID:      utils.GenerateID("order"),
		BuyerID: winnerID,
		Items: []domain.OrderItem{{
			AuctionID: auction.ID,
			SellerID:  auction.SellerID,
			Title:     auction.Title,
			Quantity:  1,
			UnitPrice: amount,
		}},
		TotalAmount:   amount,
		PaymentStatus: domain.PaymentPending,
		GatewayStatus: domain.GatewayProvisional,
		CreatedAt:     time.Now(),
	}
	// The order row never exists without a session slot; the real
	// gateway values replace this placeholder once the external call
	// returns.
	order.Session = provisionalSession(order.ID)

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		// Nothing durable happened: the auction stays eligible for a
		// retried close pass.
		return nil, fmt.Errorf("create order for auction %s: %w", auction.ID, err)
	}

	if err := s.createGatewaySession(ctx, order, auction.ID, winnerID); err != nil {
		// The order is committed; the retry sweep or an operator
		// re-submits the session later. Do not roll back.
		s.log.Error("Gateway session incomplete, order left to the retry sweep",
			"order_id", order.ID, "auction_id", auction.ID, "error", err)
	}

	if err := s.auctionRepo.MarkSold(ctx, auction.ID, order.ID); err != nil {
		s.log.Error("Failed to link order to auction",
			"auction_id", auction.ID, "order_id", order.ID, "error", err)
	}

	if err := s.eventPub.PublishEngineEvent(ctx, &domain.EngineEvent{
		Type:      domain.EventOrderCreated,
		AuctionID: auction.ID,
		UserID:    winnerID,
		Amount:    amount,
		Timestamp: time.Now(),
	}); err != nil {
		s.log.Error("Failed to publish order event", "order_id", order.ID, "error", err)
	}

	s.notifier.Notify(ctx, winnerID, domain.NotifyOrderCreated,
		fmt.Sprintf("You won %q for %.2f, complete your payment", auction.Title, amount),
		order.ID)
	s.notifier.Notify(ctx, auction.SellerID, domain.NotifyAuctionSold,
		fmt.Sprintf("Your auction %q sold for %.2f", auction.Title, amount),
		order.ID)

	s.log.Info("Settlement completed", "auction_id", auction.ID, "order_id", order.ID,
		"buyer_id", winnerID, "amount", amount, "gateway_status", order.GatewayStatus)
	return order, nil
}

func (s *SettlementService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.orders.GetOrder(ctx, orderID)
}

// RetryGatewaySessions re-submits checkout creation for orders whose
// session never fully landed, whether the gateway call itself failed or
// the follow-up write did. The idempotency key is derived from the
// auction and buyer, so the gateway sees the same logical request again.
func (s *SettlementService) RetryGatewaySessions(ctx context.Context) (int, error) {
	stuck, err := s.orders.FindGatewayErrors(ctx)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, order := range stuck {
		if len(order.Items) == 0 {
			s.log.Error("Order without line items, skipping retry", "order_id", order.ID)
			continue
		}

		auctionID := order.Items[0].AuctionID
		if err := s.createGatewaySession(ctx, order, auctionID, order.BuyerID); err != nil {
			s.log.Warn("Gateway session retry failed", "order_id", order.ID, "error", err)
			continue
		}
		recovered++
	}

	return recovered, nil
}

func (s *SettlementService) createGatewaySession(ctx context.Context, order *domain.Order, auctionID, buyerID string) error {
	session, err := s.gateway.CreateCheckoutSession(ctx, domain.CheckoutRequest{
		Amount:     order.TotalAmount,
		Currency:   s.opts.Currency,
		SuccessURL: s.opts.SuccessURL,
		CancelURL:  s.opts.CancelURL,
		Metadata: map[string]string{
			"order_id":   order.ID,
			"auction_id": auctionID,
			"buyer_id":   buyerID,
		},
		IdempotencyKey: settlementKey(auctionID, buyerID),
	})
	if err != nil {
		if updErr := s.orders.UpdateSession(ctx, order.ID, order.Session, domain.GatewayError); updErr != nil {
			s.log.Error("Failed to flag order after gateway error", "order_id", order.ID, "error", updErr)
		}
		order.GatewayStatus = domain.GatewayError
		return err
	}

	if err := s.orders.UpdateSession(ctx, order.ID, *session, domain.GatewayCreated); err != nil {
		// The session exists at the gateway but is not on the order yet.
		// Flag the order so the sweep re-drives it with the same key; if
		// even the flag write fails the sweep still picks the order up
		// because it looks for anything not yet created.
		if flagErr := s.orders.UpdateSession(ctx, order.ID, order.Session, domain.GatewayError); flagErr != nil {
			s.log.Error("Failed to flag order after session persist failure",
				"order_id", order.ID, "error", flagErr)
		} else {
			order.GatewayStatus = domain.GatewayError
		}
		return fmt.Errorf("persist gateway session for order %s: %w", order.ID, err)
	}

	order.Session = *session
	order.GatewayStatus = domain.GatewayCreated
	return nil
}

func provisionalSession(orderID string) domain.PaymentSession {
	return domain.PaymentSession{
		SessionID:  "provisional:" + orderID,
		PaymentURL: "",
		ExpiresAt:  time.Time{},
	}
}

// settlementKey is stable across retries for the same auction/winner
// pair; timestamps would defeat gateway-side deduplication.
func settlementKey(auctionID, winnerID string) string {
	return fmt.Sprintf("settle:%s:%s", auctionID, winnerID)
}
