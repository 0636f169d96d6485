package domain

import (
	"context"
	"time"
)

// Repository interfaces
type AuctionRepository interface {
	CreateAuction(ctx context.Context, auction *Auction) error
	GetAuction(ctx context.Context, auctionID string) (*Auction, error)

	// ApplyBid commits the bid and raises current_price in one atomic
	// unit, conditional on current_price still being expectedPrice.
	// Returns ErrPriceConflict when a concurrent bid got there first.
	ApplyBid(ctx context.Context, bid *Bid, expectedPrice float64) error

	// CloseAuction transitions active -> completed and records the
	// winner. Already-terminal auctions are left untouched; the bool
	// reports whether this call performed the transition.
	CloseAuction(ctx context.Context, auctionID, winnerID string) (bool, error)

	MarkSold(ctx context.Context, auctionID, orderID string) error
	UpdateAuctionStatus(ctx context.Context, auctionID string, status AuctionStatus) error
	FindExpired(ctx context.Context, now time.Time) ([]*Auction, error)
	FindPendingToStart(ctx context.Context, now time.Time) ([]*Auction, error)

	// FindUnsettled returns completed auctions that have a winner but
	// no linked order yet, i.e. settlement failed after closure.
	FindUnsettled(ctx context.Context) ([]*Auction, error)
}

type BidRepository interface {
	GetBidHistory(ctx context.Context, auctionID string) ([]*Bid, error)

	// GetHighestBid returns the winning candidate: highest amount,
	// earliest timestamp among equals. ErrNoBids when none exist.
	GetHighestBid(ctx context.Context, auctionID string) (*Bid, error)
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *Order) error
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	GetOrderByAuction(ctx context.Context, auctionID string) (*Order, error)
	GetOrderBySession(ctx context.Context, sessionID string) (*Order, error)
	UpdateSession(ctx context.Context, orderID string, session PaymentSession, status GatewayStatus) error

	// MarkPaymentOutcome applies the transition only from pending and
	// reports whether this call performed it.
	MarkPaymentOutcome(ctx context.Context, orderID string, status PaymentStatus, paidAt time.Time) (bool, error)

	FindGatewayErrors(ctx context.Context) ([]*Order, error)
}

type NotificationRepository interface {
	SaveNotification(ctx context.Context, n *Notification) error
}

// Payment gateway boundary
type CheckoutRequest struct {
	Amount         float64
	Currency       string
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
	IdempotencyKey string
}

type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*PaymentSession, error)
}

// Notification sink. Fire and forget; implementations log failures.
type Notifier interface {
	Notify(ctx context.Context, recipientID string, kind NotificationKind, message, relatedID string)
}

// Cache interfaces
type AuctionStateCache interface {
	SetAuctionStatus(ctx context.Context, auctionID string, status AuctionStatus) error
	GetAuctionStatus(ctx context.Context, auctionID string) (AuctionStatus, error)
}

// Event interfaces
type EventPublisher interface {
	PublishEngineEvent(ctx context.Context, event *EngineEvent) error
}

type EventSubscriber interface {
	SubscribeToEngineEvents(ctx context.Context, handler EventHandler) error
}

type EventHandler func(event *EngineEvent) error

// Leader election interface
type LeaderElection interface {
	BecomeLeader(ctx context.Context, instanceID string) (bool, error)
	IsLeader(ctx context.Context, instanceID string) (bool, error)
	ReleaseLeadership(ctx context.Context, instanceID string) error
}

// WebSocket interfaces
type WebSocketConnection interface {
	Send(message interface{}) error
	Close() error
	UserID() string
	AuctionID() string
}

type ConnectionManager interface {
	RegisterConnection(userID, auctionID string, conn WebSocketConnection) error
	UnregisterConnection(userID, auctionID string) error
	GetConnectionsForAuction(auctionID string) []WebSocketConnection
	GetConnectionsForUser(userID string) []WebSocketConnection
	BroadcastToAuction(auctionID string, message interface{}) error
	NotifyUser(userID string, message interface{}) error
}
