package domain

import (
	"time"
)

type Auction struct {
	ID              string
	SellerID        string
	Title           string
	StartingPrice   float64
	CurrentPrice    float64
	MinIncrement    float64
	ReservePrice    float64 // zero means no reserve
	BuyNowPrice     float64 // zero means no buy-now path
	StartTime       time.Time
	EndTime         time.Time
	Status          AuctionStatus
	LeadingBidderID string
	WinnerID        string
	OrderID         string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type AuctionStatus int

const (
	AuctionPending AuctionStatus = iota
	AuctionActive
	AuctionCompleted
	AuctionCancelled
)

func (s AuctionStatus) String() string {
	switch s {
	case AuctionPending:
		return "pending"
	case AuctionActive:
		return "active"
	case AuctionCompleted:
		return "completed"
	case AuctionCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status permits no further transitions.
func (s AuctionStatus) Terminal() bool {
	return s == AuctionCompleted || s == AuctionCancelled
}

type Bid struct {
	ID        string
	AuctionID string
	BidderID  string
	Amount    float64
	CreatedAt time.Time
}

// BidResult is returned to the caller of PlaceBid.
type BidResult struct {
	BidID        string  `json:"bid_id"`
	AuctionID    string  `json:"auction_id"`
	CurrentPrice float64 `json:"current_price"`
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// GatewayStatus tracks the checkout-session leg of an order separately
// from the payment outcome, so an order whose gateway call failed stays
// visible for retry instead of looking like an ordinary pending payment.
type GatewayStatus string

const (
	GatewayProvisional GatewayStatus = "provisional"
	GatewayCreated     GatewayStatus = "created"
	GatewayError       GatewayStatus = "error"
)

type OrderItem struct {
	AuctionID string
	SellerID  string
	Title     string
	Quantity  int
	UnitPrice float64
}

func (i OrderItem) Subtotal() float64 {
	return float64(i.Quantity) * i.UnitPrice
}

type Order struct {
	ID            string
	BuyerID       string
	Items         []OrderItem
	TotalAmount   float64
	Session       PaymentSession
	PaymentStatus PaymentStatus
	GatewayStatus GatewayStatus
	CreatedAt     time.Time
	PaidAt        time.Time // zero until the payment outcome arrives
}

// PaymentSession is the embedded gateway checkout descriptor. A fresh
// order carries placeholder values until the gateway call returns.
type PaymentSession struct {
	SessionID  string
	PaymentURL string
	ExpiresAt  time.Time
}

// GatewayEvent is a payment-gateway webhook delivery, at-least-once.
type GatewayEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	SessionID  string    `json:"session_id"`
	Outcome    string    `json:"outcome"`
	OccurredAt time.Time `json:"occurred_at"`
}

const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

type NotificationKind string

const (
	NotifyOutbid        NotificationKind = "outbid"
	NotifyAuctionWon    NotificationKind = "auction_won"
	NotifyAuctionSold   NotificationKind = "auction_sold"
	NotifyAuctionNoSale NotificationKind = "auction_no_sale"
	NotifyPaymentPaid   NotificationKind = "payment_paid"
	NotifyPaymentFailed NotificationKind = "payment_failed"
	NotifyOrderCreated  NotificationKind = "order_created"
)

type Notification struct {
	ID          string
	RecipientID string
	Kind        NotificationKind
	Message     string
	RelatedID   string
	CreatedAt   time.Time
}

type EngineEvent struct {
	Type      EngineEventType `json:"type"`
	AuctionID string          `json:"auction_id"`
	UserID    string          `json:"user_id"`
	Amount    float64         `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

type EngineEventType string

const (
	EventBidAccepted   EngineEventType = "bid_accepted"
	EventAuctionClosed EngineEventType = "auction_closed"
	EventOrderCreated  EngineEventType = "order_created"
	EventPaymentPaid   EngineEventType = "payment_paid"
	EventPaymentFailed EngineEventType = "payment_failed"
	EventNotification  EngineEventType = "notification"
)

// ClosureStats summarizes one sweep of CloseExpiredAuctions.
type ClosureStats struct {
	Processed  int
	WithWinner int
	NoBids     int
	Failed     int
}
