package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

// fakeStore is an in-memory AuctionRepository plus BidRepository with
// the same atomicity guarantees as the MySQL implementation: ApplyBid is
// conditional on the observed price and CloseAuction is status-guarded.
type fakeStore struct {
	mu       sync.Mutex
	auctions map[string]*domain.Auction
	bids     map[string][]*domain.Bid

	// conflictNext forces the next N ApplyBid calls to lose the
	// optimistic race; onConflict, if set, runs under the lock before
	// each forced loss (to simulate the winning rival's write).
	conflictNext int
	onConflict   func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		auctions: make(map[string]*domain.Auction),
		bids:     make(map[string][]*domain.Bid),
	}
}

func (s *fakeStore) put(auction *domain.Auction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *auction
	s.auctions[auction.ID] = &cp
}

func (s *fakeStore) CreateAuction(ctx context.Context, auction *domain.Auction) error {
	s.put(auction)
	return nil
}

func (s *fakeStore) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	auction, ok := s.auctions[auctionID]
	if !ok {
		return nil, domain.ErrAuctionNotFound
	}
	cp := *auction
	return &cp, nil
}

func (s *fakeStore) ApplyBid(ctx context.Context, bid *domain.Bid, expectedPrice float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conflictNext > 0 {
		s.conflictNext--
		if s.onConflict != nil {
			s.onConflict()
		}
		return domain.ErrPriceConflict
	}

	auction, ok := s.auctions[bid.AuctionID]
	if !ok {
		return domain.ErrAuctionNotFound
	}
	if auction.Status != domain.AuctionActive || auction.CurrentPrice != expectedPrice {
		return domain.ErrPriceConflict
	}

	auction.CurrentPrice = bid.Amount
	auction.LeadingBidderID = bid.BidderID
	s.bids[bid.AuctionID] = append(s.bids[bid.AuctionID], bid)
	return nil
}

func (s *fakeStore) CloseAuction(ctx context.Context, auctionID, winnerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	auction, ok := s.auctions[auctionID]
	if !ok {
		return false, domain.ErrAuctionNotFound
	}
	if auction.Status != domain.AuctionActive {
		return false, nil
	}

	auction.Status = domain.AuctionCompleted
	auction.WinnerID = winnerID
	return true, nil
}

func (s *fakeStore) MarkSold(ctx context.Context, auctionID, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	auction, ok := s.auctions[auctionID]
	if !ok {
		return domain.ErrAuctionNotFound
	}
	auction.OrderID = orderID
	return nil
}

func (s *fakeStore) UpdateAuctionStatus(ctx context.Context, auctionID string, status domain.AuctionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	auction, ok := s.auctions[auctionID]
	if !ok {
		return domain.ErrAuctionNotFound
	}
	auction.Status = status
	return nil
}

func (s *fakeStore) FindExpired(ctx context.Context, now time.Time) ([]*domain.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*domain.Auction
	for _, auction := range s.auctions {
		if auction.Status == domain.AuctionActive && auction.EndTime.Before(now) {
			cp := *auction
			expired = append(expired, &cp)
		}
	}
	return expired, nil
}

func (s *fakeStore) FindPendingToStart(ctx context.Context, now time.Time) ([]*domain.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*domain.Auction
	for _, auction := range s.auctions {
		if auction.Status == domain.AuctionPending && !auction.StartTime.After(now) {
			cp := *auction
			pending = append(pending, &cp)
		}
	}
	return pending, nil
}

func (s *fakeStore) FindUnsettled(ctx context.Context) ([]*domain.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var unsettled []*domain.Auction
	for _, auction := range s.auctions {
		if auction.Status == domain.AuctionCompleted && auction.WinnerID != "" && auction.OrderID == "" {
			cp := *auction
			unsettled = append(unsettled, &cp)
		}
	}
	return unsettled, nil
}

func (s *fakeStore) GetBidHistory(ctx context.Context, auctionID string) ([]*domain.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Bid(nil), s.bids[auctionID]...), nil
}

func (s *fakeStore) GetHighestBid(ctx context.Context, auctionID string) (*domain.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bids := s.bids[auctionID]
	if len(bids) == 0 {
		return nil, domain.ErrNoBids
	}

	best := bids[0]
	for _, bid := range bids[1:] {
		if bid.Amount > best.Amount {
			best = bid
		} else if bid.Amount == best.Amount && bid.CreatedAt.Before(best.CreatedAt) {
			best = bid
		}
	}
	cp := *best
	return &cp, nil
}

type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*domain.Order

	createErr error
	// updateSessionFails makes the next N UpdateSession calls fail.
	updateSessionFails int
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[string]*domain.Order)}
}

func (r *fakeOrderRepo) CreateOrder(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createErr != nil {
		return r.createErr
	}
	cp := *order
	cp.Items = append([]domain.OrderItem(nil), order.Items...)
	r.orders[order.ID] = &cp
	return nil
}

func (r *fakeOrderRepo) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	cp := *order
	return &cp, nil
}

func (r *fakeOrderRepo) GetOrderByAuction(ctx context.Context, auctionID string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, order := range r.orders {
		for _, item := range order.Items {
			if item.AuctionID == auctionID {
				cp := *order
				return &cp, nil
			}
		}
	}
	return nil, domain.ErrOrderNotFound
}

func (r *fakeOrderRepo) GetOrderBySession(ctx context.Context, sessionID string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, order := range r.orders {
		if order.Session.SessionID == sessionID {
			cp := *order
			return &cp, nil
		}
	}
	return nil, domain.ErrOrderNotFound
}

func (r *fakeOrderRepo) UpdateSession(ctx context.Context, orderID string, session domain.PaymentSession, status domain.GatewayStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.updateSessionFails > 0 {
		r.updateSessionFails--
		return errors.New("order store unavailable")
	}

	order, ok := r.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	order.Session = session
	order.GatewayStatus = status
	return nil
}

func (r *fakeOrderRepo) MarkPaymentOutcome(ctx context.Context, orderID string, status domain.PaymentStatus, paidAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[orderID]
	if !ok {
		return false, domain.ErrOrderNotFound
	}
	if order.PaymentStatus != domain.PaymentPending {
		return false, nil
	}
	order.PaymentStatus = status
	order.PaidAt = paidAt
	return true, nil
}

func (r *fakeOrderRepo) FindGatewayErrors(ctx context.Context) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stuck []*domain.Order
	for _, order := range r.orders {
		if order.GatewayStatus != domain.GatewayCreated && order.PaymentStatus == domain.PaymentPending {
			cp := *order
			cp.Items = append([]domain.OrderItem(nil), order.Items...)
			stuck = append(stuck, &cp)
		}
	}
	return stuck, nil
}

type fakeStateCache struct {
	mu       sync.Mutex
	statuses map[string]domain.AuctionStatus
}

func newFakeStateCache() *fakeStateCache {
	return &fakeStateCache{statuses: make(map[string]domain.AuctionStatus)}
}

func (c *fakeStateCache) SetAuctionStatus(ctx context.Context, auctionID string, status domain.AuctionStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[auctionID] = status
	return nil
}

func (c *fakeStateCache) GetAuctionStatus(ctx context.Context, auctionID string) (domain.AuctionStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	status, ok := c.statuses[auctionID]
	if !ok {
		return domain.AuctionPending, nil
	}
	return status, nil
}

type sentNotification struct {
	RecipientID string
	Kind        domain.NotificationKind
	Message     string
	RelatedID   string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *fakeNotifier) Notify(ctx context.Context, recipientID string, kind domain.NotificationKind, message, relatedID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{
		RecipientID: recipientID,
		Kind:        kind,
		Message:     message,
		RelatedID:   relatedID,
	})
}

func (n *fakeNotifier) byKind(kind domain.NotificationKind) []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var matched []sentNotification
	for _, s := range n.sent {
		if s.Kind == kind {
			matched = append(matched, s)
		}
	}
	return matched
}

type fakeEventPublisher struct {
	mu     sync.Mutex
	events []*domain.EngineEvent
}

func (p *fakeEventPublisher) PublishEngineEvent(ctx context.Context, event *domain.EngineEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakeEventPublisher) byType(t domain.EngineEventType) []*domain.EngineEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var matched []*domain.EngineEvent
	for _, e := range p.events {
		if e.Type == t {
			matched = append(matched, e)
		}
	}
	return matched
}

type fakeGateway struct {
	mu       sync.Mutex
	requests []domain.CheckoutRequest
	failNext int
}

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, req domain.CheckoutRequest) (*domain.PaymentSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.requests = append(g.requests, req)
	if g.failNext > 0 {
		g.failNext--
		return nil, errors.New("gateway unavailable")
	}

	return &domain.PaymentSession{
		SessionID:  fmt.Sprintf("sess-%d", len(g.requests)),
		PaymentURL: fmt.Sprintf("https://checkout.example.com/pay/sess-%d", len(g.requests)),
		ExpiresAt:  time.Now().Add(30 * time.Minute),
	}, nil
}

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}
func (nopLogger) Debug(msg string, keysAndValues ...interface{}) {}
func (nopLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Fatal(msg string, keysAndValues ...interface{}) {}

var testLog logger.Logger = nopLogger{}
