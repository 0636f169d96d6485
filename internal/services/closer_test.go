package services

import (
	"context"
	"testing"
	"time"

	"auction-engine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCloserForTest(store *fakeStore) (*CloserService, *fakeNotifier, *fakeEventPublisher, *fakeOrderRepo, *fakeGateway) {
	notifier := &fakeNotifier{}
	eventPub := &fakeEventPublisher{}
	orders := newFakeOrderRepo()
	gw := &fakeGateway{}

	settlement := NewSettlementService(orders, store, gw, notifier, eventPub,
		CheckoutOptions{Currency: "usd"}, testLog)
	closer := NewCloserService(store, store, settlement, newFakeStateCache(), notifier, eventPub, testLog)
	return closer, notifier, eventPub, orders, gw
}

func expiredAuction(id string) *domain.Auction {
	auction := activeAuction(id)
	auction.EndTime = time.Now().Add(-time.Minute)
	return auction
}

func addBid(store *fakeStore, auctionID, bidderID string, amount float64, at time.Time) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.bids[auctionID] = append(store.bids[auctionID], &domain.Bid{
		ID:        "bid-" + bidderID,
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    amount,
		CreatedAt: at,
	})
}

func TestCloseExpiredAuctionsWithWinner(t *testing.T) {
	store := newFakeStore()
	store.put(expiredAuction("auction-1"))
	addBid(store, "auction-1", "bidder-1", 150, time.Now())

	closer, notifier, eventPub, orders, _ := newCloserForTest(store)

	stats, err := closer.CloseExpiredAuctions(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.ClosureStats{Processed: 1, WithWinner: 1}, stats)

	auction, err := store.GetAuction(context.Background(), "auction-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionCompleted, auction.Status)
	assert.Equal(t, "bidder-1", auction.WinnerID)
	assert.NotEmpty(t, auction.OrderID)

	order, err := orders.GetOrderByAuction(context.Background(), "auction-1")
	require.NoError(t, err)
	assert.Equal(t, "bidder-1", order.BuyerID)
	assert.Equal(t, 150.0, order.TotalAmount)
	assert.Equal(t, domain.PaymentPending, order.PaymentStatus)

	require.Len(t, eventPub.byType(domain.EventAuctionClosed), 1)
	require.Len(t, notifier.byKind(domain.NotifyOrderCreated), 1)
	require.Len(t, notifier.byKind(domain.NotifyAuctionSold), 1)
	assert.Equal(t, "seller-1", notifier.byKind(domain.NotifyAuctionSold)[0].RecipientID)
}

func TestCloseExpiredAuctionsNoBids(t *testing.T) {
	store := newFakeStore()
	store.put(expiredAuction("auction-1"))

	closer, notifier, _, orders, _ := newCloserForTest(store)

	stats, err := closer.CloseExpiredAuctions(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.ClosureStats{Processed: 1, NoBids: 1}, stats)

	auction, err := store.GetAuction(context.Background(), "auction-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionCompleted, auction.Status)
	assert.Empty(t, auction.WinnerID)

	_, err = orders.GetOrderByAuction(context.Background(), "auction-1")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	noSale := notifier.byKind(domain.NotifyAuctionNoSale)
	require.Len(t, noSale, 1)
	assert.Equal(t, "seller-1", noSale[0].RecipientID)
	assert.Contains(t, noSale[0].Message, "no bids")
}

func TestCloseExpiredAuctionsReserveNotMet(t *testing.T) {
	store := newFakeStore()
	auction := expiredAuction("auction-1")
	auction.ReservePrice = 300
	store.put(auction)
	addBid(store, "auction-1", "bidder-1", 150, time.Now())

	closer, notifier, _, orders, _ := newCloserForTest(store)

	stats, err := closer.CloseExpiredAuctions(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.ClosureStats{Processed: 1, NoBids: 1}, stats)

	closed, err := store.GetAuction(context.Background(), "auction-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionCompleted, closed.Status)
	assert.Empty(t, closed.WinnerID, "a below-reserve bid never wins")

	_, err = orders.GetOrderByAuction(context.Background(), "auction-1")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	noSale := notifier.byKind(domain.NotifyAuctionNoSale)
	require.Len(t, noSale, 1)
	assert.Contains(t, noSale[0].Message, "reserve")
}

func TestCloseExpiredAuctionsTieBreakEarliestBid(t *testing.T) {
	store := newFakeStore()
	store.put(expiredAuction("auction-1"))
	base := time.Now()
	addBid(store, "auction-1", "late-bidder", 200, base.Add(time.Second))
	addBid(store, "auction-1", "early-bidder", 200, base)

	closer, _, _, _, _ := newCloserForTest(store)

	_, err := closer.CloseExpiredAuctions(context.Background(), time.Now())
	require.NoError(t, err)

	auction, err := store.GetAuction(context.Background(), "auction-1")
	require.NoError(t, err)
	assert.Equal(t, "early-bidder", auction.WinnerID)
}

func TestCloseExpiredAuctionsRepeatRunIsIdempotent(t *testing.T) {
	store := newFakeStore()
	store.put(expiredAuction("auction-1"))
	addBid(store, "auction-1", "bidder-1", 150, time.Now())

	closer, _, _, orders, gw := newCloserForTest(store)
	ctx := context.Background()

	_, err := closer.CloseExpiredAuctions(ctx, time.Now())
	require.NoError(t, err)

	// The auction is now terminal, so a second pass finds nothing; even
	// a direct re-close of the same auction creates no second order.
	stats, err := closer.CloseExpiredAuctions(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.ClosureStats{}, stats)

	auction, err := store.GetAuction(ctx, "auction-1")
	require.NoError(t, err)
	_, err = closer.closeOne(ctx, auction)
	require.NoError(t, err)

	assert.Len(t, orders.orders, 1)
	assert.Len(t, gw.requests, 1)
}

func TestCloseExpiredAuctionsFailureIsolated(t *testing.T) {
	store := newFakeStore()
	store.put(expiredAuction("auction-bad"))
	addBid(store, "auction-bad", "bidder-1", 150, time.Now())
	store.put(expiredAuction("auction-good"))
	addBid(store, "auction-good", "bidder-2", 175, time.Now())

	closer, _, _, orders, _ := newCloserForTest(store)
	orders.createErr = assert.AnError

	stats, err := closer.CloseExpiredAuctions(context.Background(), time.Now())
	require.NoError(t, err, "batch errors are per-auction, not global")
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 2, stats.Failed, "order creation is down for both")

	// Both auctions are completed with winners and get recovered by the
	// unsettled retry once the order store is back.
	orders.createErr = nil
	recovered, err := closer.RetryUnsettled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, recovered)
}

func TestRetryUnsettledRecoversBuyNowClaim(t *testing.T) {
	store := newFakeStore()
	auction := activeAuction("auction-1")
	auction.BuyNowPrice = 500
	auction.Status = domain.AuctionCompleted
	auction.WinnerID = "buyer-1"
	store.put(auction)

	closer, _, _, orders, _ := newCloserForTest(store)

	recovered, err := closer.RetryUnsettled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	order, err := orders.GetOrderByAuction(context.Background(), "auction-1")
	require.NoError(t, err)
	assert.Equal(t, "buyer-1", order.BuyerID)
	assert.Equal(t, 500.0, order.TotalAmount)
}
