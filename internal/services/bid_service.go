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

// bidConflictRetries bounds how often a lost optimistic race is retried
// before the caller gets a final rejection.
const bidConflictRetries = 2

// BidService admits bids against live auctions. Per-auction mutual
// exclusion comes from the conditional price update in the repository,
// not from a held lock; a losing bid re-validates against the fresh
// price and is rejected, never silently overwritten.
type BidService struct {
	auctionRepo domain.AuctionRepository
	stateCache  domain.AuctionStateCache
	notifier    domain.Notifier
	eventPub    domain.EventPublisher
	settlement  *SettlementService
	log         logger.Logger
}

func NewBidService(
	auctionRepo domain.AuctionRepository,
	stateCache domain.AuctionStateCache,
	notifier domain.Notifier,
	eventPub domain.EventPublisher,
	settlement *SettlementService,
	log logger.Logger,
) *BidService {
	return &BidService{
		auctionRepo: auctionRepo,
		stateCache:  stateCache,
		notifier:    notifier,
		eventPub:    eventPub,
		settlement:  settlement,
		log:         log,
	}
}

func (s *BidService) PlaceBid(ctx context.Context, auctionID, bidderID string, amount float64) (*domain.BidResult, error) {
	s.log.Info("Placing bid", "auction_id", auctionID, "bidder_id", bidderID, "amount", amount)

	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	// Cheap pre-check against the status cache; only a cached terminal
	// status is trusted to reject, everything else falls through to the
	// authoritative read.
	if status, err := s.stateCache.GetAuctionStatus(ctx, auctionID); err == nil && status.Terminal() {
		return nil, domain.ErrAuctionNotActive
	}

	var lastMinValid float64

	for attempt := 0; attempt <= bidConflictRetries; attempt++ {
		auction, err := s.auctionRepo.GetAuction(ctx, auctionID)
		if err != nil {
			return nil, err
		}

		if err := validateBid(auction, bidderID, amount, time.Now()); err != nil {
			return nil, err
		}
		lastMinValid = auction.CurrentPrice + auction.MinIncrement

		bid := &domain.Bid{
			ID:        utils.GenerateID("bid"),
			AuctionID: auctionID,
			BidderID:  bidderID,
			Amount:    amount,
			CreatedAt: time.Now(),
		}

		err = s.auctionRepo.ApplyBid(ctx, bid, auction.CurrentPrice)
		if errors.Is(err, domain.ErrPriceConflict) {
			s.log.Debug("Bid lost optimistic race, retrying",
				"auction_id", auctionID, "bidder_id", bidderID, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}

		s.afterBidCommitted(ctx, auction, bid)

		return &domain.BidResult{
			BidID:        bid.ID,
			AuctionID:    auctionID,
			CurrentPrice: bid.Amount,
		}, nil
	}

	// Retries exhausted: somebody else kept winning the race. Re-read
	// once more so the reported minimum reflects the price the rivals
	// drove it to, not the stale value this bid lost against.
	if fresh, err := s.auctionRepo.GetAuction(ctx, auctionID); err == nil {
		lastMinValid = fresh.CurrentPrice + fresh.MinIncrement
	}
	return nil, &domain.BidTooLowError{MinValid: lastMinValid}
}

// BuyNow claims the auction for the buyer at the posted buy-now price
// and hands off to settlement, bypassing the increment rules. The
// status-guarded close is the claim: of two concurrent attempts exactly
// one transitions the auction out of active.
func (s *BidService) BuyNow(ctx context.Context, auctionID, buyerID string) (*domain.Order, error) {
	auction, err := s.auctionRepo.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	if auction.Status != domain.AuctionActive {
		return nil, domain.ErrAuctionNotActive
	}
	if auction.BuyNowPrice <= 0 {
		return nil, domain.ErrBuyNowUnavailable
	}
	if buyerID == auction.SellerID {
		return nil, domain.ErrSelfBid
	}

	claimed, err := s.auctionRepo.CloseAuction(ctx, auctionID, buyerID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, domain.ErrAuctionNotActive
	}

	if err := s.stateCache.SetAuctionStatus(ctx, auctionID, domain.AuctionCompleted); err != nil {
		s.log.Warn("Failed to update status cache", "auction_id", auctionID, "error", err)
	}

	s.log.Info("Buy-now claimed", "auction_id", auctionID, "buyer_id", buyerID,
		"amount", auction.BuyNowPrice)

	return s.settlement.Settle(ctx, auction, buyerID, auction.BuyNowPrice)
}

// validateBid applies the admission checks in order; the first failure
// wins.
func validateBid(auction *domain.Auction, bidderID string, amount float64, now time.Time) error {
	switch auction.Status {
	case domain.AuctionActive:
		// accepting bids
	case domain.AuctionPending:
		return domain.ErrAuctionNotStarted
	default:
		return domain.ErrAuctionNotActive
	}

	if now.Before(auction.StartTime) {
		return domain.ErrAuctionNotStarted
	}
	if now.After(auction.EndTime) {
		return domain.ErrAuctionEnded
	}
	if bidderID == auction.SellerID {
		return domain.ErrSelfBid
	}

	minValid := auction.CurrentPrice + auction.MinIncrement
	if amount < minValid {
		return &domain.BidTooLowError{MinValid: minValid}
	}
	return nil
}

// afterBidCommitted emits the side effects of an accepted bid. The bid
// is durable at this point; everything here is best-effort.
func (s *BidService) afterBidCommitted(ctx context.Context, auction *domain.Auction, bid *domain.Bid) {
	if err := s.eventPub.PublishEngineEvent(ctx, &domain.EngineEvent{
		Type:      domain.EventBidAccepted,
		AuctionID: bid.AuctionID,
		UserID:    bid.BidderID,
		Amount:    bid.Amount,
		Timestamp: bid.CreatedAt,
	}); err != nil {
		s.log.Error("Failed to publish bid event", "auction_id", bid.AuctionID, "error", err)
	}

	// The displaced leader learns they lost the lead. Every earlier
	// bidder already got this exact notification when they were
	// displaced, so nobody is told twice and nobody is missed.
	previousLeader := auction.LeadingBidderID
	if previousLeader != "" && previousLeader != bid.BidderID {
		s.notifier.Notify(ctx, previousLeader, domain.NotifyOutbid,
			fmt.Sprintf("You have been outbid on %q: the price is now %.2f", auction.Title, bid.Amount),
			auction.ID)
	}
}
