package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

// CloserService transitions expired auctions to completed and hands the
// winner off to settlement. Safe to run concurrently with itself: the
// close is status-guarded and settlement checks for an existing order,
// so a second pass over the same window is a no-op.
type CloserService struct {
	auctionRepo domain.AuctionRepository
	bidRepo     domain.BidRepository
	settlement  *SettlementService
	stateCache  domain.AuctionStateCache
	notifier    domain.Notifier
	eventPub    domain.EventPublisher
	log         logger.Logger
}

func NewCloserService(
	auctionRepo domain.AuctionRepository,
	bidRepo domain.BidRepository,
	settlement *SettlementService,
	stateCache domain.AuctionStateCache,
	notifier domain.Notifier,
	eventPub domain.EventPublisher,
	log logger.Logger,
) *CloserService {
	return &CloserService{
		auctionRepo: auctionRepo,
		bidRepo:     bidRepo,
		settlement:  settlement,
		stateCache:  stateCache,
		notifier:    notifier,
		eventPub:    eventPub,
		log:         log,
	}
}

func (c *CloserService) CloseExpiredAuctions(ctx context.Context, now time.Time) (domain.ClosureStats, error) {
	var stats domain.ClosureStats

	expired, err := c.auctionRepo.FindExpired(ctx, now)
	if err != nil {
		return stats, fmt.Errorf("find expired auctions: %w", err)
	}

	for _, auction := range expired {
		stats.Processed++

		hadWinner, err := c.closeOne(ctx, auction)
		if err != nil {
			// One auction's failure never aborts the batch; it stays
			// expired and the next sweep picks it up again.
			stats.Failed++
			c.log.Error("Failed to close auction", "auction_id", auction.ID, "error", err)
			continue
		}

		if hadWinner {
			stats.WithWinner++
		} else {
			stats.NoBids++
		}
	}

	if stats.Processed > 0 {
		c.log.Info("Closure sweep finished",
			"processed", stats.Processed, "with_winner", stats.WithWinner,
			"no_bids", stats.NoBids, "failed", stats.Failed)
	}

	return stats, nil
}

func (c *CloserService) closeOne(ctx context.Context, auction *domain.Auction) (hadWinner bool, err error) {
	highest, err := c.bidRepo.GetHighestBid(ctx, auction.ID)
	if err != nil && !errors.Is(err, domain.ErrNoBids) {
		return false, err
	}

	noSale := errors.Is(err, domain.ErrNoBids)
	reserveNotMet := !noSale && auction.ReservePrice > 0 && highest.Amount < auction.ReservePrice

	if noSale || reserveNotMet {
		if _, err := c.auctionRepo.CloseAuction(ctx, auction.ID, ""); err != nil {
			return false, err
		}
		c.cacheCompleted(ctx, auction.ID)

		reason := "it received no bids"
		if reserveNotMet {
			reason = "the reserve price was not met"
		}
		c.notifier.Notify(ctx, auction.SellerID, domain.NotifyAuctionNoSale,
			fmt.Sprintf("Your auction %q ended without a sale: %s", auction.Title, reason),
			auction.ID)
		return false, nil
	}

	// The guard makes a repeated close harmless; settlement below is
	// idempotent on its own via the existing-order check, so it runs
	// even when another sweep already marked the auction completed.
	if _, err := c.auctionRepo.CloseAuction(ctx, auction.ID, highest.BidderID); err != nil {
		return false, err
	}
	c.cacheCompleted(ctx, auction.ID)

	if pubErr := c.eventPub.PublishEngineEvent(ctx, &domain.EngineEvent{
		Type:      domain.EventAuctionClosed,
		AuctionID: auction.ID,
		UserID:    highest.BidderID,
		Amount:    highest.Amount,
		Timestamp: time.Now(),
	}); pubErr != nil {
		c.log.Error("Failed to publish closure event", "auction_id", auction.ID, "error", pubErr)
	}

	// The auction is durably completed with its winner at this point.
	// A settlement failure is surfaced for this auction only; the
	// winner is not lost because RetryUnsettled re-runs Settle on the
	// next sweep.
	if _, err := c.settlement.Settle(ctx, auction, highest.BidderID, highest.Amount); err != nil {
		return true, fmt.Errorf("settle auction %s: %w", auction.ID, err)
	}

	return true, nil
}

// RetryUnsettled re-drives settlement for auctions that completed with
// a winner but never got their order (database unavailable at closure
// time, crash between close and settle).
func (c *CloserService) RetryUnsettled(ctx context.Context) (int, error) {
	unsettled, err := c.auctionRepo.FindUnsettled(ctx)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, auction := range unsettled {
		highest, err := c.bidRepo.GetHighestBid(ctx, auction.ID)
		if err != nil {
			// Buy-now claims have no bid rows; the winner and price
			// come from the auction record itself.
			if errors.Is(err, domain.ErrNoBids) && auction.BuyNowPrice > 0 {
				highest = &domain.Bid{
					AuctionID: auction.ID,
					BidderID:  auction.WinnerID,
					Amount:    auction.BuyNowPrice,
				}
			} else {
				c.log.Error("Cannot recover winning bid", "auction_id", auction.ID, "error", err)
				continue
			}
		}

		if _, err := c.settlement.Settle(ctx, auction, highest.BidderID, highest.Amount); err != nil {
			c.log.Warn("Settlement retry failed", "auction_id", auction.ID, "error", err)
			continue
		}
		recovered++
	}

	return recovered, nil
}

func (c *CloserService) cacheCompleted(ctx context.Context, auctionID string) {
	if err := c.stateCache.SetAuctionStatus(ctx, auctionID, domain.AuctionCompleted); err != nil {
		c.log.Warn("Failed to update status cache", "auction_id", auctionID, "error", err)
	}
}
