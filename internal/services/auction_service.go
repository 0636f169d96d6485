package services

import (
	"context"
	"errors"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
	"auction-engine/pkg/utils"
)

// AuctionService handles auction intake and activation. Bidding,
// closure and settlement live in their own services.
type AuctionService struct {
	auctionRepo domain.AuctionRepository
	bidRepo     domain.BidRepository
	stateCache  domain.AuctionStateCache
	log         logger.Logger
}

func NewAuctionService(
	auctionRepo domain.AuctionRepository,
	bidRepo domain.BidRepository,
	stateCache domain.AuctionStateCache,
	log logger.Logger,
) *AuctionService {
	return &AuctionService{
		auctionRepo: auctionRepo,
		bidRepo:     bidRepo,
		stateCache:  stateCache,
		log:         log,
	}
}

type CreateAuctionParams struct {
	SellerID      string
	Title         string
	StartingPrice float64
	MinIncrement  float64
	ReservePrice  float64
	BuyNowPrice   float64
	StartTime     time.Time
	EndTime       time.Time
}

func (s *AuctionService) CreateAuction(ctx context.Context, params CreateAuctionParams) (*domain.Auction, error) {
	if params.SellerID == "" || params.Title == "" {
		return nil, errors.New("seller id and title are required")
	}
	if params.StartingPrice <= 0 {
		return nil, errors.New("starting price must be positive")
	}
	if params.MinIncrement <= 0 {
		return nil, errors.New("minimum increment must be positive")
	}
	if !params.EndTime.After(params.StartTime) {
		return nil, errors.New("end time must be after start time")
	}

	status := domain.AuctionPending
	if !params.StartTime.After(time.Now()) {
		status = domain.AuctionActive
	}

	auction := &domain.Auction{
		ID:            utils.GenerateID("auction"),
		SellerID:      params.SellerID,
		Title:         params.Title,
		StartingPrice: params.StartingPrice,
		CurrentPrice:  params.StartingPrice,
		MinIncrement:  params.MinIncrement,
		ReservePrice:  params.ReservePrice,
		BuyNowPrice:   params.BuyNowPrice,
		StartTime:     params.StartTime,
		EndTime:       params.EndTime,
		Status:        status,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}

	if err := s.auctionRepo.CreateAuction(ctx, auction); err != nil {
		return nil, err
	}

	if err := s.stateCache.SetAuctionStatus(ctx, auction.ID, status); err != nil {
		s.log.Warn("Failed to seed status cache", "auction_id", auction.ID, "error", err)
	}

	s.log.Info("Auction created", "auction_id", auction.ID, "seller_id", auction.SellerID,
		"status", status.String())
	return auction, nil
}

func (s *AuctionService) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	return s.auctionRepo.GetAuction(ctx, auctionID)
}

func (s *AuctionService) GetBidHistory(ctx context.Context, auctionID string) ([]*domain.Bid, error) {
	if _, err := s.auctionRepo.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	return s.bidRepo.GetBidHistory(ctx, auctionID)
}

// ActivatePending flips pending auctions whose start time has passed to
// active. Driven from the same sweep as closure.
func (s *AuctionService) ActivatePending(ctx context.Context, now time.Time) (int, error) {
	pending, err := s.auctionRepo.FindPendingToStart(ctx, now)
	if err != nil {
		return 0, err
	}

	activated := 0
	for _, auction := range pending {
		if err := s.auctionRepo.UpdateAuctionStatus(ctx, auction.ID, domain.AuctionActive); err != nil {
			s.log.Error("Failed to activate auction", "auction_id", auction.ID, "error", err)
			continue
		}
		if err := s.stateCache.SetAuctionStatus(ctx, auction.ID, domain.AuctionActive); err != nil {
			s.log.Warn("Failed to update status cache", "auction_id", auction.ID, "error", err)
		}
		activated++
	}

	if activated > 0 {
		s.log.Info("Activated pending auctions", "count", activated)
	}
	return activated, nil
}
