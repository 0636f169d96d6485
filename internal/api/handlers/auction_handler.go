package handlers

import (
	"errors"
	"net/http"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"

	"github.com/labstack/echo/v4"
)

type AuctionHandler struct {
	auctionService *services.AuctionService
	log            logger.Logger
}

func NewAuctionHandler(auctionService *services.AuctionService, log logger.Logger) *AuctionHandler {
	return &AuctionHandler{
		auctionService: auctionService,
		log:            log,
	}
}

type CreateAuctionRequest struct {
	SellerID      string    `json:"seller_id"`
	Title         string    `json:"title"`
	StartingPrice float64   `json:"starting_price"`
	MinIncrement  float64   `json:"min_increment"`
	ReservePrice  float64   `json:"reserve_price"`
	BuyNowPrice   float64   `json:"buy_now_price"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
}

type AuctionResponse struct {
	AuctionID    string    `json:"auction_id"`
	SellerID     string    `json:"seller_id"`
	Title        string    `json:"title"`
	CurrentPrice float64   `json:"current_price"`
	MinIncrement float64   `json:"min_increment"`
	BuyNowPrice  float64   `json:"buy_now_price,omitempty"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Status       string    `json:"status"`
	WinnerID     string    `json:"winner_id,omitempty"`
	OrderID      string    `json:"order_id,omitempty"`
}

func (h *AuctionHandler) CreateAuction(c echo.Context) error {
	var req CreateAuctionRequest
	if err := c.Bind(&req); err != nil {
		h.log.Error("Failed to bind request", "error", err)
		return c.JSON(http.StatusBadRequest, errorBody("invalid_request", "Invalid request body"))
	}

	auction, err := h.auctionService.CreateAuction(c.Request().Context(), services.CreateAuctionParams{
		SellerID:      req.SellerID,
		Title:         req.Title,
		StartingPrice: req.StartingPrice,
		MinIncrement:  req.MinIncrement,
		ReservePrice:  req.ReservePrice,
		BuyNowPrice:   req.BuyNowPrice,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
	})
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid_auction", err.Error()))
	}

	return c.JSON(http.StatusCreated, toAuctionResponse(auction))
}

func (h *AuctionHandler) GetAuction(c echo.Context) error {
	auction, err := h.auctionService.GetAuction(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrAuctionNotFound) {
			return c.JSON(http.StatusNotFound, errorBody("auction_not_found", err.Error()))
		}
		h.log.Error("Failed to load auction", "auction_id", c.Param("id"), "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("internal_error", "Something went wrong"))
	}

	return c.JSON(http.StatusOK, toAuctionResponse(auction))
}

func (h *AuctionHandler) GetBidHistory(c echo.Context) error {
	bids, err := h.auctionService.GetBidHistory(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrAuctionNotFound) {
			return c.JSON(http.StatusNotFound, errorBody("auction_not_found", err.Error()))
		}
		h.log.Error("Failed to load bid history", "auction_id", c.Param("id"), "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("internal_error", "Something went wrong"))
	}

	type bidResponse struct {
		BidID     string    `json:"bid_id"`
		BidderID  string    `json:"bidder_id"`
		Amount    float64   `json:"amount"`
		CreatedAt time.Time `json:"created_at"`
	}

	resp := make([]bidResponse, 0, len(bids))
	for _, bid := range bids {
		resp = append(resp, bidResponse{
			BidID:     bid.ID,
			BidderID:  bid.BidderID,
			Amount:    bid.Amount,
			CreatedAt: bid.CreatedAt,
		})
	}

	return c.JSON(http.StatusOK, resp)
}

func toAuctionResponse(auction *domain.Auction) AuctionResponse {
	return AuctionResponse{
		AuctionID:    auction.ID,
		SellerID:     auction.SellerID,
		Title:        auction.Title,
		CurrentPrice: auction.CurrentPrice,
		MinIncrement: auction.MinIncrement,
		BuyNowPrice:  auction.BuyNowPrice,
		StartTime:    auction.StartTime,
		EndTime:      auction.EndTime,
		Status:       auction.Status.String(),
		WinnerID:     auction.WinnerID,
		OrderID:      auction.OrderID,
	}
}
