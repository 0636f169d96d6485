package handlers

import (
	"errors"
	"net/http"

	"auction-engine/internal/domain"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"

	"github.com/labstack/echo/v4"
)

type BidHandler struct {
	bidService *services.BidService
	log        logger.Logger
}

func NewBidHandler(bidService *services.BidService, log logger.Logger) *BidHandler {
	return &BidHandler{
		bidService: bidService,
		log:        log,
	}
}

type PlaceBidRequest struct {
	BidderID string  `json:"bidder_id"`
	Amount   float64 `json:"amount"`
}

type BuyNowRequest struct {
	BuyerID string `json:"buyer_id"`
}

func (h *BidHandler) PlaceBid(c echo.Context) error {
	auctionID := c.Param("id")

	var req PlaceBidRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid_request", "Invalid request body"))
	}
	if req.BidderID == "" {
		return c.JSON(http.StatusBadRequest, errorBody("invalid_request", "bidder_id is required"))
	}

	result, err := h.bidService.PlaceBid(c.Request().Context(), auctionID, req.BidderID, req.Amount)
	if err != nil {
		return h.bidError(c, err)
	}

	return c.JSON(http.StatusCreated, result)
}

func (h *BidHandler) BuyNow(c echo.Context) error {
	auctionID := c.Param("id")

	var req BuyNowRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid_request", "Invalid request body"))
	}
	if req.BuyerID == "" {
		return c.JSON(http.StatusBadRequest, errorBody("invalid_request", "buyer_id is required"))
	}

	order, err := h.bidService.BuyNow(c.Request().Context(), auctionID, req.BuyerID)
	if err != nil {
		return h.bidError(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"order_id":     order.ID,
		"total_amount": order.TotalAmount,
		"payment_url":  order.Session.PaymentURL,
	})
}

// bidError maps the admission taxonomy onto reason codes; callers get a
// concrete reason, never a generic 500, for anything they can act on.
func (h *BidHandler) bidError(c echo.Context, err error) error {
	var tooLow *domain.BidTooLowError
	if errors.As(err, &tooLow) {
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
			"error":     "bid_too_low",
			"message":   tooLow.Error(),
			"min_valid": tooLow.MinValid,
		})
	}

	switch {
	case errors.Is(err, domain.ErrAuctionNotFound):
		return c.JSON(http.StatusNotFound, errorBody("auction_not_found", err.Error()))
	case errors.Is(err, domain.ErrAuctionNotStarted):
		return c.JSON(http.StatusConflict, errorBody("auction_not_started", err.Error()))
	case errors.Is(err, domain.ErrAuctionEnded):
		return c.JSON(http.StatusConflict, errorBody("auction_ended", err.Error()))
	case errors.Is(err, domain.ErrAuctionNotActive):
		return c.JSON(http.StatusConflict, errorBody("auction_not_active", err.Error()))
	case errors.Is(err, domain.ErrSelfBid):
		return c.JSON(http.StatusForbidden, errorBody("self_bid_forbidden", err.Error()))
	case errors.Is(err, domain.ErrBuyNowUnavailable):
		return c.JSON(http.StatusConflict, errorBody("buy_now_unavailable", err.Error()))
	case errors.Is(err, domain.ErrInvalidAmount):
		return c.JSON(http.StatusBadRequest, errorBody("invalid_amount", err.Error()))
	}

	h.log.Error("Bid request failed", "error", err)
	return c.JSON(http.StatusInternalServerError, errorBody("internal_error", "Something went wrong"))
}

func errorBody(code, message string) map[string]string {
	return map[string]string{"error": code, "message": message}
}
