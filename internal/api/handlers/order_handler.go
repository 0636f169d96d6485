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

type OrderHandler struct {
	settlement *services.SettlementService
	log        logger.Logger
}

func NewOrderHandler(settlement *services.SettlementService, log logger.Logger) *OrderHandler {
	return &OrderHandler{
		settlement: settlement,
		log:        log,
	}
}

type orderItemResponse struct {
	AuctionID string  `json:"auction_id"`
	Title     string  `json:"title"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type OrderResponse struct {
	OrderID       string              `json:"order_id"`
	BuyerID       string              `json:"buyer_id"`
	Items         []orderItemResponse `json:"items"`
	TotalAmount   float64             `json:"total_amount"`
	PaymentStatus string              `json:"payment_status"`
	PaymentURL    string              `json:"payment_url,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	PaidAt        *time.Time          `json:"paid_at,omitempty"`
}

func (h *OrderHandler) GetOrder(c echo.Context) error {
	order, err := h.settlement.GetOrder(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return c.JSON(http.StatusNotFound, errorBody("order_not_found", err.Error()))
		}
		h.log.Error("Failed to load order", "order_id", c.Param("id"), "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("internal_error", "Something went wrong"))
	}

	resp := OrderResponse{
		OrderID:       order.ID,
		BuyerID:       order.BuyerID,
		TotalAmount:   order.TotalAmount,
		PaymentStatus: string(order.PaymentStatus),
		PaymentURL:    order.Session.PaymentURL,
		CreatedAt:     order.CreatedAt,
	}
	if !order.PaidAt.IsZero() {
		paidAt := order.PaidAt
		resp.PaidAt = &paidAt
	}
	for _, item := range order.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			AuctionID: item.AuctionID,
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	return c.JSON(http.StatusOK, resp)
}
