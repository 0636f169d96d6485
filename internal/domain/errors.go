package domain

import (
	"errors"
	"fmt"
)

// Validation errors, rejected synchronously and never retried.
var (
	ErrAuctionNotFound   = errors.New("auction not found")
	ErrAuctionNotActive  = errors.New("auction is not active")
	ErrAuctionNotStarted = errors.New("auction has not started yet")
	ErrAuctionEnded      = errors.New("auction has already ended")
	ErrSelfBid           = errors.New("seller cannot bid on own auction")
	ErrBuyNowUnavailable = errors.New("buy-now is not available for this auction")
	ErrInvalidAmount     = errors.New("bid amount must be positive")
)

// Conflict and lookup errors.
var (
	// ErrPriceConflict means the conditional price update lost an
	// optimistic race; the caller re-reads and retries.
	ErrPriceConflict = errors.New("auction price changed concurrently")
	ErrNoBids        = errors.New("no bids found for auction")
	ErrOrderNotFound = errors.New("order not found")
)

// BidTooLowError carries the minimum amount that would currently be accepted.
type BidTooLowError struct {
	MinValid float64
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid too low: minimum valid bid is %.2f", e.MinValid)
}
