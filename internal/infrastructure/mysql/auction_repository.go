package mysql

import (
	"context"
	"database/sql"
	"time"

	"auction-engine/internal/domain"

	_ "github.com/go-sql-driver/mysql"
)

type MySQLAuctionRepository struct {
	db *sql.DB
}

func NewMySQLAuctionRepository(db *sql.DB) *MySQLAuctionRepository {
	return &MySQLAuctionRepository{db: db}
}

const auctionColumns = `id, seller_id, title, starting_price, current_price, min_increment,
        reserve_price, buy_now_price, start_time, end_time, status,
        leading_bidder_id, winner_id, order_id, created_at, updated_at`

func (r *MySQLAuctionRepository) CreateAuction(ctx context.Context, auction *domain.Auction) error {
	query := `
        INSERT INTO auctions (` + auctionColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err := r.db.ExecContext(ctx, query,
		auction.ID, auction.SellerID, auction.Title,
		auction.StartingPrice, auction.CurrentPrice, auction.MinIncrement,
		auction.ReservePrice, auction.BuyNowPrice,
		auction.StartTime, auction.EndTime, int(auction.Status),
		auction.LeadingBidderID, auction.WinnerID, auction.OrderID,
		auction.CreatedAt, auction.UpdatedAt)
	return err
}

func (r *MySQLAuctionRepository) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = ?`

	auction, err := scanAuction(r.db.QueryRowContext(ctx, query, auctionID))
	if err == sql.ErrNoRows {
		return nil, domain.ErrAuctionNotFound
	}
	if err != nil {
		return nil, err
	}
	return auction, nil
}

// ApplyBid raises current_price and appends the bid record in one
// transaction. The price update is conditional on the price the caller
// validated against, so two racing bids can never both apply on top of
// the same observed price.
func (r *MySQLAuctionRepository) ApplyBid(ctx context.Context, bid *domain.Bid, expectedPrice float64) error {
	return WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
            UPDATE auctions
            SET current_price = ?, leading_bidder_id = ?, updated_at = ?
            WHERE id = ? AND current_price = ? AND status = ?
        `, bid.Amount, bid.BidderID, time.Now(), bid.AuctionID, expectedPrice, int(domain.AuctionActive))
		if err != nil {
			return err
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return domain.ErrPriceConflict
		}

		_, err = tx.ExecContext(ctx, `
            INSERT INTO bids (id, auction_id, bidder_id, amount, created_at)
            VALUES (?, ?, ?, ?, ?)
        `, bid.ID, bid.AuctionID, bid.BidderID, bid.Amount, bid.CreatedAt)
		return err
	})
}

// CloseAuction is guarded on the active status so a concurrent or
// repeated sweep cannot regress a terminal auction.
func (r *MySQLAuctionRepository) CloseAuction(ctx context.Context, auctionID, winnerID string) (bool, error) {
	query := `
        UPDATE auctions SET status = ?, winner_id = ?, updated_at = ?
        WHERE id = ? AND status = ?
    `
	res, err := r.db.ExecContext(ctx, query,
		int(domain.AuctionCompleted), winnerID, time.Now(), auctionID, int(domain.AuctionActive))
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *MySQLAuctionRepository) MarkSold(ctx context.Context, auctionID, orderID string) error {
	query := `UPDATE auctions SET order_id = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, orderID, time.Now(), auctionID)
	return err
}

func (r *MySQLAuctionRepository) UpdateAuctionStatus(ctx context.Context, auctionID string, status domain.AuctionStatus) error {
	query := `UPDATE auctions SET status = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, int(status), time.Now(), auctionID)
	return err
}

func (r *MySQLAuctionRepository) FindExpired(ctx context.Context, now time.Time) ([]*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE status = ? AND end_time <= ?`
	return r.queryAuctions(ctx, query, int(domain.AuctionActive), now)
}

func (r *MySQLAuctionRepository) FindPendingToStart(ctx context.Context, now time.Time) ([]*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE status = ? AND start_time <= ?`
	return r.queryAuctions(ctx, query, int(domain.AuctionPending), now)
}

func (r *MySQLAuctionRepository) FindUnsettled(ctx context.Context) ([]*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + `
        FROM auctions
        WHERE status = ? AND winner_id IS NOT NULL AND winner_id != '' AND (order_id IS NULL OR order_id = '')`
	return r.queryAuctions(ctx, query, int(domain.AuctionCompleted))
}

func (r *MySQLAuctionRepository) queryAuctions(ctx context.Context, query string, args ...interface{}) ([]*domain.Auction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var auctions []*domain.Auction
	for rows.Next() {
		auction, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, auction)
	}

	return auctions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuction(row rowScanner) (*domain.Auction, error) {
	var auction domain.Auction
	var status int
	var leadingBidder, winner, orderID sql.NullString

	err := row.Scan(
		&auction.ID, &auction.SellerID, &auction.Title,
		&auction.StartingPrice, &auction.CurrentPrice, &auction.MinIncrement,
		&auction.ReservePrice, &auction.BuyNowPrice,
		&auction.StartTime, &auction.EndTime, &status,
		&leadingBidder, &winner, &orderID,
		&auction.CreatedAt, &auction.UpdatedAt)
	if err != nil {
		return nil, err
	}

	auction.Status = domain.AuctionStatus(status)
	auction.LeadingBidderID = leadingBidder.String
	auction.WinnerID = winner.String
	auction.OrderID = orderID.String
	return &auction, nil
}
