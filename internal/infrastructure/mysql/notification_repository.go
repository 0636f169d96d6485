package mysql

import (
	"context"
	"database/sql"

	"auction-engine/internal/domain"
)

type MySQLNotificationRepository struct {
	db *sql.DB
}

func NewMySQLNotificationRepository(db *sql.DB) *MySQLNotificationRepository {
	return &MySQLNotificationRepository{db: db}
}

func (r *MySQLNotificationRepository) SaveNotification(ctx context.Context, n *domain.Notification) error {
	query := `
        INSERT INTO notifications (id, recipient_id, kind, message, related_id, created_at)
        VALUES (?, ?, ?, ?, ?, ?)
    `
	_, err := r.db.ExecContext(ctx, query,
		n.ID, n.RecipientID, string(n.Kind), n.Message, n.RelatedID, n.CreatedAt)
	return err
}
