package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"order_engine/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage persists orders in SQLite.
type Storage struct {
	db *gorm.DB
}

var _ domain.OrderRepository = (*Storage)(nil)

// NewStorage creates a new SQLite storage instance at dbPath.
func NewStorage(dbPath string) (*Storage, error) {
	// Ensure directory exists
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return newStorage(db)
}

func newStorage(db *gorm.DB) (*Storage, error) {
	// SQLite serializes writers; one connection avoids "database is locked" under the worker pool.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	// Auto Migration
	if err := db.AutoMigrate(&domain.Order{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close releases the underlying connection.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Order Operations
// ======================================================================================

// Create inserts a new order record.
func (s *Storage) Create(ctx context.Context, order *domain.Order) error {
	if err := s.db.WithContext(ctx).Create(order).Error; err != nil {
		return fmt.Errorf("create order %s: %w", order.ID, err)
	}
	return nil
}

// Update applies a partial update guarded by the expected current status.
// Zero rows affected means another delivery already moved the order.
func (s *Storage) Update(ctx context.Context, id string, upd domain.OrderUpdate) error {
	fields := map[string]interface{}{
		"status": upd.Status,
	}
	if upd.Venue != nil {
		fields["venue"] = *upd.Venue
	}
	if upd.QuotedPrice.Valid {
		fields["quoted_price"] = upd.QuotedPrice
	}
	if upd.ExecutedPrice.Valid {
		fields["executed_price"] = upd.ExecutedPrice
	}
	if upd.SettlementRef != nil {
		fields["settlement_ref"] = *upd.SettlementRef
	}
	if upd.Error != nil {
		fields["error"] = *upd.Error
	}

	res := s.db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("id = ? AND status = ?", id, upd.ExpectedStatus).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update order %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.FindByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: order %s is no longer %s", domain.ErrDuplicateTransition, id, upd.ExpectedStatus)
	}
	return nil
}

// FindByID retrieves an order by id.
func (s *Storage) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var order domain.Order
	err := s.db.WithContext(ctx).First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("find order %s: %w", id, err)
	}
	return &order, nil
}

// ListByStatus returns orders in any of the given statuses, oldest first.
func (s *Storage) ListByStatus(ctx context.Context, limit int, statuses ...domain.OrderStatus) ([]domain.Order, error) {
	var orders []domain.Order
	q := s.db.WithContext(ctx).Where("status IN ?", statuses).Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&orders).Error
	return orders, err
}
