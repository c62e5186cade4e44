package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mkovalev/emarket/internal/models"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// OrderFilter carries the typed listing parameters; zero values mean
// "no constraint".
type OrderFilter struct {
	UserID        *uint
	OrderStatus   models.OrderStatus
	PaymentStatus models.PaymentStatus
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

type OrderRepo struct {
	DB *gorm.DB
}

func (r *OrderRepo) query(f OrderFilter) *gorm.DB {
	q := r.DB.Model(&models.Order{})
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if f.OrderStatus != "" {
		q = q.Where("order_status = ?", f.OrderStatus)
	}
	if f.PaymentStatus != "" {
		q = q.Where("payment_status = ?", f.PaymentStatus)
	}
	if f.CreatedAfter != nil {
		q = q.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		q = q.Where("created_at <= ?", *f.CreatedBefore)
	}
	return q
}

func (r *OrderRepo) Count(ctx context.Context, f OrderFilter) (int64, error) {
	var total int64
	err := r.query(f).WithContext(ctx).Count(&total).Error
	return total, err
}

// List returns one page ordered by id so paging stays stable.
func (r *OrderRepo) List(ctx context.Context, f OrderFilter, offset, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.query(f).WithContext(ctx).
		Preload("Items").
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (r *OrderRepo) Get(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	if err := r.DB.WithContext(ctx).Preload("Items").First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

// Delete removes the order and its items. Referenced products are untouched.
func (r *OrderRepo) Delete(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.Order{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("order_id = ?", id).Delete(&models.OrderItem{}).Error
	})
}

// DecrementStock is a compare-and-decrement: it fails with
// ErrInsufficientStock instead of letting stock go negative. Run it inside
// the placement transaction so a failed item aborts the whole order.
func DecrementStock(tx *gorm.DB, productID uint, qty uint) error {
	res := tx.Model(&models.Product{}).
		Where("id = ? AND stock >= ?", productID, qty).
		UpdateColumn("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientStock
	}
	return nil
}
