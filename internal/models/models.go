package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryElectronics Category = "Electronics"
	CategoryArts        Category = "Arts"
	CategoryClothes     Category = "Clothes"
	CategoryFootWears   Category = "Foot Wears"
	CategoryHome        Category = "Home"
	CategoryFood        Category = "Food"
	CategoryCosmetics   Category = "Cosmetics"
	CategoryKitchen     Category = "Kitchen"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryElectronics, CategoryArts, CategoryClothes, CategoryFootWears,
		CategoryHome, CategoryFood, CategoryCosmetics, CategoryKitchen:
		return true
	}
	return false
}

type OrderStatus string

const (
	OrderProcessing OrderStatus = "Processing"
	OrderShipped    OrderStatus = "Shipped"
	OrderDelivered  OrderStatus = "Delivered"
)

func (s OrderStatus) Valid() bool {
	return s == OrderProcessing || s == OrderShipped || s == OrderDelivered
}

type PaymentStatus string

const (
	PaymentPaid   PaymentStatus = "Paid"
	PaymentUnpaid PaymentStatus = "Unpaid"
)

func (s PaymentStatus) Valid() bool {
	return s == PaymentPaid || s == PaymentUnpaid
}

type PaymentMode string

const (
	PaymentCOD  PaymentMode = "COD"
	PaymentCard PaymentMode = "Card"
)

func (m PaymentMode) Valid() bool {
	return m == PaymentCOD || m == PaymentCard
}

type User struct {
	ID                  uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	FirstName           string     `gorm:"not null"                 json:"first_name"`
	LastName            string     `gorm:"not null"                 json:"last_name"`
	Email               string     `gorm:"unique;not null"          json:"email"`
	PasswordHash        string     `gorm:"not null"                 json:"-"`
	Role                string     `gorm:"not null;default:user"    json:"role"`
	ResetPasswordToken  string     `gorm:"index"                    json:"-"`
	ResetPasswordExpiry *time.Time `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
}

type RefreshToken struct {
	ID        uint   `gorm:"primaryKey"          json:"id"`
	Token     string `gorm:"unique;not null"     json:"token"`
	UserID    uint   `gorm:"index;not null"      json:"user_id"`
	ExpiresAt int64  `gorm:"not null"            json:"expires_at"`
	Revoked   bool   `gorm:"default:false"       json:"revoked"`
}

type Product struct {
	ID          uint            `gorm:"primaryKey;autoIncrement"            json:"id"`
	Name        string          `gorm:"not null"                            json:"name"`
	Description string          `gorm:"not null"                            json:"description"`
	Price       decimal.Decimal `gorm:"type:numeric(7,2);not null"          json:"price"`
	Brand       string          `gorm:"not null"                            json:"brand"`
	Category    Category        `gorm:"not null"                            json:"category"`
	Rating      float64         `gorm:"not null;default:0"                  json:"rating"`
	Stock       int             `gorm:"not null;default:0;check:stock >= 0" json:"stock"`
	UserID      *uint           `gorm:"index"                               json:"user_id"`
	Images      []ProductImage  `gorm:"foreignKey:ProductID"                json:"images"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type ProductImage struct {
	ID        uint   `gorm:"primaryKey"  json:"id"`
	ProductID *uint  `gorm:"index"       json:"product_id"`
	Path      string `gorm:"not null"    json:"-"`
	URL       string `gorm:"not null"    json:"url"`
}

// One review per (product, user); the composite index backstops the
// read-then-write upsert in the handler.
type ProductReview struct {
	ID        uint      `gorm:"primaryKey"                                 json:"id"`
	ProductID uint      `gorm:"not null;uniqueIndex:idx_review_prod_user"  json:"product_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_review_prod_user"  json:"user_id"`
	Rating    int       `gorm:"not null;check:rating >= 1 AND rating <= 5" json:"rating"`
	Review    string    `gorm:"not null"                                   json:"review"`
	CreatedAt time.Time `json:"created_at"`
}

type Order struct {
	ID            uint            `gorm:"primaryKey;autoIncrement"    json:"id"`
	UserID        *uint           `gorm:"index"                       json:"user_id"`
	TotalAmount   decimal.Decimal `gorm:"type:numeric(9,2);not null"  json:"total_amount"`
	Area          string          `gorm:"not null"                    json:"area"`
	City          string          `gorm:"not null"                    json:"city"`
	State         string          `gorm:"not null"                    json:"state"`
	Country       string          `gorm:"not null"                    json:"country"`
	ZipCode       string          `gorm:"not null"                    json:"zip_code"`
	PhoneNo       string          `gorm:"not null"                    json:"phone_no"`
	PaymentStatus PaymentStatus   `gorm:"not null;default:Unpaid"     json:"payment_status"`
	PaymentMode   PaymentMode     `gorm:"not null;default:COD"        json:"payment_mode"`
	OrderStatus   OrderStatus     `gorm:"not null;default:Processing" json:"order_status"`
	Items         []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"order_items"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Name, price and image are snapshots taken at purchase time; a later
// catalog change must not alter an already placed order.
type OrderItem struct {
	ID        uint            `gorm:"primaryKey"                            json:"id"`
	OrderID   uint            `gorm:"index;not null"                        json:"order_id"`
	ProductID *uint           `json:"product_id"`
	Name      string          `gorm:"not null"                              json:"name"`
	Price     decimal.Decimal `gorm:"type:numeric(7,2);not null"            json:"price"`
	Image     string          `json:"image"`
	Quantity  uint            `gorm:"not null;default:1;check:quantity > 0" json:"quantity"`
}

// WebhookEvent records gateway event ids already materialized, so a retried
// delivery acknowledges instead of creating a second order.
type WebhookEvent struct {
	ID         uint      `gorm:"primaryKey"      json:"id"`
	EventID    string    `gorm:"unique;not null" json:"event_id"`
	ReceivedAt time.Time `json:"received_at"`
}
