package infrastructure

import (
	"time"

	"github.com/shopspring/decimal"
)

// InventoryModel 对应 inventory 表，每个商品一行。
type InventoryModel struct {
	ProductID         string `gorm:"primaryKey;size:36"`
	Quantity          int    `gorm:"not null"`
	Reserved          int    `gorm:"not null"`
	LowStockThreshold int    `gorm:"not null;default:10"`
	UpdatedAt         time.Time
}

func (InventoryModel) TableName() string {
	return "inventory"
}

// CartModel 对应 carts 表，每个客户最多一行。
type CartModel struct {
	ID         string `gorm:"primaryKey;size:36"`
	CustomerID string `gorm:"size:36;uniqueIndex"`
	UpdatedAt  time.Time

	Lines []CartLineModel `gorm:"foreignKey:CartID;references:ID"`
}

func (CartModel) TableName() string {
	return "carts"
}

// CartLineModel 对应 cart_lines 表，(cart_id, product_id) 唯一。
type CartLineModel struct {
	CartID    string `gorm:"primaryKey;size:36"`
	ProductID string `gorm:"primaryKey;size:36"`
	Quantity  int    `gorm:"not null"`
}

func (CartLineModel) TableName() string {
	return "cart_lines"
}

// OrderModel 对应 orders 表。金额落库后不再重算。
type OrderModel struct {
	ID                string `gorm:"primaryKey;size:36"`
	OrderNumber       string `gorm:"size:50;uniqueIndex"`
	CustomerID        string `gorm:"size:36;index"`
	ShippingAddressID string `gorm:"size:36"`
	BillingAddressID  string `gorm:"size:36"`

	Subtotal     decimal.Decimal `gorm:"type:decimal(10,2)"`
	ShippingCost decimal.Decimal `gorm:"type:decimal(10,2)"`
	Tax          decimal.Decimal `gorm:"type:decimal(10,2)"`
	Total        decimal.Decimal `gorm:"type:decimal(10,2)"`

	Status        string `gorm:"size:20;index"`
	PaymentStatus string `gorm:"size:20"`

	CustomerNotes string `gorm:"type:text"`

	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeliveredAt *time.Time

	Lines []OrderLineModel `gorm:"foreignKey:OrderID;references:ID"`
}

func (OrderModel) TableName() string {
	return "orders"
}

// OrderLineModel 对应 order_lines 表。行是追加写入的，创建后不可变；
// 唯一的例外是 confirmed 位，它在结算事务内与行同时写定。
type OrderLineModel struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	OrderID     string `gorm:"size:36;index"`
	ProductID   string `gorm:"size:36"`
	ProductName string `gorm:"size:255"`
	SKU         string `gorm:"size:100"`

	UnitPrice decimal.Decimal `gorm:"type:decimal(10,2)"`
	Quantity  int             `gorm:"not null"`
	Confirmed bool            `gorm:"not null"`
}

func (OrderLineModel) TableName() string {
	return "order_lines"
}
