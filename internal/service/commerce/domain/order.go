package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus 是订单履约状态机的状态集合。
// PENDING → PROCESSING → SHIPPED → DELIVERED；
// CANCELLED 只能从 PENDING 或 PROCESSING 进入。
type OrderStatus string

const (
	OrderPending    OrderStatus = "PENDING"
	OrderProcessing OrderStatus = "PROCESSING"
	OrderShipped    OrderStatus = "SHIPPED"
	OrderDelivered  OrderStatus = "DELIVERED"
	OrderCancelled  OrderStatus = "CANCELLED"
)

// PaymentStatus 是独立于履约状态的支付子状态。
// PENDING → PAID | FAILED，PAID → REFUNDED。
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// ReturnWindow 是交付后允许退款的时间窗口。
const ReturnWindow = 7 * 24 * time.Hour

// Order 是结算产出的不可变交易记录。
// 行内容和四项金额在创建时一次性固化，之后无论目录如何变动都不再改写；
// 只有 Status / PaymentStatus 两个子状态随生命周期推进。
type Order struct {
	ID                string
	OrderNumber       string
	CustomerID        string
	ShippingAddressID string
	BillingAddressID  string

	Lines []OrderLine

	Subtotal     decimal.Decimal
	ShippingCost decimal.Decimal
	Tax          decimal.Decimal
	Total        decimal.Decimal

	Status        OrderStatus
	PaymentStatus PaymentStatus

	CustomerNotes string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeliveredAt *time.Time
}

// OrderLine 是下单时刻的商品快照，创建后不可变。
// Confirmed 记录该行的预占是否已转为永久扣减，
// 取消订单时据此选择补偿动作（回补库存还是释放预占）。
type OrderLine struct {
	ProductID   string
	ProductName string
	SKU         string
	UnitPrice   decimal.Decimal
	Quantity    int
	Confirmed   bool
}

// LineTotal 返回该行金额。
func (l OrderLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// NewOrder 创建一个待支付的新订单。金额由结算编排器预先算好传入，
// 之后不再重算，保证历史准确性。
func NewOrder(customerID, shippingAddressID, billingAddressID string, lines []OrderLine, subtotal, shipping, tax decimal.Decimal, notes string) (*Order, error) {
	if customerID == "" {
		return nil, fmt.Errorf("order requires a customer")
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	if billingAddressID == "" {
		billingAddressID = shippingAddressID
	}
	now := time.Now()
	return &Order{
		ID:                uuid.New().String(),
		OrderNumber:       newOrderNumber(),
		CustomerID:        customerID,
		ShippingAddressID: shippingAddressID,
		BillingAddressID:  billingAddressID,
		Lines:             lines,
		Subtotal:          subtotal,
		ShippingCost:      shipping,
		Tax:               tax,
		Total:             subtotal.Add(shipping).Add(tax),
		Status:            OrderPending,
		PaymentStatus:     PaymentPending,
		CustomerNotes:     notes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

func newOrderNumber() string {
	return "ORD-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:10])
}

// MarkProcessing 订单进入拣配。
func (o *Order) MarkProcessing() error {
	return o.transition(OrderPending, OrderProcessing)
}

// MarkShipped 订单已发货。
func (o *Order) MarkShipped() error {
	return o.transition(OrderProcessing, OrderShipped)
}

// MarkDelivered 订单已送达，并记录交付时间作为退货窗口的起点。
func (o *Order) MarkDelivered() error {
	if err := o.transition(OrderShipped, OrderDelivered); err != nil {
		return err
	}
	now := time.Now()
	o.DeliveredAt = &now
	return nil
}

// CanCancel 判断订单当前是否可以取消。
func (o *Order) CanCancel() bool {
	return o.Status == OrderPending || o.Status == OrderProcessing
}

// Cancel 取消订单。库存补偿由应用层的订单服务负责，
// 这里只做状态流转。
func (o *Order) Cancel() error {
	if !o.CanCancel() {
		return fmt.Errorf("cannot cancel order in status %s: %w", o.Status, ErrInvalidTransition)
	}
	o.Status = OrderCancelled
	o.UpdatedAt = time.Now()
	return nil
}

// MarkPaid 支付成功。
func (o *Order) MarkPaid() error {
	if o.PaymentStatus != PaymentPending {
		return fmt.Errorf("cannot mark order paid from payment status %s: %w", o.PaymentStatus, ErrInvalidTransition)
	}
	o.PaymentStatus = PaymentPaid
	o.UpdatedAt = time.Now()
	return nil
}

// MarkPaymentFailed 支付失败。
func (o *Order) MarkPaymentFailed() error {
	if o.PaymentStatus != PaymentPending {
		return fmt.Errorf("cannot fail payment from payment status %s: %w", o.PaymentStatus, ErrInvalidTransition)
	}
	o.PaymentStatus = PaymentFailed
	o.UpdatedAt = time.Now()
	return nil
}

// CanRefund 判断订单是否在可退款窗口内：已支付、已送达、
// 且距交付不超过 ReturnWindow。
func (o *Order) CanRefund(now time.Time) (bool, string) {
	if o.PaymentStatus != PaymentPaid {
		return false, fmt.Sprintf("payment status is %s, only paid orders can be refunded", o.PaymentStatus)
	}
	if o.Status != OrderDelivered {
		return false, "only delivered orders can be refunded"
	}
	if o.DeliveredAt == nil || now.Sub(*o.DeliveredAt) > ReturnWindow {
		return false, "return window has expired"
	}
	return true, ""
}

// Refund 标记订单已退款。
func (o *Order) Refund(now time.Time) error {
	if ok, reason := o.CanRefund(now); !ok {
		return fmt.Errorf("cannot refund: %s: %w", reason, ErrInvalidTransition)
	}
	o.PaymentStatus = PaymentRefunded
	o.UpdatedAt = time.Now()
	return nil
}

func (o *Order) transition(from, to OrderStatus) error {
	if o.Status != from {
		return fmt.Errorf("cannot move order from %s to %s: %w", o.Status, to, ErrInvalidTransition)
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	return nil
}
