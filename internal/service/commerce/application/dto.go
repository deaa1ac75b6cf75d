package application

import (
	"github.com/shopspring/decimal"

	"storefront/internal/service/commerce/domain"
)

// CartView 是返回给接口层的购物车视图。
// 不可售的行保留在视图中并打上标记，但不计入小计；
// 是否删除由用户自己决定。
type CartView struct {
	CartID         string         `json:"cartId"`
	CustomerID     string         `json:"customerId"`
	Lines          []CartLineView `json:"lines"`
	Subtotal       string         `json:"subtotal"`
	TotalItems     int            `json:"totalItems"`
	HasUnavailable bool           `json:"hasUnavailable"`
}

type CartLineView struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName,omitempty"`
	SKU         string `json:"sku,omitempty"`
	UnitPrice   string `json:"unitPrice,omitempty"`
	Quantity    int    `json:"quantity"`
	LineTotal   string `json:"lineTotal,omitempty"`
	Unavailable bool   `json:"unavailable,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// CheckoutRequest 是结算用例的输入。
type CheckoutRequest struct {
	CustomerID        string
	ShippingAddressID string
	BillingAddressID  string // 留空时默认与收货地址一致
	CustomerNotes     string
}

// OrderView 是订单的对外投影。
type OrderView struct {
	OrderID       string          `json:"orderId"`
	OrderNumber   string          `json:"orderNumber"`
	CustomerID    string          `json:"customerId"`
	Lines         []OrderLineView `json:"lines"`
	Subtotal      string          `json:"subtotal"`
	ShippingCost  string          `json:"shippingCost"`
	Tax           string          `json:"tax"`
	Total         string          `json:"total"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"paymentStatus"`
}

type OrderLineView struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	SKU         string `json:"sku"`
	UnitPrice   string `json:"unitPrice"`
	Quantity    int    `json:"quantity"`
	LineTotal   string `json:"lineTotal"`
}

// ToOrderView 把订单聚合投影为 DTO。
func ToOrderView(o *domain.Order) *OrderView {
	lines := make([]OrderLineView, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, OrderLineView{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			SKU:         l.SKU,
			UnitPrice:   l.UnitPrice.StringFixed(2),
			Quantity:    l.Quantity,
			LineTotal:   l.LineTotal().StringFixed(2),
		})
	}
	return &OrderView{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		CustomerID:    o.CustomerID,
		Lines:         lines,
		Subtotal:      o.Subtotal.StringFixed(2),
		ShippingCost:  o.ShippingCost.StringFixed(2),
		Tax:           o.Tax.StringFixed(2),
		Total:         o.Total.StringFixed(2),
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
	}
}

// PricingPolicy 计算订单级的运费与税费。
// 具体实现见 pricing 包（CEL 表达式驱动）。
type PricingPolicy interface {
	ShippingCost(subtotal decimal.Decimal) (decimal.Decimal, error)
	Tax(subtotal decimal.Decimal) (decimal.Decimal, error)
}
