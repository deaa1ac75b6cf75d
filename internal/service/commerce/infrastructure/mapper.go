package infrastructure

import (
	"storefront/internal/service/commerce/domain"
)

// Mapper 负责在数据库模型与领域模型之间转换，
// 让领域层不感知 GORM 标签和表结构。

func toDomainInventory(m *InventoryModel) *domain.InventoryRecord {
	return &domain.InventoryRecord{
		ProductID:         m.ProductID,
		Quantity:          m.Quantity,
		Reserved:          m.Reserved,
		LowStockThreshold: m.LowStockThreshold,
		UpdatedAt:         m.UpdatedAt,
	}
}

func toInventoryModel(r *domain.InventoryRecord) *InventoryModel {
	return &InventoryModel{
		ProductID:         r.ProductID,
		Quantity:          r.Quantity,
		Reserved:          r.Reserved,
		LowStockThreshold: r.LowStockThreshold,
		UpdatedAt:         r.UpdatedAt,
	}
}

func toDomainCart(m *CartModel) *domain.Cart {
	lines := make([]domain.CartLine, 0, len(m.Lines))
	for _, l := range m.Lines {
		lines = append(lines, domain.CartLine{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return &domain.Cart{
		ID:         m.ID,
		CustomerID: m.CustomerID,
		Lines:      lines,
		UpdatedAt:  m.UpdatedAt,
	}
}

func toCartLineModels(c *domain.Cart) []CartLineModel {
	lines := make([]CartLineModel, 0, len(c.Lines))
	for _, l := range c.Lines {
		lines = append(lines, CartLineModel{CartID: c.ID, ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return lines
}

func toDomainOrder(m *OrderModel) *domain.Order {
	lines := make([]domain.OrderLine, 0, len(m.Lines))
	for _, l := range m.Lines {
		lines = append(lines, domain.OrderLine{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			SKU:         l.SKU,
			UnitPrice:   l.UnitPrice,
			Quantity:    l.Quantity,
			Confirmed:   l.Confirmed,
		})
	}
	return &domain.Order{
		ID:                m.ID,
		OrderNumber:       m.OrderNumber,
		CustomerID:        m.CustomerID,
		ShippingAddressID: m.ShippingAddressID,
		BillingAddressID:  m.BillingAddressID,
		Lines:             lines,
		Subtotal:          m.Subtotal,
		ShippingCost:      m.ShippingCost,
		Tax:               m.Tax,
		Total:             m.Total,
		Status:            domain.OrderStatus(m.Status),
		PaymentStatus:     domain.PaymentStatus(m.PaymentStatus),
		CustomerNotes:     m.CustomerNotes,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
		DeliveredAt:       m.DeliveredAt,
	}
}

func toOrderModel(o *domain.Order) *OrderModel {
	lines := make([]OrderLineModel, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, OrderLineModel{
			OrderID:     o.ID,
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			SKU:         l.SKU,
			UnitPrice:   l.UnitPrice,
			Quantity:    l.Quantity,
			Confirmed:   l.Confirmed,
		})
	}
	return &OrderModel{
		ID:                o.ID,
		OrderNumber:       o.OrderNumber,
		CustomerID:        o.CustomerID,
		ShippingAddressID: o.ShippingAddressID,
		BillingAddressID:  o.BillingAddressID,
		Subtotal:          o.Subtotal,
		ShippingCost:      o.ShippingCost,
		Tax:               o.Tax,
		Total:             o.Total,
		Status:            string(o.Status),
		PaymentStatus:     string(o.PaymentStatus),
		CustomerNotes:     o.CustomerNotes,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
		DeliveredAt:       o.DeliveredAt,
		Lines:             lines,
	}
}
