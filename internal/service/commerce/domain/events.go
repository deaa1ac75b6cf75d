package domain

import "time"

// 领域事件在订单状态持久化之后异步发布到 Kafka。
// 发布失败只记日志，不影响主流程。

// OrderCommittedEvent 在结算成功提交后发布。
type OrderCommittedEvent struct {
	EventID     string    `json:"eventId"`
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	CustomerID  string    `json:"customerId"`
	Total       string    `json:"total"`
	CreatedAt   time.Time `json:"createdAt"`
}

// OrderCancelledEvent 在订单取消并完成库存补偿后发布。
type OrderCancelledEvent struct {
	EventID     string    `json:"eventId"`
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	CustomerID  string    `json:"customerId"`
	CancelledAt time.Time `json:"cancelledAt"`
}

// LowStockEvent 在确认扣减使可用库存跌破阈值时发布。
type LowStockEvent struct {
	EventID   string    `json:"eventId"`
	ProductID string    `json:"productId"`
	Available int       `json:"available"`
	Threshold int       `json:"threshold"`
	At        time.Time `json:"at"`
}
