package domain

import (
	"errors"
	"fmt"
)

// 可恢复错误，直接返回给调用方，由接口层翻译成用户可见的提示。
var (
	// ErrInsufficientStock 表示可用库存不足，调用方可以减量重试或稍后再试。
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrEmptyCart 表示购物车中没有任何可售卖的商品行。
	ErrEmptyCart = errors.New("cart is empty")

	// ErrInvalidAddressOwnership 表示地址不属于发起结算的客户。
	ErrInvalidAddressOwnership = errors.New("address does not belong to customer")

	// ErrBusy 表示商品锁等待超时，属于可重试错误。
	ErrBusy = errors.New("inventory busy, retry later")

	// ErrProductUnavailable 表示商品已下架或删除，作为购物车的警告而非硬失败。
	ErrProductUnavailable = errors.New("product unavailable")

	// ErrDuplicateCheckout 表示同一购物车的结算请求正在处理中。
	ErrDuplicateCheckout = errors.New("duplicate checkout request")

	// ErrInvalidTransition 表示订单或支付状态机不允许请求的流转。
	ErrInvalidTransition = errors.New("invalid state transition")

	ErrInventoryNotFound = errors.New("inventory record not found")
	ErrCartNotFound      = errors.New("cart not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrProductNotFound   = errors.New("product not found")
)

// InvariantViolationError 表示预占协议本身被破坏，例如没有对应预占的确认、
// 或检测到负库存。这是致命错误：账本会带完整上下文记录日志，
// 接口层只向外暴露一个笼统的内部错误。
type InvariantViolationError struct {
	Op        string // reserve / confirm / release / adjust
	ProductID string
	Detail    string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("inventory invariant violated during %s on product %s: %s", e.Op, e.ProductID, e.Detail)
}

// IsInvariantViolation 判断错误链中是否存在协议违规。
func IsInvariantViolation(err error) bool {
	var iv *InvariantViolationError
	return errors.As(err, &iv)
}
