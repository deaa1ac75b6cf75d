package port

import "context"

// StockCache 缓存各商品的可用库存，供购物车做参考性检查。
// 缓存读到的值允许过期，真正的强制校验只发生在结算路径。
type StockCache interface {
	// GetAvailable 返回缓存的可用量；缓存未命中时 ok 为 false。
	GetAvailable(ctx context.Context, productID string) (available int, ok bool, err error)

	// SetAvailable 在账本变更后尽力回写缓存。
	SetAvailable(ctx context.Context, productID string, available int) error
}

// CheckoutGuard 为结算请求提供幂等保护。
type CheckoutGuard interface {
	// TryBegin 尝试登记一次结算，同一 key 已在处理中时返回 false。
	TryBegin(ctx context.Context, key string) (bool, error)
	// End 结算结束后清除登记。
	End(ctx context.Context, key string) error
}
