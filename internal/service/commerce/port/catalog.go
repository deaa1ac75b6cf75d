package port

import (
	"context"

	"storefront/internal/service/commerce/domain"
)

// Catalog 是商品目录协作方的出站端口，只读。
type Catalog interface {
	// GetProductSnapshot 返回商品当前的快照。
	// 商品不存在时返回 domain.ErrProductNotFound。
	GetProductSnapshot(ctx context.Context, productID string) (domain.ProductSnapshot, error)
}
