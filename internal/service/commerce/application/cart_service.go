package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/commerce/domain"
	"storefront/internal/service/commerce/port"
)

// CartService 处理购物车用例。购物车路径完全不加锁：
// 库存检查读的是缓存（可能过期的）快照，只用来给用户快速反馈，
// 权威校验集中在结算路径。
type CartService struct {
	carts     domain.CartRepository
	inventory domain.InventoryRepository
	catalog   port.Catalog
	cache     port.StockCache
	tracer    trace.Tracer
}

func NewCartService(carts domain.CartRepository, inventory domain.InventoryRepository, catalog port.Catalog, cache port.StockCache, tracer trace.Tracer) *CartService {
	return &CartService{
		carts:     carts,
		inventory: inventory,
		catalog:   catalog,
		cache:     cache,
		tracer:    tracer,
	}
}

// AddToCart 向客户的购物车加入商品（已存在时合并数量）。
func (s *CartService) AddToCart(ctx context.Context, customerID, productID string, qty int) (*CartView, error) {
	ctx, span := s.tracer.Start(ctx, "cart.AddToCart")
	defer span.End()
	span.SetAttributes(
		attribute.String("customer.id", customerID),
		attribute.String("product.id", productID),
		attribute.Int("qty", qty),
	)

	snapshot, err := s.catalog.GetProductSnapshot(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !snapshot.Sellable() {
		return nil, fmt.Errorf("product %s: %w", productID, domain.ErrProductUnavailable)
	}

	cart, err := s.carts.GetOrCreate(ctx, customerID)
	if err != nil {
		return nil, err
	}

	// 参考性检查：对合并后的数量做一次非锁定的可用量比对。
	// 结果可能基于过期快照，但能在大多数情况下提前拦截明显超量的请求。
	want := qty
	if line, ok := cart.Line(productID); ok {
		want += line.Quantity
	}
	if available, ok := s.advisoryAvailable(ctx, productID); ok && want > available {
		return nil, fmt.Errorf("product %s: want %d, available %d: %w", productID, want, available, domain.ErrInsufficientStock)
	}

	if err := cart.AddLine(productID, qty); err != nil {
		return nil, err
	}
	if err := s.carts.Save(ctx, cart); err != nil {
		return nil, err
	}
	return s.buildView(ctx, cart)
}

// UpdateLine 把某一行的数量改为 qty，qty 为 0 时删除该行。
func (s *CartService) UpdateLine(ctx context.Context, customerID, productID string, qty int) (*CartView, error) {
	ctx, span := s.tracer.Start(ctx, "cart.UpdateLine")
	defer span.End()

	cart, err := s.carts.GetOrCreate(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if available, ok := s.advisoryAvailable(ctx, productID); ok && qty > available {
		return nil, fmt.Errorf("product %s: want %d, available %d: %w", productID, qty, available, domain.ErrInsufficientStock)
	}
	if err := cart.SetLineQuantity(productID, qty); err != nil {
		return nil, err
	}
	if err := s.carts.Save(ctx, cart); err != nil {
		return nil, err
	}
	return s.buildView(ctx, cart)
}

// RemoveLine 删除购物车中的一行。
func (s *CartService) RemoveLine(ctx context.Context, customerID, productID string) (*CartView, error) {
	ctx, span := s.tracer.Start(ctx, "cart.RemoveLine")
	defer span.End()

	cart, err := s.carts.GetOrCreate(ctx, customerID)
	if err != nil {
		return nil, err
	}
	cart.RemoveLine(productID)
	if err := s.carts.Save(ctx, cart); err != nil {
		return nil, err
	}
	return s.buildView(ctx, cart)
}

// ViewCart 返回购物车当前视图。
func (s *CartService) ViewCart(ctx context.Context, customerID string) (*CartView, error) {
	ctx, span := s.tracer.Start(ctx, "cart.ViewCart")
	defer span.End()

	cart, err := s.carts.GetOrCreate(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return s.buildView(ctx, cart)
}

// advisoryAvailable 先查缓存，未命中回退到库存表读一次。
// 任何一步失败都按"无法判断"处理，不阻塞购物车操作。
func (s *CartService) advisoryAvailable(ctx context.Context, productID string) (int, bool) {
	if available, ok, err := s.cache.GetAvailable(ctx, productID); err == nil && ok {
		return available, true
	}
	rec, err := s.inventory.Get(ctx, productID)
	if err != nil {
		if !errors.Is(err, domain.ErrInventoryNotFound) {
			logger.Ctx(ctx).Warn().Err(err).Str("product_id", productID).Msg("advisory stock check failed")
		}
		return 0, false
	}
	return rec.Available(), true
}

// buildView 组装购物车视图：小计只累加当前可售的行，
// 不可售的行保留并打标，删除与否交给用户决定。
func (s *CartService) buildView(ctx context.Context, cart *domain.Cart) (*CartView, error) {
	view := &CartView{
		CartID:     cart.ID,
		CustomerID: cart.CustomerID,
		TotalItems: cart.TotalItems(),
		Lines:      make([]CartLineView, 0, len(cart.Lines)),
	}

	subtotal := decimal.Zero
	for _, line := range cart.Lines {
		snapshot, err := s.catalog.GetProductSnapshot(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, domain.ErrProductNotFound) {
				view.Lines = append(view.Lines, CartLineView{
					ProductID:   line.ProductID,
					Quantity:    line.Quantity,
					Unavailable: true,
					Reason:      "product no longer exists",
				})
				view.HasUnavailable = true
				continue
			}
			return nil, err
		}
		if !snapshot.Sellable() {
			view.Lines = append(view.Lines, CartLineView{
				ProductID:   line.ProductID,
				ProductName: snapshot.Name,
				SKU:         snapshot.SKU,
				Quantity:    line.Quantity,
				Unavailable: true,
				Reason:      fmt.Sprintf("product is %s", snapshot.Status),
			})
			view.HasUnavailable = true
			continue
		}

		lineTotal := snapshot.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		subtotal = subtotal.Add(lineTotal)
		view.Lines = append(view.Lines, CartLineView{
			ProductID:   line.ProductID,
			ProductName: snapshot.Name,
			SKU:         snapshot.SKU,
			UnitPrice:   snapshot.Price.StringFixed(2),
			Quantity:    line.Quantity,
			LineTotal:   lineTotal.StringFixed(2),
		})
	}
	view.Subtotal = subtotal.StringFixed(2)
	return view, nil
}
