package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/commerce/domain"
	"storefront/internal/service/commerce/port"
)

// Phase 是结算状态机的阶段。任何阶段失败都转入 Aborted，
// 并完全撤销已经产生的局部效果。
type Phase string

const (
	PhaseValidating   Phase = "VALIDATING"
	PhaseReserving    Phase = "RESERVING"
	PhaseSnapshotting Phase = "SNAPSHOTTING"
	PhasePersisting   Phase = "PERSISTING"
	PhaseCommitted    Phase = "COMMITTED"
	PhaseAborted      Phase = "ABORTED"
)

// CheckoutOrchestrator 原子地把购物车转换为订单：
// 校验 → 预占 → 快照 → 落库 → 清空购物车。
// 外部观察者永远不会看到没有行的订单、没有订单的残留预占、
// 或结算失败却被清空的购物车。
type CheckoutOrchestrator struct {
	uow       domain.UnitOfWork
	carts     domain.CartRepository
	ledger    *Ledger
	catalog   port.Catalog
	addresses port.AddressBook
	guard     port.CheckoutGuard
	events    port.EventPublisher
	pricing   PricingPolicy
	tracer    trace.Tracer
	timeout   time.Duration
}

func NewCheckoutOrchestrator(
	uow domain.UnitOfWork,
	carts domain.CartRepository,
	ledger *Ledger,
	catalog port.Catalog,
	addresses port.AddressBook,
	guard port.CheckoutGuard,
	events port.EventPublisher,
	pricing PricingPolicy,
	tracer trace.Tracer,
	timeout time.Duration,
) *CheckoutOrchestrator {
	return &CheckoutOrchestrator{
		uow:       uow,
		carts:     carts,
		ledger:    ledger,
		catalog:   catalog,
		addresses: addresses,
		guard:     guard,
		events:    events,
		pricing:   pricing,
		tracer:    tracer,
		timeout:   timeout,
	}
}

// checkoutLine 是结算过程中的一行工作数据：购物车行加上商品快照。
type checkoutLine struct {
	productID string
	quantity  int
	snapshot  domain.ProductSnapshot
}

// compensations 是 LIFO 的补偿栈。预占每成功一个商品就注册一条
// 释放补偿，中途失败时全部执行，把账本恢复到结算前的状态。
type compensations struct {
	mu    sync.Mutex
	funcs []func(ctx context.Context)
}

func (c *compensations) add(fn func(ctx context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.funcs = append([]func(context.Context){fn}, c.funcs...)
}

func (c *compensations) trigger(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, fn := range c.funcs {
		fn(ctx)
	}
	c.funcs = nil
}

// Checkout 执行一次完整的结算。返回的错误属于 §错误分类 中的
// 可恢复类别，或被记录后以笼统内部错误示人的协议违规。
func (o *CheckoutOrchestrator) Checkout(ctx context.Context, req *CheckoutRequest) (*domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	ctx, span := o.tracer.Start(ctx, "checkout.Checkout")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", req.CustomerID))

	started := time.Now()
	order, err := o.run(ctx, span, req)
	metrics.CheckoutDuration.Observe(time.Since(started).Seconds())

	if err != nil {
		o.setPhase(span, PhaseAborted)
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkout aborted")
		metrics.CheckoutTotal.WithLabelValues("aborted", abortReason(err)).Inc()
		return nil, err
	}

	o.setPhase(span, PhaseCommitted)
	metrics.CheckoutTotal.WithLabelValues("committed", "").Inc()
	return order, nil
}

func (o *CheckoutOrchestrator) run(ctx context.Context, span trace.Span, req *CheckoutRequest) (*domain.Order, error) {
	// ---- VALIDATING ----
	o.setPhase(span, PhaseValidating)

	cart, err := o.carts.GetOrCreate(ctx, req.CustomerID)
	if err != nil {
		return nil, err
	}
	if len(cart.Lines) == 0 {
		return nil, domain.ErrEmptyCart
	}

	// 幂等保护：同一客户、同一购物车内容的并发结算只放行一个
	guardKey := fmt.Sprintf("checkout:%s:%s", req.CustomerID, cart.Fingerprint())
	ok, err := o.guard.TryBegin(ctx, guardKey)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("checkout guard unavailable, proceeding without idempotency protection")
	} else if !ok {
		return nil, domain.ErrDuplicateCheckout
	} else {
		defer func() {
			if err := o.guard.End(context.WithoutCancel(ctx), guardKey); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Msg("checkout guard cleanup failed")
			}
		}()
	}

	lines, err := o.validate(ctx, cart, req)
	if err != nil {
		return nil, err
	}

	// ---- RESERVING ----
	o.setPhase(span, PhaseReserving)

	comps := &compensations{}
	if err := o.reserve(ctx, lines, comps); err != nil {
		comps.trigger(context.WithoutCancel(ctx))
		return nil, err
	}

	// ---- SNAPSHOTTING ----
	o.setPhase(span, PhaseSnapshotting)

	order, err := o.snapshot(lines, req)
	if err != nil {
		comps.trigger(context.WithoutCancel(ctx))
		return nil, err
	}

	// ---- PERSISTING ----
	// 从这里开始结算不再接受外部取消：要么 COMMITTED 要么 ABORTED。
	o.setPhase(span, PhasePersisting)

	if err := o.persist(context.WithoutCancel(ctx), order, cart); err != nil {
		comps.trigger(context.WithoutCancel(ctx))
		return nil, err
	}

	o.publishCommitted(context.WithoutCancel(ctx), order)
	logger.Ctx(ctx).Info().
		Str("order_id", order.ID).
		Str("order_number", order.OrderNumber).
		Str("customer_id", order.CustomerID).
		Str("total", order.Total.StringFixed(2)).
		Msg("checkout committed")
	return order, nil
}

// validate 加载各行的商品快照、过滤不可售的行、校验地址归属。
// 此阶段不触碰账本。
func (o *CheckoutOrchestrator) validate(ctx context.Context, cart *domain.Cart, req *CheckoutRequest) ([]checkoutLine, error) {
	ctx, span := o.tracer.Start(ctx, "checkout.Validate")
	defer span.End()

	lines := make([]checkoutLine, 0, len(cart.Lines))
	for _, cl := range cart.Lines {
		snapshot, err := o.catalog.GetProductSnapshot(ctx, cl.ProductID)
		if err != nil {
			if errors.Is(err, domain.ErrProductNotFound) {
				continue // 幽灵商品行不参与结算
			}
			return nil, err
		}
		if !snapshot.Sellable() {
			continue
		}
		lines = append(lines, checkoutLine{productID: cl.ProductID, quantity: cl.Quantity, snapshot: snapshot})
	}
	if len(lines) == 0 {
		return nil, domain.ErrEmptyCart
	}

	if err := o.checkAddress(ctx, req.ShippingAddressID, req.CustomerID); err != nil {
		return nil, err
	}
	if req.BillingAddressID != "" && req.BillingAddressID != req.ShippingAddressID {
		if err := o.checkAddress(ctx, req.BillingAddressID, req.CustomerID); err != nil {
			return nil, err
		}
	}

	span.SetAttributes(attribute.Int("lines", len(lines)))
	return lines, nil
}

func (o *CheckoutOrchestrator) checkAddress(ctx context.Context, addressID, customerID string) error {
	if addressID == "" {
		return fmt.Errorf("missing shipping address: %w", domain.ErrInvalidAddressOwnership)
	}
	owned, err := o.addresses.IsOwnedBy(ctx, addressID, customerID)
	if err != nil {
		return err
	}
	if !owned {
		return fmt.Errorf("address %s: %w", addressID, domain.ErrInvalidAddressOwnership)
	}
	return nil
}

// reserve 按商品 ID 升序逐个预占。所有结算路径都遵守同一加锁顺序，
// 这是避免跨结算死锁的关键。任何一个商品预占失败，
// 已经拿到的预占由补偿栈释放（顺序不限）。
func (o *CheckoutOrchestrator) reserve(ctx context.Context, lines []checkoutLine, comps *compensations) error {
	ctx, span := o.tracer.Start(ctx, "checkout.Reserve")
	defer span.End()

	sort.Slice(lines, func(i, j int) bool { return lines[i].productID < lines[j].productID })

	for _, line := range lines {
		line := line
		if err := o.ledger.Reserve(ctx, line.productID, line.quantity); err != nil {
			span.AddEvent("reserve failed, rolling back earlier reservations",
				trace.WithAttributes(attribute.String("product.id", line.productID)))
			return err
		}
		comps.add(func(compCtx context.Context) {
			// 补偿失败说明存在需要人工介入的残留预占，必须记日志
			if rerr := o.ledger.Release(compCtx, line.productID, line.quantity); rerr != nil {
				logger.Ctx(compCtx).Error().
					Err(rerr).
					Str("product_id", line.productID).
					Int("qty", line.quantity).
					Msg("compensation release failed, reservation may be stranded")
			}
		})
	}
	span.AddEvent("all lines reserved")
	return nil
}

// snapshot 把各行的名称、SKU、单价固化成订单行，并算出四项金额。
// 从此订单与目录的后续变动彻底解耦。
func (o *CheckoutOrchestrator) snapshot(lines []checkoutLine, req *CheckoutRequest) (*domain.Order, error) {
	orderLines := make([]domain.OrderLine, 0, len(lines))
	subtotal := decimal.Zero
	for _, line := range lines {
		ol := domain.OrderLine{
			ProductID:   line.productID,
			ProductName: line.snapshot.Name,
			SKU:         line.snapshot.SKU,
			UnitPrice:   line.snapshot.Price,
			Quantity:    line.quantity,
		}
		orderLines = append(orderLines, ol)
		subtotal = subtotal.Add(ol.LineTotal())
	}

	shipping, err := o.pricing.ShippingCost(subtotal)
	if err != nil {
		return nil, fmt.Errorf("shipping policy: %w", err)
	}
	tax, err := o.pricing.Tax(subtotal)
	if err != nil {
		return nil, fmt.Errorf("tax policy: %w", err)
	}

	return domain.NewOrder(req.CustomerID, req.ShippingAddressID, req.BillingAddressID, orderLines, subtotal, shipping, tax, req.CustomerNotes)
}

// persist 在一个显式事务内完成：确认所有预占（行锁按商品 ID 升序获取）、
// 写入订单与订单行、清空购物车。任一步失败整体回滚。
func (o *CheckoutOrchestrator) persist(ctx context.Context, order *domain.Order, cart *domain.Cart) error {
	ctx, span := o.tracer.Start(ctx, "checkout.Persist")
	defer span.End()

	tx, err := o.uow.Begin(ctx)
	if err != nil {
		return err
	}

	txLedger := o.ledger.Bound(tx.Inventory())
	for i := range order.Lines {
		line := &order.Lines[i]
		if err := txLedger.Confirm(ctx, line.ProductID, line.Quantity); err != nil {
			_ = tx.Rollback()
			return err
		}
		line.Confirmed = true
	}

	if err := tx.Orders().Create(ctx, order); err != nil {
		_ = tx.Rollback()
		return err
	}

	cart.Clear()
	if err := tx.Carts().Save(ctx, cart); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return err
	}
	span.AddEvent("order durable, cart cleared")
	return nil
}

func (o *CheckoutOrchestrator) publishCommitted(ctx context.Context, order *domain.Order) {
	event := &domain.OrderCommittedEvent{
		EventID:     uuid.New().String(),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		Total:       order.Total.StringFixed(2),
		CreatedAt:   order.CreatedAt,
	}
	if err := o.events.Publish(ctx, port.EventOrderCommitted, event); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", order.ID).Msg("order committed event publish failed")
	}
}

func (o *CheckoutOrchestrator) setPhase(span trace.Span, phase Phase) {
	span.SetAttributes(attribute.String("checkout.phase", string(phase)))
	span.AddEvent("phase " + string(phase))
}

// abortReason 把错误映射为指标的 reason 标签。
func abortReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, domain.ErrInvalidAddressOwnership):
		return "invalid_address"
	case errors.Is(err, domain.ErrBusy):
		return "busy"
	case errors.Is(err, domain.ErrDuplicateCheckout):
		return "duplicate"
	case domain.IsInvariantViolation(err):
		return "invariant_violation"
	default:
		return "internal"
	}
}
