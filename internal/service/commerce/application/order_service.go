package application

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/commerce/domain"
	"storefront/internal/service/commerce/port"
)

// OrderService 处理订单生命周期用例：履约状态推进、支付状态流转、
// 取消和退款。取消与退款会对库存做补偿动作，补偿和订单状态变更
// 在同一个事务内提交。
type OrderService struct {
	uow    domain.UnitOfWork
	orders domain.OrderRepository
	ledger *Ledger
	events port.EventPublisher
	tracer trace.Tracer
}

func NewOrderService(uow domain.UnitOfWork, orders domain.OrderRepository, ledger *Ledger, events port.EventPublisher, tracer trace.Tracer) *OrderService {
	return &OrderService{uow: uow, orders: orders, ledger: ledger, events: events, tracer: tracer}
}

// CancelOrder 取消订单并补偿库存：已确认扣减的行回补总量
// （quantity += qty），只预占未确认的行释放预占。
func (s *OrderService) CancelOrder(ctx context.Context, orderID string) error {
	ctx, span := s.tracer.Start(ctx, "order.Cancel")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	tx, err := s.uow.Begin(ctx)
	if err != nil {
		return err
	}

	order, err := tx.Orders().Get(ctx, orderID)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := order.Cancel(); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := s.compensateInventory(ctx, tx, order); err != nil {
		_ = tx.Rollback()
		span.RecordError(err)
		span.SetStatus(codes.Error, "inventory compensation failed")
		return err
	}

	if err := tx.Orders().Save(ctx, order); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return err
	}

	s.publishCancelled(ctx, order)
	logger.Ctx(ctx).Info().
		Str("order_id", order.ID).
		Str("order_number", order.OrderNumber).
		Msg("order cancelled, inventory compensated")
	return nil
}

// Refund 为已送达且仍在退货窗口内的已支付订单退款，
// 并把每一行的库存回补一次。
func (s *OrderService) Refund(ctx context.Context, orderID string) error {
	ctx, span := s.tracer.Start(ctx, "order.Refund")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	tx, err := s.uow.Begin(ctx)
	if err != nil {
		return err
	}

	order, err := tx.Orders().Get(ctx, orderID)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := order.Refund(time.Now()); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := s.compensateInventory(ctx, tx, order); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Orders().Save(ctx, order); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return err
	}

	logger.Ctx(ctx).Info().
		Str("order_id", order.ID).
		Str("refund_amount", order.Total.StringFixed(2)).
		Msg("order refunded, inventory restocked")
	return nil
}

// compensateInventory 对订单每一行执行补偿。行按商品 ID 升序处理，
// 与结算路径保持同一全局加锁顺序。
func (s *OrderService) compensateInventory(ctx context.Context, tx domain.Tx, order *domain.Order) error {
	txLedger := s.ledger.Bound(tx.Inventory())

	lines := make([]domain.OrderLine, len(order.Lines))
	copy(lines, order.Lines)
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	for _, line := range lines {
		if line.Confirmed {
			// 库存已被物理扣减，执行补偿性回补
			if err := txLedger.Adjust(ctx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		} else {
			// 预占从未确认（不应出现在已提交订单上，但协议允许），释放即可
			if err := txLedger.Release(ctx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}
	}
	return nil
}

// MarkPaid 记录支付成功。
func (s *OrderService) MarkPaid(ctx context.Context, orderID string) error {
	return s.mutate(ctx, "order.MarkPaid", orderID, (*domain.Order).MarkPaid)
}

// MarkPaymentFailed 记录支付失败。
func (s *OrderService) MarkPaymentFailed(ctx context.Context, orderID string) error {
	return s.mutate(ctx, "order.MarkPaymentFailed", orderID, (*domain.Order).MarkPaymentFailed)
}

// MarkProcessing 订单进入拣配。
func (s *OrderService) MarkProcessing(ctx context.Context, orderID string) error {
	return s.mutate(ctx, "order.MarkProcessing", orderID, (*domain.Order).MarkProcessing)
}

// MarkShipped 订单已发货。
func (s *OrderService) MarkShipped(ctx context.Context, orderID string) error {
	return s.mutate(ctx, "order.MarkShipped", orderID, (*domain.Order).MarkShipped)
}

// MarkDelivered 订单已送达。
func (s *OrderService) MarkDelivered(ctx context.Context, orderID string) error {
	return s.mutate(ctx, "order.MarkDelivered", orderID, (*domain.Order).MarkDelivered)
}

// GetOrder 返回订单视图。
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*OrderView, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return ToOrderView(order), nil
}

// ListOrders 返回客户的订单（新的在前），可按履约状态过滤。
func (s *OrderService) ListOrders(ctx context.Context, customerID string, status domain.OrderStatus) ([]*OrderView, error) {
	orders, err := s.orders.ListByCustomer(ctx, customerID, status)
	if err != nil {
		return nil, err
	}
	views := make([]*OrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, ToOrderView(o))
	}
	return views, nil
}

// mutate 加载订单、应用一次状态流转、保存。
func (s *OrderService) mutate(ctx context.Context, spanName, orderID string, fn func(*domain.Order) error) error {
	ctx, span := s.tracer.Start(ctx, spanName)
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if err := fn(order); err != nil {
		span.RecordError(err)
		return err
	}
	return s.orders.Save(ctx, order)
}

func (s *OrderService) publishCancelled(ctx context.Context, order *domain.Order) {
	event := &domain.OrderCancelledEvent{
		EventID:     uuid.New().String(),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		CancelledAt: time.Now(),
	}
	if err := s.events.Publish(ctx, port.EventOrderCancelled, event); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", order.ID).Msg("order cancelled event publish failed")
	}
}
