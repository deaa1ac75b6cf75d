package application

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/lock"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/commerce/domain"
	"storefront/internal/service/commerce/port"
)

// Ledger 是库存账本的应用服务，库存的每一次变更都从这里经过。
// 每个操作只作用于一个商品的记录，并在该商品的互斥锁内完成
// read-check-write 序列；锁的持有范围仅覆盖这一小段，绝不跨越
// 网络调用或其他商品的加锁。
type Ledger struct {
	repo      domain.InventoryRepository
	locks     lock.KeyedLocker
	cache     port.StockCache
	events    port.EventPublisher
	lockWait  time.Duration
	tracer    trace.Tracer
	forUpdate bool // 绑定到事务时改用行锁读取
}

func NewLedger(repo domain.InventoryRepository, locks lock.KeyedLocker, cache port.StockCache, events port.EventPublisher, lockWait time.Duration, tracer trace.Tracer) *Ledger {
	return &Ledger{
		repo:     repo,
		locks:    locks,
		cache:    cache,
		events:   events,
		lockWait: lockWait,
		tracer:   tracer,
	}
}

// Bound 返回一个绑定到事务仓储的账本视图。事务内的读取走
// SELECT ... FOR UPDATE，让确认扣减与订单落库处于同一提交边界。
func (l *Ledger) Bound(repo domain.InventoryRepository) *Ledger {
	bound := *l
	bound.repo = repo
	bound.forUpdate = true
	return &bound
}

// Reserve 预占库存。可用量不足返回 ErrInsufficientStock；
// 锁等待超时返回 ErrBusy，调用方可以重试。
func (l *Ledger) Reserve(ctx context.Context, productID string, qty int) error {
	ctx, span := l.tracer.Start(ctx, "ledger.Reserve")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID), attribute.Int("qty", qty))

	err := l.withProductLock(ctx, productID, func(rec *domain.InventoryRecord) error {
		return rec.Reserve(qty)
	})
	if err != nil {
		l.recordFailure(ctx, span, "reserve", productID, err)
	}
	return err
}

// Confirm 把预占转为永久扣减，只在结算的持久化阶段、
// 事务绑定的账本上调用。确认后跌破低水位会发布 LowStock 事件。
func (l *Ledger) Confirm(ctx context.Context, productID string, qty int) error {
	ctx, span := l.tracer.Start(ctx, "ledger.Confirm")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID), attribute.Int("qty", qty))

	var lowStock *domain.LowStockEvent
	err := l.withProductLock(ctx, productID, func(rec *domain.InventoryRecord) error {
		if err := rec.Confirm(qty); err != nil {
			return err
		}
		if rec.IsLowStock() {
			lowStock = &domain.LowStockEvent{
				EventID:   uuid.New().String(),
				ProductID: productID,
				Available: rec.Available(),
				Threshold: rec.LowStockThreshold,
				At:        time.Now(),
			}
		}
		return nil
	})
	if err != nil {
		l.recordFailure(ctx, span, "confirm", productID, err)
		return err
	}
	if lowStock != nil {
		l.publish(ctx, port.EventLowStock, lowStock)
	}
	return nil
}

// Release 归还未确认的预占，用于结算失败和订单取消。
// 预占量不足时钳制到零：这说明上游记账出了问题，记日志并计数。
func (l *Ledger) Release(ctx context.Context, productID string, qty int) error {
	ctx, span := l.tracer.Start(ctx, "ledger.Release")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID), attribute.Int("qty", qty))

	err := l.withProductLock(ctx, productID, func(rec *domain.InventoryRecord) error {
		if clamped := rec.Release(qty); clamped {
			metrics.ReleaseClamps.Inc()
			logger.Ctx(ctx).Warn().
				Str("product_id", productID).
				Int("qty", qty).
				Msg("release clamped: reserved stock was lower than the amount being released")
			span.AddEvent("release clamped")
		}
		return nil
	})
	if err != nil {
		l.recordFailure(ctx, span, "release", productID, err)
	}
	return err
}

// Adjust 调整总库存。补货为正；订单取消的补偿性回补也走这里。
func (l *Ledger) Adjust(ctx context.Context, productID string, delta int) error {
	ctx, span := l.tracer.Start(ctx, "ledger.Adjust")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID), attribute.Int("delta", delta))

	err := l.withProductLock(ctx, productID, func(rec *domain.InventoryRecord) error {
		return rec.Adjust(delta)
	})
	if err != nil {
		l.recordFailure(ctx, span, "adjust", productID, err)
	}
	return err
}

// CreateRecord 随商品创建一条零库存记录。
func (l *Ledger) CreateRecord(ctx context.Context, productID string) error {
	return l.repo.Create(ctx, domain.NewInventoryRecord(productID))
}

// Available 返回某商品当前的可用量。
func (l *Ledger) Available(ctx context.Context, productID string) (int, error) {
	rec, err := l.repo.Get(ctx, productID)
	if err != nil {
		return 0, err
	}
	return rec.Available(), nil
}

// withProductLock 以有界等待获取商品锁，在锁内执行 read-check-write 并写回。
func (l *Ledger) withProductLock(ctx context.Context, productID string, fn func(rec *domain.InventoryRecord) error) error {
	lockCtx, cancel := context.WithTimeout(ctx, l.lockWait)
	defer cancel()

	release, err := l.locks.Acquire(lockCtx, productID)
	if err != nil {
		metrics.LockTimeouts.Inc()
		return domain.ErrBusy
	}
	defer release()

	rec, err := l.load(ctx, productID)
	if err != nil {
		return err
	}
	if err := fn(rec); err != nil {
		return err
	}
	if err := l.repo.Save(ctx, rec); err != nil {
		return err
	}

	// 账本是库存真相，缓存只是购物车的参考视图，回写失败不影响结果
	if cerr := l.cache.SetAvailable(ctx, productID, rec.Available()); cerr != nil {
		logger.Ctx(ctx).Warn().Err(cerr).Str("product_id", productID).Msg("stock cache write-through failed")
	}
	return nil
}

func (l *Ledger) load(ctx context.Context, productID string) (*domain.InventoryRecord, error) {
	if l.forUpdate {
		return l.repo.GetForUpdate(ctx, productID)
	}
	return l.repo.Get(ctx, productID)
}

// recordFailure 统一处理失败的观测：协议违规按致命错误带全量上下文记录。
func (l *Ledger) recordFailure(ctx context.Context, span trace.Span, op, productID string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, op+" failed")

	switch {
	case domain.IsInvariantViolation(err):
		metrics.InvariantViolations.Inc()
		logger.Ctx(ctx).Error().
			Err(err).
			Str("op", op).
			Str("product_id", productID).
			Msg("FATAL: reservation protocol violated")
	case errors.Is(err, domain.ErrBusy):
		logger.Ctx(ctx).Warn().Str("op", op).Str("product_id", productID).Msg("product lock wait timed out")
	case errors.Is(err, domain.ErrInsufficientStock):
		metrics.ReserveConflicts.Inc()
	}
}

func (l *Ledger) publish(ctx context.Context, eventType string, payload any) {
	if err := l.events.Publish(ctx, eventType, payload); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("event", eventType).Msg("event publish failed")
	}
}
