package domain

import (
	"fmt"
	"time"
)

// InventoryRecord 是单个商品的库存台账，库存真相的唯一权威。
// 不变量: 0 <= Reserved <= Quantity，Available = Quantity - Reserved >= 0。
// 所有修改只能通过 Reserve / Confirm / Release / Adjust 进行，
// 并且必须在按商品持有的互斥锁内执行。
type InventoryRecord struct {
	ProductID         string
	Quantity          int // 总物理库存
	Reserved          int // 被在途购物车/订单占用的数量
	LowStockThreshold int
	UpdatedAt         time.Time
}

// NewInventoryRecord 随商品一起创建，初始库存为零。
func NewInventoryRecord(productID string) *InventoryRecord {
	return &InventoryRecord{
		ProductID:         productID,
		LowStockThreshold: 10,
		UpdatedAt:         time.Now(),
	}
}

// Available 返回客户此刻还可以购买的数量。
func (r *InventoryRecord) Available() int {
	return r.Quantity - r.Reserved
}

// IsLowStock 判断可用库存是否已经跌到阈值之下。
func (r *InventoryRecord) IsLowStock() bool {
	return r.Available() <= r.LowStockThreshold
}

// Reserve 预占库存。可用量不足返回 ErrInsufficientStock。
func (r *InventoryRecord) Reserve(qty int) error {
	if qty <= 0 {
		return fmt.Errorf("reserve quantity must be positive, got %d", qty)
	}
	if err := r.checkInvariant("reserve"); err != nil {
		return err
	}
	if qty > r.Available() {
		return fmt.Errorf("product %s: want %d, available %d: %w", r.ProductID, qty, r.Available(), ErrInsufficientStock)
	}
	r.Reserved += qty
	r.UpdatedAt = time.Now()
	return nil
}

// Confirm 把预占转为永久扣减。没有对应预占的确认是协议违规。
func (r *InventoryRecord) Confirm(qty int) error {
	if qty <= 0 {
		return fmt.Errorf("confirm quantity must be positive, got %d", qty)
	}
	if err := r.checkInvariant("confirm"); err != nil {
		return err
	}
	if r.Reserved < qty {
		return &InvariantViolationError{
			Op:        "confirm",
			ProductID: r.ProductID,
			Detail:    fmt.Sprintf("confirm %d without matching reservation (reserved=%d)", qty, r.Reserved),
		}
	}
	r.Quantity -= qty
	r.Reserved -= qty
	r.UpdatedAt = time.Now()
	return nil
}

// Release 归还未确认的预占。预占量不足时向零钳制，
// 返回 clamped=true 让调用方记录这次记账异常。
func (r *InventoryRecord) Release(qty int) (clamped bool) {
	if qty <= 0 {
		return false
	}
	if r.Reserved < qty {
		r.Reserved = 0
		clamped = true
	} else {
		r.Reserved -= qty
	}
	r.UpdatedAt = time.Now()
	return clamped
}

// Adjust 调整总库存（补货为正，盘亏为负）。
// 调整后的量不得低于当前预占量，否则会打破不变量。
func (r *InventoryRecord) Adjust(delta int) error {
	next := r.Quantity + delta
	if next < 0 || next < r.Reserved {
		return fmt.Errorf("adjust by %d would leave quantity %d below reserved %d", delta, next, r.Reserved)
	}
	r.Quantity = next
	r.UpdatedAt = time.Now()
	return nil
}

// checkInvariant 在每次修改前校验不变量。负库存只可能来自外部直接
// 改动存储，一旦发现按致命错误处理。
func (r *InventoryRecord) checkInvariant(op string) error {
	if r.Quantity < 0 || r.Reserved < 0 || r.Reserved > r.Quantity {
		return &InvariantViolationError{
			Op:        op,
			ProductID: r.ProductID,
			Detail:    fmt.Sprintf("corrupt record: quantity=%d reserved=%d", r.Quantity, r.Reserved),
		}
	}
	return nil
}
