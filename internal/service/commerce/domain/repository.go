package domain

import "context"

// 仓储接口定义在领域层，由基础设施层实现。

// InventoryRepository 持久化库存台账。
type InventoryRepository interface {
	// Get 读取一条库存记录，不存在时返回 ErrInventoryNotFound。
	Get(ctx context.Context, productID string) (*InventoryRecord, error)

	// GetForUpdate 在事务内加行锁读取（SELECT ... FOR UPDATE）。
	// 只允许在 UnitOfWork 事务中调用。
	GetForUpdate(ctx context.Context, productID string) (*InventoryRecord, error)

	// Save 写回一条已存在的记录。
	Save(ctx context.Context, rec *InventoryRecord) error

	// Create 随商品创建零库存记录。
	Create(ctx context.Context, rec *InventoryRecord) error
}

// CartRepository 持久化购物车。购物车在首次访问时惰性创建。
type CartRepository interface {
	GetOrCreate(ctx context.Context, customerID string) (*Cart, error)
	// Save 整体写回购物车（行以替换方式持久化）。
	Save(ctx context.Context, cart *Cart) error
}

// OrderRepository 持久化订单。订单行只追加、创建后不可变。
type OrderRepository interface {
	Create(ctx context.Context, order *Order) error
	Get(ctx context.Context, orderID string) (*Order, error)
	// Save 只允许更新可变的状态字段，不触碰行和金额。
	Save(ctx context.Context, order *Order) error
	ListByCustomer(ctx context.Context, customerID string, status OrderStatus) ([]*Order, error)
}

// UnitOfWork 是显式的事务边界。结算编排器的 PERSISTING 阶段
// 和订单取消的补偿动作都必须在同一个 Tx 内完成，
// 每条退出路径都要显式 Commit 或 Rollback。
type UnitOfWork interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx 暴露绑定到当前事务的仓储视图。
type Tx interface {
	Inventory() InventoryRepository
	Carts() CartRepository
	Orders() OrderRepository

	Commit() error
	Rollback() error
}
