package infrastructure

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"storefront/internal/service/commerce/domain"
)

// OpenDB 建立 MySQL 连接并迁移表结构。
func OpenDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}
	if err := db.AutoMigrate(&InventoryModel{}, &CartModel{}, &CartLineModel{}, &OrderModel{}, &OrderLineModel{}); err != nil {
		return nil, errors.Wrap(err, "auto migrate")
	}
	return db, nil
}

// GormInventoryRepository 是 InventoryRepository 的 GORM 实现。
type GormInventoryRepository struct {
	db *gorm.DB
}

func NewGormInventoryRepository(db *gorm.DB) *GormInventoryRepository {
	return &GormInventoryRepository{db: db}
}

func (r *GormInventoryRepository) Get(ctx context.Context, productID string) (*domain.InventoryRecord, error) {
	return r.get(ctx, productID, false)
}

// GetForUpdate 以 SELECT ... FOR UPDATE 读取，只在事务内有意义。
func (r *GormInventoryRepository) GetForUpdate(ctx context.Context, productID string) (*domain.InventoryRecord, error) {
	return r.get(ctx, productID, true)
}

func (r *GormInventoryRepository) get(ctx context.Context, productID string, forUpdate bool) (*domain.InventoryRecord, error) {
	tx := r.db.WithContext(ctx)
	if forUpdate {
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var model InventoryModel
	if err := tx.Where("product_id = ?", productID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInventoryNotFound
		}
		return nil, errors.Wrap(err, "query inventory")
	}
	return toDomainInventory(&model), nil
}

func (r *GormInventoryRepository) Save(ctx context.Context, rec *domain.InventoryRecord) error {
	result := r.db.WithContext(ctx).
		Model(&InventoryModel{}).
		Where("product_id = ?", rec.ProductID).
		Updates(map[string]interface{}{
			"quantity":            rec.Quantity,
			"reserved":            rec.Reserved,
			"low_stock_threshold": rec.LowStockThreshold,
			"updated_at":          rec.UpdatedAt,
		})
	if result.Error != nil {
		return errors.Wrap(result.Error, "save inventory")
	}
	if result.RowsAffected == 0 {
		return domain.ErrInventoryNotFound
	}
	return nil
}

func (r *GormInventoryRepository) Create(ctx context.Context, rec *domain.InventoryRecord) error {
	if err := r.db.WithContext(ctx).Create(toInventoryModel(rec)).Error; err != nil {
		return errors.Wrap(err, "create inventory")
	}
	return nil
}

// GormCartRepository 是 CartRepository 的 GORM 实现。
type GormCartRepository struct {
	db *gorm.DB
}

func NewGormCartRepository(db *gorm.DB) *GormCartRepository {
	return &GormCartRepository{db: db}
}

// GetOrCreate 返回客户的购物车，首次访问时惰性创建。
func (r *GormCartRepository) GetOrCreate(ctx context.Context, customerID string) (*domain.Cart, error) {
	var model CartModel
	err := r.db.WithContext(ctx).Preload("Lines").Where("customer_id = ?", customerID).First(&model).Error
	if err == nil {
		return toDomainCart(&model), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(err, "query cart")
	}

	model = CartModel{ID: uuid.New().String(), CustomerID: customerID, UpdatedAt: time.Now()}
	// 并发首次访问时可能撞唯一索引，冲突则重读
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model).Error; err != nil {
		return nil, errors.Wrap(err, "create cart")
	}
	if err := r.db.WithContext(ctx).Preload("Lines").Where("customer_id = ?", customerID).First(&model).Error; err != nil {
		return nil, errors.Wrap(err, "reload cart")
	}
	return toDomainCart(&model), nil
}

// Save 以替换方式写回购物车行。
func (r *GormCartRepository) Save(ctx context.Context, cart *domain.Cart) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&CartModel{}).Where("id = ?", cart.ID).
			Update("updated_at", cart.UpdatedAt).Error; err != nil {
			return errors.Wrap(err, "touch cart")
		}
		if err := tx.Where("cart_id = ?", cart.ID).Delete(&CartLineModel{}).Error; err != nil {
			return errors.Wrap(err, "clear cart lines")
		}
		if lines := toCartLineModels(cart); len(lines) > 0 {
			if err := tx.Create(&lines).Error; err != nil {
				return errors.Wrap(err, "insert cart lines")
			}
		}
		return nil
	})
}

// GormOrderRepository 是 OrderRepository 的 GORM 实现。
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	if err := r.db.WithContext(ctx).Create(toOrderModel(order)).Error; err != nil {
		return errors.Wrap(err, "create order")
	}
	return nil
}

func (r *GormOrderRepository) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	var model OrderModel
	err := r.db.WithContext(ctx).Preload("Lines").Where("id = ?", orderID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, errors.Wrap(err, "query order")
	}
	return toDomainOrder(&model), nil
}

// Save 只更新可变的状态字段；订单行和金额创建后不再改写。
func (r *GormOrderRepository) Save(ctx context.Context, order *domain.Order) error {
	updates := map[string]interface{}{
		"status":         string(order.Status),
		"payment_status": string(order.PaymentStatus),
		"updated_at":     order.UpdatedAt,
		"delivered_at":   order.DeliveredAt,
	}
	result := r.db.WithContext(ctx).Model(&OrderModel{}).Where("id = ?", order.ID).Updates(updates)
	if result.Error != nil {
		return errors.Wrap(result.Error, "save order")
	}
	if result.RowsAffected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *GormOrderRepository) ListByCustomer(ctx context.Context, customerID string, status domain.OrderStatus) ([]*domain.Order, error) {
	query := r.db.WithContext(ctx).Preload("Lines").Where("customer_id = ?", customerID)
	if status != "" {
		query = query.Where("status = ?", string(status))
	}
	var models []OrderModel
	if err := query.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	orders := make([]*domain.Order, 0, len(models))
	for i := range models {
		orders = append(orders, toDomainOrder(&models[i]))
	}
	return orders, nil
}

// GormUnitOfWork 是 UnitOfWork 的 GORM 实现，Begin 返回一个
// 绑定到同一数据库事务的仓储集合。
type GormUnitOfWork struct {
	db *gorm.DB
}

func NewGormUnitOfWork(db *gorm.DB) *GormUnitOfWork {
	return &GormUnitOfWork{db: db}
}

func (u *GormUnitOfWork) Begin(ctx context.Context) (domain.Tx, error) {
	tx := u.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, errors.Wrap(tx.Error, "begin tx")
	}
	return &gormTx{tx: tx}, nil
}

type gormTx struct {
	tx *gorm.DB
}

func (t *gormTx) Inventory() domain.InventoryRepository {
	return NewGormInventoryRepository(t.tx)
}

func (t *gormTx) Carts() domain.CartRepository {
	return NewGormCartRepository(t.tx)
}

func (t *gormTx) Orders() domain.OrderRepository {
	return NewGormOrderRepository(t.tx)
}

func (t *gormTx) Commit() error {
	return t.tx.Commit().Error
}

func (t *gormTx) Rollback() error {
	return t.tx.Rollback().Error
}
