package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"storefront/internal/pkg/lock"
	"storefront/internal/service/commerce/domain"
	"storefront/internal/service/commerce/pricing"
)

// 进程内的仓储与协作方替身，给应用层用例测试使用。
// UnitOfWork 用整库快照模拟事务回滚，行为上与真实事务等价。

type memInventoryRepo struct {
	mu      sync.Mutex
	records map[string]*domain.InventoryRecord
	saveErr error
}

func newMemInventoryRepo() *memInventoryRepo {
	return &memInventoryRepo{records: make(map[string]*domain.InventoryRecord)}
}

func (r *memInventoryRepo) seed(productID string, quantity int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := domain.NewInventoryRecord(productID)
	rec.Quantity = quantity
	r.records[productID] = rec
}

func (r *memInventoryRepo) get(productID string) domain.InventoryRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.records[productID]
}

func (r *memInventoryRepo) Get(_ context.Context, productID string) (*domain.InventoryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[productID]
	if !ok {
		return nil, domain.ErrInventoryNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *memInventoryRepo) GetForUpdate(ctx context.Context, productID string) (*domain.InventoryRecord, error) {
	return r.Get(ctx, productID)
}

func (r *memInventoryRepo) Save(_ context.Context, rec *domain.InventoryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	if _, ok := r.records[rec.ProductID]; !ok {
		return domain.ErrInventoryNotFound
	}
	cp := *rec
	r.records[rec.ProductID] = &cp
	return nil
}

func (r *memInventoryRepo) Create(_ context.Context, rec *domain.InventoryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.ProductID]; ok {
		return fmt.Errorf("inventory record %s already exists", rec.ProductID)
	}
	cp := *rec
	r.records[rec.ProductID] = &cp
	return nil
}

func (r *memInventoryRepo) snapshot() map[string]*domain.InventoryRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := make(map[string]*domain.InventoryRecord, len(r.records))
	for k, v := range r.records {
		cp := *v
		snap[k] = &cp
	}
	return snap
}

func (r *memInventoryRepo) restore(snap map[string]*domain.InventoryRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = snap
}

type memCartRepo struct {
	mu    sync.Mutex
	carts map[string]*domain.Cart
}

func newMemCartRepo() *memCartRepo {
	return &memCartRepo{carts: make(map[string]*domain.Cart)}
}

func (r *memCartRepo) GetOrCreate(_ context.Context, customerID string) (*domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cart, ok := r.carts[customerID]; ok {
		cp := *cart
		cp.Lines = append([]domain.CartLine(nil), cart.Lines...)
		return &cp, nil
	}
	cart := &domain.Cart{ID: "cart-" + customerID, CustomerID: customerID}
	r.carts[customerID] = cart
	cp := *cart
	return &cp, nil
}

func (r *memCartRepo) Save(_ context.Context, cart *domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *cart
	cp.Lines = append([]domain.CartLine(nil), cart.Lines...)
	r.carts[cart.CustomerID] = &cp
	return nil
}

func (r *memCartRepo) snapshot() map[string]*domain.Cart {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := make(map[string]*domain.Cart, len(r.carts))
	for k, v := range r.carts {
		cp := *v
		cp.Lines = append([]domain.CartLine(nil), v.Lines...)
		snap[k] = &cp
	}
	return snap
}

func (r *memCartRepo) restore(snap map[string]*domain.Cart) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.carts = snap
}

type memOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: make(map[string]*domain.Order)}
}

func (r *memOrderRepo) Create(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.ID]; ok {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	cp := *order
	cp.Lines = append([]domain.OrderLine(nil), order.Lines...)
	r.orders[order.ID] = &cp
	return nil
}

func (r *memOrderRepo) Get(_ context.Context, orderID string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	cp := *order
	cp.Lines = append([]domain.OrderLine(nil), order.Lines...)
	return &cp, nil
}

func (r *memOrderRepo) Save(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	stored.Status = order.Status
	stored.PaymentStatus = order.PaymentStatus
	stored.UpdatedAt = order.UpdatedAt
	stored.DeliveredAt = order.DeliveredAt
	return nil
}

func (r *memOrderRepo) ListByCustomer(_ context.Context, customerID string, status domain.OrderStatus) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Order
	for _, o := range r.orders {
		if o.CustomerID != customerID {
			continue
		}
		if status != "" && o.Status != status {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memOrderRepo) snapshot() map[string]*domain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := make(map[string]*domain.Order, len(r.orders))
	for k, v := range r.orders {
		cp := *v
		cp.Lines = append([]domain.OrderLine(nil), v.Lines...)
		snap[k] = &cp
	}
	return snap
}

func (r *memOrderRepo) restore(snap map[string]*domain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = snap
}

// memUnitOfWork 在 Begin 时给三个仓储拍快照，Rollback 时整体还原。
type memUnitOfWork struct {
	inventory *memInventoryRepo
	carts     *memCartRepo
	orders    *memOrderRepo
	beginErr  error
	commitErr error
}

func (u *memUnitOfWork) Begin(context.Context) (domain.Tx, error) {
	if u.beginErr != nil {
		return nil, u.beginErr
	}
	return &memTx{
		uow:         u,
		invSnapshot: u.inventory.snapshot(),
		cartSnap:    u.carts.snapshot(),
		orderSnap:   u.orders.snapshot(),
	}, nil
}

type memTx struct {
	uow         *memUnitOfWork
	invSnapshot map[string]*domain.InventoryRecord
	cartSnap    map[string]*domain.Cart
	orderSnap   map[string]*domain.Order
	done        bool
}

func (t *memTx) Inventory() domain.InventoryRepository { return t.uow.inventory }
func (t *memTx) Carts() domain.CartRepository          { return t.uow.carts }
func (t *memTx) Orders() domain.OrderRepository        { return t.uow.orders }

func (t *memTx) Commit() error {
	if t.done {
		return nil
	}
	if t.uow.commitErr != nil {
		return t.uow.commitErr
	}
	t.done = true
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.uow.inventory.restore(t.invSnapshot)
	t.uow.carts.restore(t.cartSnap)
	t.uow.orders.restore(t.orderSnap)
	return nil
}

type fakeCatalog struct {
	mu       sync.Mutex
	products map[string]domain.ProductSnapshot
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{products: make(map[string]domain.ProductSnapshot)}
}

func (c *fakeCatalog) put(p domain.ProductSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
}

func (c *fakeCatalog) GetProductSnapshot(_ context.Context, productID string) (domain.ProductSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[productID]
	if !ok {
		return domain.ProductSnapshot{}, domain.ErrProductNotFound
	}
	return p, nil
}

type fakeAddressBook struct {
	owned map[string]string // addressID -> customerID
}

func (a *fakeAddressBook) IsOwnedBy(_ context.Context, addressID, customerID string) (bool, error) {
	return a.owned[addressID] == customerID, nil
}

// fakeStockCache 同时扮演库存缓存和结算守卫。
type fakeStockCache struct {
	mu        sync.Mutex
	available map[string]int
	inFlight  map[string]bool
	guardBusy bool
}

func newFakeStockCache() *fakeStockCache {
	return &fakeStockCache{available: make(map[string]int), inFlight: make(map[string]bool)}
}

func (c *fakeStockCache) GetAvailable(_ context.Context, productID string) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.available[productID]
	return v, ok, nil
}

func (c *fakeStockCache) SetAvailable(_ context.Context, productID string, available int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.available[productID] = available
	return nil
}

func (c *fakeStockCache) TryBegin(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.guardBusy || c.inFlight[key] {
		return false, nil
	}
	c.inFlight[key] = true
	return true, nil
}

func (c *fakeStockCache) End(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, key)
	return nil
}

type publishedEvent struct {
	eventType string
	payload   any
}

type fakeEventPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *fakeEventPublisher) Publish(_ context.Context, eventType string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{eventType: eventType, payload: payload})
	return nil
}

func (p *fakeEventPublisher) byType(eventType string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.eventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// env 把全部替身和被测服务装配到一起。
type env struct {
	inventory *memInventoryRepo
	carts     *memCartRepo
	orders    *memOrderRepo
	catalog   *fakeCatalog
	addresses *fakeAddressBook
	cache     *fakeStockCache
	events    *fakeEventPublisher
	uow       *memUnitOfWork

	ledger   *Ledger
	cartSvc  *CartService
	checkout *CheckoutOrchestrator
	orderSvc *OrderService
}

func newEnv() *env {
	e := &env{
		inventory: newMemInventoryRepo(),
		carts:     newMemCartRepo(),
		orders:    newMemOrderRepo(),
		catalog:   newFakeCatalog(),
		addresses: &fakeAddressBook{owned: make(map[string]string)},
		cache:     newFakeStockCache(),
		events:    &fakeEventPublisher{},
	}
	e.uow = &memUnitOfWork{inventory: e.inventory, carts: e.carts, orders: e.orders}

	tracer := noop.NewTracerProvider().Tracer("test")
	policy, err := pricing.NewCELPolicy("", "")
	if err != nil {
		panic(err)
	}

	e.ledger = NewLedger(e.inventory, lock.NewLocalLocker(), e.cache, e.events, 200*time.Millisecond, tracer)
	e.cartSvc = NewCartService(e.carts, e.inventory, e.catalog, e.cache, tracer)
	e.checkout = NewCheckoutOrchestrator(e.uow, e.carts, e.ledger, e.catalog, e.addresses, e.cache, e.events, policy, tracer, 5*time.Second)
	e.orderSvc = NewOrderService(e.uow, e.orders, e.ledger, e.events, tracer)
	return e
}
