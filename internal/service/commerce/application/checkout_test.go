package application

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/service/commerce/domain"
	"storefront/internal/service/commerce/port"
)

func activeProduct(id, name string, price string) domain.ProductSnapshot {
	return domain.ProductSnapshot{
		ID:     id,
		Name:   name,
		SKU:    "SKU-" + id,
		Price:  decimal.RequireFromString(price),
		Status: domain.ProductActive,
	}
}

func checkoutReq(customerID string) *CheckoutRequest {
	return &CheckoutRequest{CustomerID: customerID, ShippingAddressID: "addr-" + customerID}
}

// seedCustomer 准备一个有地址、有购物车内容的客户。
func (e *env) seedCustomer(t *testing.T, customerID string, lines map[string]int) {
	t.Helper()
	e.addresses.owned["addr-"+customerID] = customerID
	cart, err := e.carts.GetOrCreate(context.Background(), customerID)
	require.NoError(t, err)
	for pid, qty := range lines {
		require.NoError(t, cart.AddLine(pid, qty))
	}
	require.NoError(t, e.carts.Save(context.Background(), cart))
}

func TestCheckoutHappyPath(t *testing.T) {
	e := newEnv()
	e.catalog.put(activeProduct("p1", "Widget", "20.00"))
	e.catalog.put(activeProduct("p2", "Gadget", "15.00"))
	e.inventory.seed("p1", 10)
	e.inventory.seed("p2", 50)
	e.seedCustomer(t, "cust-1", map[string]int{"p1": 2, "p2": 1})

	order, err := e.checkout.Checkout(context.Background(), checkoutReq("cust-1"))
	require.NoError(t, err)

	assert.Equal(t, domain.OrderPending, order.Status)
	assert.Equal(t, domain.PaymentPending, order.PaymentStatus)
	// 小计 55，不满 100 收 10 运费，税 5.50
	assert.Equal(t, "55.00", order.Subtotal.StringFixed(2))
	assert.Equal(t, "10.00", order.ShippingCost.StringFixed(2))
	assert.Equal(t, "5.50", order.Tax.StringFixed(2))
	assert.Equal(t, "70.50", order.Total.StringFixed(2))

	// 库存已永久扣减，预占清零
	p1 := e.inventory.get("p1")
	assert.Equal(t, 8, p1.Quantity)
	assert.Equal(t, 0, p1.Reserved)
	p2 := e.inventory.get("p2")
	assert.Equal(t, 49, p2.Quantity)

	// 每一行都带着确认标记落库
	stored, err := e.orders.Get(context.Background(), order.ID)
	require.NoError(t, err)
	for _, line := range stored.Lines {
		assert.True(t, line.Confirmed)
	}

	// 购物车被清空
	cart, err := e.carts.GetOrCreate(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.Empty(t, cart.Lines)

	require.Len(t, e.events.byType(port.EventOrderCommitted), 1)
}

func TestCheckoutFreeShippingOver100(t *testing.T) {
	e := newEnv()
	e.catalog.put(activeProduct("p1", "Widget", "50.01"))
	e.inventory.seed("p1", 10)
	e.seedCustomer(t, "cust-1", map[string]int{"p1": 2})

	order, err := e.checkout.Checkout(context.Background(), checkoutReq("cust-1"))
	require.NoError(t, err)
	assert.Equal(t, "100.02", order.Subtotal.StringFixed(2))
	assert.Equal(t, "0.00", order.ShippingCost.StringFixed(2))
}

func TestCheckoutConcurrentOversell(t *testing.T) {
	e := newEnv()
	e.catalog.put(activeProduct("p1", "Widget", "20.00"))
	e.inventory.seed("p1", 2)
	e.seedCustomer(t, "cust-a", map[string]int{"p1": 2})
	e.seedCustomer(t, "cust-b", map[string]int{"p1": 2})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, cust := range []string{"cust-a", "cust-b"} {
		wg.Add(1)
		go func(i int, cust string) {
			defer wg.Done()
			_, errs[i] = e.checkout.Checkout(context.Background(), checkoutReq(cust))
		}(i, cust)
	}
	wg.Wait()

	// 两个客户抢同样的 2 件库存，必须恰好一人成功
	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, domain.ErrInsufficientStock)
		}
	}
	assert.Equal(t, 1, succeeded)

	rec := e.inventory.get("p1")
	assert.Equal(t, 0, rec.Quantity)
	assert.Equal(t, 0, rec.Reserved)
}

func TestCheckoutPartialReserveRollsBack(t *testing.T) {
	e := newEnv()
	e.catalog.put(activeProduct("p1", "Widget", "20.00"))
	e.catalog.put(activeProduct("p2", "Gadget", "15.00"))
	e.inventory.seed("p1", 10)
	e.inventory.seed("p2", 1)
	e.seedCustomer(t, "cust-1", map[string]int{"p1": 2, "p2": 5})

	_, err := e.checkout.Checkout(context.Background(), checkoutReq("cust-1"))
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	// p1 拿到的预占必须被补偿释放，账本回到结算前
	p1 := e.inventory.get("p1")
	assert.Equal(t, 10, p1.Quantity)
	assert.Equal(t, 0, p1.Reserved)
	p2 := e.inventory.get("p2")
	assert.Equal(t, 1, p2.Quantity)
	assert.Equal(t, 0, p2.Reserved)

	// 失败的结算不得动购物车
	cart, err := e.carts.GetOrCreate(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.Len(t, cart.Lines, 2)
}

func TestCheckoutEmptyCart(t *testing.T) {
	e := newEnv()
	e.addresses.owned["addr-cust-1"] = "cust-1"

	_, err := e.checkout.Checkout(context.Background(), checkoutReq("cust-1"))
	assert.ErrorIs(t, err, domain.ErrEmptyCart)
}

func TestCheckoutAllLinesUnsellable(t *testing.T) {
	e := newEnv()
	ghost := activeProduct("p1", "Old", "5.00")
	ghost.Status = domain.ProductUnpublished
	e.catalog.put(ghost)
	e.inventory.seed("p1", 10)
	e.seedCustomer(t, "cust-1", map[string]int{"p1": 1, "p-ghost": 2})

	_, err := e.checkout.Checkout(context.Background(), checkoutReq("cust-1"))
	require.ErrorIs(t, err, domain.ErrEmptyCart)

	// 过滤掉全部行之后结算中止，账本无任何变化
	rec := e.inventory.get("p1")
	assert.Equal(t, 10, rec.Quantity)
	assert.Equal(t, 0, rec.Reserved)
}

func TestCheckoutForeignAddressRejected(t *testing.T) {
	e := newEnv()
	e.catalog.put(activeProduct("p1", "Widget", "20.00"))
	e.inventory.seed("p1", 10)
	e.seedCustomer(t, "cust-1", map[string]int{"p1": 1})
	e.addresses.owned["addr-other"] = "cust-2"

	_, err := e.checkout.Checkout(context.Background(), &CheckoutRequest{
		CustomerID:        "cust-1",
		ShippingAddressID: "addr-other",
	})
	require.ErrorIs(t, err, domain.ErrInvalidAddressOwnership)

	rec := e.inventory.get("p1")
	assert.Equal(t, 0, rec.Reserved)
}

func TestCheckoutDuplicateRequestRejected(t *testing.T) {
	e := newEnv()
	e.catalog.put(activeProduct("p1", "Widget", "20.00"))
	e.inventory.seed("p1", 10)
	e.seedCustomer(t, "cust-1", map[string]int{"p1": 1})
	e.cache.guardBusy = true

	_, err := e.checkout.Checkout(context.Background(), checkoutReq("cust-1"))
	assert.ErrorIs(t, err, domain.ErrDuplicateCheckout)
}

func TestCheckoutCommitFailureCompensates(t *testing.T) {
	e := newEnv()
	e.catalog.put(activeProduct("p1", "Widget", "20.00"))
	e.inventory.seed("p1", 10)
	e.seedCustomer(t, "cust-1", map[string]int{"p1": 2})
	e.uow.commitErr = errors.New("connection lost")

	_, err := e.checkout.Checkout(context.Background(), checkoutReq("cust-1"))
	require.Error(t, err)

	// 提交失败：确认被回滚，预占被补偿释放，订单不存在
	rec := e.inventory.get("p1")
	assert.Equal(t, 10, rec.Quantity)
	assert.Equal(t, 0, rec.Reserved)
	assert.Empty(t, e.events.byType(port.EventOrderCommitted))

	cart, cerr := e.carts.GetOrCreate(context.Background(), "cust-1")
	require.NoError(t, cerr)
	assert.Len(t, cart.Lines, 1)
}

func TestCheckoutSnapshotPricesAreImmutable(t *testing.T) {
	e := newEnv()
	e.catalog.put(activeProduct("p1", "Widget", "20.00"))
	e.inventory.seed("p1", 10)
	e.seedCustomer(t, "cust-1", map[string]int{"p1": 1})

	order, err := e.checkout.Checkout(context.Background(), checkoutReq("cust-1"))
	require.NoError(t, err)

	// 目录随后涨价，已成交订单的金额不受影响
	e.catalog.put(activeProduct("p1", "Widget", "99.00"))

	view, err := e.orderSvc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, "20.00", view.Lines[0].UnitPrice)
	assert.Equal(t, "20.00", view.Subtotal)
}

func TestCheckoutSkipsGhostLinesButKeepsRest(t *testing.T) {
	e := newEnv()
	e.catalog.put(activeProduct("p1", "Widget", "20.00"))
	e.inventory.seed("p1", 10)
	e.seedCustomer(t, "cust-1", map[string]int{"p1": 1, "p-ghost": 3})

	order, err := e.checkout.Checkout(context.Background(), checkoutReq("cust-1"))
	require.NoError(t, err)
	require.Len(t, order.Lines, 1)
	assert.Equal(t, "p1", order.Lines[0].ProductID)
}

func TestCheckoutBillingAddressMustBeOwnedToo(t *testing.T) {
	e := newEnv()
	e.catalog.put(activeProduct("p1", "Widget", "20.00"))
	e.inventory.seed("p1", 10)
	e.seedCustomer(t, "cust-1", map[string]int{"p1": 1})
	e.addresses.owned["addr-billing"] = "cust-2"

	_, err := e.checkout.Checkout(context.Background(), &CheckoutRequest{
		CustomerID:        "cust-1",
		ShippingAddressID: "addr-cust-1",
		BillingAddressID:  "addr-billing",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAddressOwnership)
}
