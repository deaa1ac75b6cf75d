package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"
)

// Cart 是一个客户的工作集，记录想买什么、买多少。
// 购物车对库存只做非权威的参考检查，真正的强制校验发生在结算。
type Cart struct {
	ID         string
	CustomerID string
	Lines      []CartLine
	UpdatedAt  time.Time
}

// CartLine 是购物车中的一行，同一商品在购物车里最多一行。
type CartLine struct {
	ProductID string
	Quantity  int
}

// AddLine 向购物车加入商品。商品已存在时合并数量而不是新增一行。
func (c *Cart) AddLine(productID string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("quantity must be at least 1, got %d", qty)
	}
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines[i].Quantity += qty
			c.UpdatedAt = time.Now()
			return nil
		}
	}
	c.Lines = append(c.Lines, CartLine{ProductID: productID, Quantity: qty})
	c.UpdatedAt = time.Now()
	return nil
}

// SetLineQuantity 直接设置某一行的数量，0 表示删除该行。
func (c *Cart) SetLineQuantity(productID string, qty int) error {
	if qty < 0 {
		return fmt.Errorf("quantity must not be negative, got %d", qty)
	}
	if qty == 0 {
		c.RemoveLine(productID)
		return nil
	}
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines[i].Quantity = qty
			c.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("product %s: %w", productID, ErrCartNotFound)
}

// RemoveLine 删除一行，商品不存在时是空操作。
func (c *Cart) RemoveLine(productID string) {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			c.UpdatedAt = time.Now()
			return
		}
	}
}

// Clear 清空购物车，结算成功后调用。
func (c *Cart) Clear() {
	c.Lines = nil
	c.UpdatedAt = time.Now()
}

// Line 返回某商品对应的行。
func (c *Cart) Line(productID string) (CartLine, bool) {
	for _, l := range c.Lines {
		if l.ProductID == productID {
			return l, true
		}
	}
	return CartLine{}, false
}

// TotalItems 返回购物车内商品总件数。
func (c *Cart) TotalItems() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

// Fingerprint 生成购物车内容的确定性摘要，用作结算幂等键的一部分：
// 相同内容的并发结算请求只放行一个。
func (c *Cart) Fingerprint() string {
	lines := make([]string, 0, len(c.Lines))
	for _, l := range c.Lines {
		lines = append(lines, fmt.Sprintf("%s:%d", l.ProductID, l.Quantity))
	}
	sort.Strings(lines)
	h := sha256.New()
	for _, l := range lines {
		h.Write([]byte(l))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
