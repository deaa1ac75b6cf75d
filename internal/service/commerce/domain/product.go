package domain

import "github.com/shopspring/decimal"

// ProductStatus 是商品可售状态的封闭集合。
// 原系统用软删除布尔位表达，这里改为显式枚举，
// 让购物车对"幽灵商品"的处理可以按明确的分支走。
type ProductStatus string

const (
	ProductActive      ProductStatus = "ACTIVE"
	ProductUnpublished ProductStatus = "UNPUBLISHED"
	ProductDeleted     ProductStatus = "DELETED"
)

// ProductSnapshot 是目录协作方返回的商品快照。
// 引擎从不修改商品本身，只消费这份只读视图。
type ProductSnapshot struct {
	ID     string
	Name   string
	SKU    string
	Price  decimal.Decimal
	Status ProductStatus
}

// Sellable 判断商品当前是否可以进入结算。
func (p ProductSnapshot) Sellable() bool {
	return p.Status == ProductActive
}
