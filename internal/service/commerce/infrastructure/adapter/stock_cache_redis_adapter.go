package adapter

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"storefront/internal/pkg/redis"
	"storefront/internal/service/commerce/port"
)

const (
	availableKeyPrefix = "stock:available:"
	availableKeyTTL    = 10 * time.Minute

	// checkoutGuardTTL 兜底清理：正常路径由 End 主动删除，
	// TTL 只防止进程崩溃后幂等键永久残留。
	checkoutGuardTTL = 30 * time.Second

	guardReleaseScriptName = "checkout_guard_release"
)

// guardReleaseScript 只在键值仍是自己的令牌时删除。
// 防止一次慢结算在 TTL 过期后误删下一次结算的守卫键。
const guardReleaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
end
return 0
`

// StockCacheRedisAdapter 同时实现 port.StockCache 和 port.CheckoutGuard。
// 缓存值允许过期，它只服务于购物车的参考性检查。
type StockCacheRedisAdapter struct {
	client *redis.Client

	mu     sync.Mutex
	tokens map[string]string // 在途结算的守卫键 -> 本次持有的令牌
}

var (
	_ port.StockCache    = (*StockCacheRedisAdapter)(nil)
	_ port.CheckoutGuard = (*StockCacheRedisAdapter)(nil)
)

func NewStockCacheRedisAdapter(client *redis.Client) *StockCacheRedisAdapter {
	// 脚本内容是常量，注册不会失败
	_ = client.LoadScriptFromContent(guardReleaseScriptName, guardReleaseScript)
	return &StockCacheRedisAdapter{client: client, tokens: make(map[string]string)}
}

func (a *StockCacheRedisAdapter) GetAvailable(ctx context.Context, productID string) (int, bool, error) {
	val, err := a.client.GetClient().Get(ctx, availableKeyPrefix+productID).Result()
	if err == goredis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	available, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, err
	}
	return available, true, nil
}

func (a *StockCacheRedisAdapter) SetAvailable(ctx context.Context, productID string, available int) error {
	return a.client.GetClient().Set(ctx, availableKeyPrefix+productID, available, availableKeyTTL).Err()
}

// TryBegin 用 SETNX 登记一次结算，值是本次请求独有的令牌。
func (a *StockCacheRedisAdapter) TryBegin(ctx context.Context, key string) (bool, error) {
	token := uuid.New().String()
	ok, err := a.client.SetNX(ctx, key, token, checkoutGuardTTL)
	if err != nil || !ok {
		return ok, err
	}
	a.mu.Lock()
	a.tokens[key] = token
	a.mu.Unlock()
	return true, nil
}

// End 通过比较令牌的 Lua 脚本释放守卫键，只删除属于自己的登记。
func (a *StockCacheRedisAdapter) End(ctx context.Context, key string) error {
	a.mu.Lock()
	token, ok := a.tokens[key]
	delete(a.tokens, key)
	a.mu.Unlock()
	if !ok {
		return nil
	}
	_, err := a.client.RunScript(ctx, guardReleaseScriptName, []string{key}, token)
	return err
}
