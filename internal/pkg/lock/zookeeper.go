package lock

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
)

const lockRoot = "/storefront_locks"

// ZKLocker 基于 ZooKeeper 临时顺序节点实现跨进程的按商品互斥。
// 节点路径为 /storefront_locks/<productID>/lock-<seq>，
// 最小序号者持锁，其余节点只监听自己的前驱，避免惊群。
type ZKLocker struct {
	conn *zk.Conn
}

func NewZKLocker(servers []string, sessionTimeout time.Duration) (*ZKLocker, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect zookeeper: %w", err)
	}
	l := &ZKLocker{conn: conn}
	if err := l.ensurePath(lockRoot); err != nil {
		conn.Close()
		return nil, err
	}
	return l, nil
}

func (l *ZKLocker) ensurePath(path string) error {
	exists, _, err := l.conn.Exists(path)
	if err != nil {
		return fmt.Errorf("check node %s: %w", path, err)
	}
	if exists {
		return nil
	}
	_, err = l.conn.Create(path, nil, 0, zk.WorldACL(zk.PermAll))
	if err != nil && err != zk.ErrNodeExists {
		return fmt.Errorf("create node %s: %w", path, err)
	}
	return nil
}

func (l *ZKLocker) Acquire(ctx context.Context, key string) (func(), error) {
	base := lockRoot + "/" + key
	if err := l.ensurePath(base); err != nil {
		return nil, err
	}

	// 1. 创建自己的临时顺序节点
	node, err := l.conn.CreateProtectedEphemeralSequential(base+"/lock-", nil, zk.WorldACL(zk.PermAll))
	if err != nil {
		return nil, fmt.Errorf("create sequential node: %w", err)
	}

	release := func() {
		// 会话丢失时节点由 ZooKeeper 自动清除，这里忽略 ErrNoNode
		_ = l.conn.Delete(node, -1)
	}

	for {
		children, _, err := l.conn.Children(base)
		if err != nil {
			release()
			return nil, fmt.Errorf("list lock nodes: %w", err)
		}
		sort.Strings(children)

		myName := strings.TrimPrefix(node, base+"/")
		if idx := indexOf(children, myName); idx == 0 {
			// 2. 自己是最小节点，持锁成功
			return release, nil
		} else if idx < 0 {
			release()
			return nil, fmt.Errorf("own lock node %s disappeared", myName)
		} else {
			// 3. 监听前驱节点，等它消失后重新竞争
			prev := base + "/" + children[idx-1]
			exists, _, eventCh, err := l.conn.ExistsW(prev)
			if err != nil {
				release()
				return nil, fmt.Errorf("watch predecessor: %w", err)
			}
			if !exists {
				continue
			}

			select {
			case <-eventCh:
				continue
			case <-ctx.Done():
				release()
				return nil, ErrAcquireTimeout
			}
		}
	}
}

func indexOf(list []string, target string) int {
	for i, v := range list {
		if v == target {
			return i
		}
	}
	return -1
}

func (l *ZKLocker) Close() {
	l.conn.Close()
}
