package multiproc

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Kind 快照类型
type Kind string

const (
	// KindCounter 计数器与直方图，进程退出后仍然保留
	KindCounter Kind = "counter"
	// KindGaugeLive 仪表盘，进程退出时删除
	KindGaugeLive Kind = "gauge_live"
)

// Key 快照标识
type Key struct {
	Kind     Kind
	PID      int
	Instance string
}

func (k Key) String() string {
	return fmt.Sprintf("%s_%d_%s", k.Kind, k.PID, k.Instance)
}

// parseKey 解析 Key.String 的结果
func parseKey(s string) (Key, bool) {
	var k Key
	var rest string
	switch {
	case strings.HasPrefix(s, string(KindGaugeLive)+"_"):
		k.Kind, rest = KindGaugeLive, strings.TrimPrefix(s, string(KindGaugeLive)+"_")
	case strings.HasPrefix(s, string(KindCounter)+"_"):
		k.Kind, rest = KindCounter, strings.TrimPrefix(s, string(KindCounter)+"_")
	default:
		return Key{}, false
	}

	pid, instance, ok := strings.Cut(rest, "_")
	if !ok || instance == "" {
		return Key{}, false
	}
	n, err := strconv.Atoi(pid)
	if err != nil {
		return Key{}, false
	}
	k.PID, k.Instance = n, instance
	return k, true
}

// Entry 一份快照
type Entry struct {
	Key  Key
	Data []byte
}

// Store 快照存储
type Store interface {
	// Put 原子地写入或覆盖一份快照
	Put(ctx context.Context, key Key, data []byte) error
	// List 返回全部快照
	List(ctx context.Context) ([]Entry, error)
	// Remove 删除快照，不存在的 key 被忽略
	Remove(ctx context.Context, keys ...Key) error
}
