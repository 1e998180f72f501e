package treecache

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultSeparator 是未显式配置时使用的路径分隔符。
const DefaultSeparator = "/"

// ErrNotFound 表示指定路径在缓存树中不存在，是正常的未命中信号而非异常。
var ErrNotFound = errors.New("cache path not found")

// Options 控制缓存的默认 TTL 与路径分隔符。TTL 为 0 表示条目默认常驻。
type Options struct {
	TTL       time.Duration
	Separator string
}

// Cache 是以分隔符切分路径寻址的嵌套键值缓存。整棵缓存就是一个 Node 树，
// 写入在锁内原地修改，读取基于顶层浅快照。每次带非零 TTL 的写入都注册一个
// 独立的一次性过期定时器，定时器不去重也不可取消；到期删除是幂等的，
// 重复触发无害但有浪费。
type Cache struct {
	mu   sync.Mutex
	root Node
	ttl  time.Duration
	sep  string
}

// New 构造空缓存，根节点为空 Branch。
func New(opts Options) *Cache {
	sep := opts.Separator
	if sep == "" {
		sep = DefaultSeparator
	}
	return &Cache{
		root: NewBranch(),
		ttl:  opts.TTL,
		sep:  sep,
	}
}

// Get 按分隔符切分 key 并在缓存树中逐段下钻，未命中返回 ErrNotFound。
// 遍历起点是根节点的顶层浅拷贝：仅顶层在锁内复制，嵌套 Branch 仍与并发写
// 共享，属于记录在案的已知竞态而非一致性保证。
func (c *Cache) Get(key string) (Node, error) {
	current := c.snapshot()
	for _, segment := range c.splitKey(key) {
		branch, ok := current.(Branch)
		if !ok {
			return nil, ErrNotFound
		}
		child, ok := branch[segment]
		if !ok || child == nil {
			return nil, ErrNotFound
		}
		current = child
	}
	if current == nil {
		return nil, ErrNotFound
	}
	return current, nil
}

// Set 以配置的默认 TTL 写入 value。
func (c *Cache) Set(key string, value Node) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL 写入 value 并指定 TTL，ttl <= 0 表示常驻。空 key 直接以 value
// 同步替换整棵缓存树；非空 key 沿路径按需创建缺失的中间 Branch，再写入终段，
// 既有中间 Branch 的兄弟键不受影响，非 Branch 的中间节点会被新 Branch 覆盖。
func (c *Cache) SetWithTTL(key string, value Node, ttl time.Duration) {
	segments := c.splitKey(key)

	c.mu.Lock()
	if len(segments) == 0 {
		c.root = value
	} else {
		branch, ok := c.root.(Branch)
		if !ok {
			branch = NewBranch()
			c.root = branch
		}
		for _, segment := range segments[:len(segments)-1] {
			child, ok := branch[segment].(Branch)
			if !ok {
				child = NewBranch()
				branch[segment] = child
			}
			branch = child
		}
		branch[segments[len(segments)-1]] = value
	}
	c.mu.Unlock()

	if ttl > 0 {
		time.AfterFunc(ttl, func() {
			c.Remove(key)
		})
	}
}

// Remove 删除 key 终段在其父 Branch 中的条目；任一中间段缺失或不可下钻时
// 静默返回。幂等，永不失败。
func (c *Cache) Remove(key string) {
	segments := c.splitKey(key)
	if len(segments) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	branch, ok := c.root.(Branch)
	if !ok {
		return
	}
	for _, segment := range segments[:len(segments)-1] {
		child, ok := branch[segment].(Branch)
		if !ok {
			return
		}
		branch = child
	}
	delete(branch, segments[len(segments)-1])
}

// Serialize 输出整棵缓存树的确定性 JSON 文本（map 键按字典序），
// 便于诊断与测试。
func (c *Cache) Serialize() (string, error) {
	c.mu.Lock()
	root := c.root
	c.mu.Unlock()

	data, err := json.Marshal(root)
	if err != nil {
		return "", fmt.Errorf("serialize cache tree: %w", err)
	}
	return string(data), nil
}

// snapshot 在锁内复制根节点的顶层；非 Branch 根直接返回。
func (c *Cache) snapshot() Node {
	c.mu.Lock()
	defer c.mu.Unlock()

	root, ok := c.root.(Branch)
	if !ok {
		return c.root
	}
	top := make(Branch, len(root))
	for name, child := range root {
		top[name] = child
	}
	return top
}

// splitKey 切分出非空路径段，空 key 代表根（零段）。
func (c *Cache) splitKey(key string) []string {
	if key == "" {
		return nil
	}
	parts := strings.Split(key, c.sep)
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}
