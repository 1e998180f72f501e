package treesync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tree-store/tree-store/internal/logging"
	"github.com/tree-store/tree-store/internal/treecache"
)

const (
	storageDirName = "storage"
	schemaDirName  = "schema"
)

// ErrUnsupported 表示该写回操作尚未支持（目录级写回未实现）。
var ErrUnsupported = errors.New("write operation not supported")

// Options 描述同步器的构造参数。RootPath 下会维护 storage 与 schema 两个目录，
// Cache 直接透传给内部持有的 treecache 实例。
type Options struct {
	RootPath string
	Cache    treecache.Options
}

// Synchronizer 将磁盘目录树镜像进分层缓存。构造时立即异步触发引导，
// 构造本身不等待引导完成；WaitReady 暴露引导结果。
type Synchronizer struct {
	rootPath string
	root     string
	sep      string
	cache    *treecache.Cache
	logger   *logrus.Logger

	ready   chan struct{}
	bootErr error
}

// New 构造同步器并启动后台引导。rootPath 为空或 logger 缺失视为配置错误。
func New(opts Options, logger *logrus.Logger) (*Synchronizer, error) {
	if opts.RootPath == "" {
		return nil, errors.New("root path required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	abs, err := filepath.Abs(opts.RootPath)
	if err != nil {
		return nil, fmt.Errorf("resolve root path: %w", err)
	}

	sep := opts.Cache.Separator
	if sep == "" {
		sep = treecache.DefaultSeparator
	}

	s := &Synchronizer{
		rootPath: abs,
		root:     filepath.Join(abs, storageDirName),
		sep:      sep,
		cache:    treecache.New(opts.Cache),
		logger:   logger,
		ready:    make(chan struct{}),
	}

	go func() {
		if err := s.loadDatabase(context.Background()); err != nil {
			s.bootErr = err
			s.logger.WithFields(logrus.Fields{
				"action": "bootstrap",
				"root":   s.root,
			}).Error(err.Error())
		}
		close(s.ready)
	}()

	return s, nil
}

// Ready 非阻塞地报告引导是否已结束（无论成败）。
func (s *Synchronizer) Ready() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// WaitReady 等待引导结束；引导失败时返回该错误。
func (s *Synchronizer) WaitReady(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ready:
		return s.bootErr
	}
}

// GetPath 以 cache-aside 方式解析单个逻辑路径：命中直接返回；未命中时读盘，
// 结果以默认 TTL 回填缓存。路径不存在返回 (nil, nil) 而非错误。
func (s *Synchronizer) GetPath(ctx context.Context, nodePath string) (treecache.Node, error) {
	nodePath = s.trimLeading(nodePath)

	if node, err := s.cache.Get(nodePath); err == nil {
		s.logger.WithFields(logging.NodeFields("get_path", nodePath, true)).Debug("缓存命中")
		return node, nil
	}

	node, err := s.ReadPath(ctx, nodePath)
	if err != nil {
		return nil, err
	}
	if node != nil {
		s.cache.Set(nodePath, node)
	}
	s.logger.WithFields(logging.NodeFields("get_path", nodePath, false)).Debug("回源读取")
	return node, nil
}

// GetBranch 解析整棵子树：命中直接返回；未命中时从磁盘递归物化，
// 累加 Branch 以被遍历根的 base name 为键，并以默认 TTL 回填缓存。
func (s *Synchronizer) GetBranch(ctx context.Context, nodePath string) (treecache.Node, error) {
	nodePath = s.trimLeading(nodePath)

	if node, err := s.cache.Get(nodePath); err == nil {
		s.logger.WithFields(logging.NodeFields("get_branch", nodePath, true)).Debug("缓存命中")
		return node, nil
	}

	basePath, err := s.diskPath(nodePath)
	if err != nil {
		return nil, err
	}

	acc := treecache.NewBranch()
	if err := s.readBranch(ctx, basePath, acc); err != nil {
		return nil, err
	}

	s.cache.Set(nodePath, acc)
	s.logger.WithFields(logging.NodeFields("get_branch", nodePath, false)).Debug("回源物化")
	return acc, nil
}

// ReadPath 读取单个节点：普通文件返回 Leaf，目录返回一层 Listing，
// 不存在返回 (nil, nil)，其余 stat 错误原样上抛。
func (s *Synchronizer) ReadPath(ctx context.Context, nodePath string) (treecache.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full, err := s.diskPath(s.trimLeading(nodePath))
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat %s: %w", full, err)
	}

	if info.IsDir() {
		entries, err := os.ReadDir(full)
		if err != nil {
			return nil, fmt.Errorf("read dir %s: %w", full, err)
		}
		names := make(treecache.Listing, 0, len(entries))
		for _, entry := range entries {
			names = append(names, entry.Name())
		}
		return names, nil
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", full, err)
	}
	return treecache.Leaf(data), nil
}

// ReadLeaf 读取单个文件并以 {basename: content} 的 Branch 形式返回。
func (s *Synchronizer) ReadLeaf(ctx context.Context, nodePath string) (treecache.Branch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full, err := s.diskPath(s.trimLeading(nodePath))
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("read leaf %s: %w", full, err)
	}

	branch := treecache.NewBranch()
	branch[filepath.Base(full)] = treecache.Leaf(data)
	return branch, nil
}

// WriteLeaf 将内容落盘（临时文件 + rename），成功后再以默认 TTL 写穿缓存；
// 磁盘写入失败会原样返回错误，缓存不被污染。
func (s *Synchronizer) WriteLeaf(ctx context.Context, nodePath, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	nodePath = s.trimLeading(nodePath)
	full, err := s.diskPath(nodePath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", full, err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(full), ".leaf-*")
	if err != nil {
		return fmt.Errorf("create temp leaf: %w", err)
	}
	tempName := tempFile.Name()

	_, writeErr := tempFile.WriteString(content)
	closeErr := tempFile.Close()
	if writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tempName)
		return fmt.Errorf("write leaf %s: %w", full, writeErr)
	}

	if err := os.Rename(tempName, full); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("publish leaf %s: %w", full, err)
	}

	s.cache.Set(nodePath, treecache.Leaf(content))
	s.logger.WithFields(logging.NodeFields("write_leaf", nodePath, false)).Debug("写穿完成")
	return nil
}

// WritePath 尚未支持单点写回。
func (s *Synchronizer) WritePath(ctx context.Context, nodePath string, node treecache.Node) error {
	return ErrUnsupported
}

// WriteBranch 尚未支持子树写回。
func (s *Synchronizer) WriteBranch(ctx context.Context, nodePath string, branch treecache.Branch) error {
	return ErrUnsupported
}

// Invalidate 使指定逻辑路径的缓存条目失效；路径不存在时无副作用。
func (s *Synchronizer) Invalidate(nodePath string) {
	s.cache.Remove(s.trimLeading(nodePath))
}

// SerializeCache 输出当前缓存树的确定性 JSON 文本，供诊断接口使用。
func (s *Synchronizer) SerializeCache() (string, error) {
	return s.cache.Serialize()
}

// loadDatabase 执行启动引导：storage 根缺失时创建 rootPath/storage/schema
// 脚手架（任一失败视为致命），随后整树物化，并以常驻方式把 storage 子树
// 替换进缓存根，保证初始物化不会悄悄过期。
func (s *Synchronizer) loadDatabase(ctx context.Context) error {
	if _, err := os.Stat(s.root); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("stat storage root %s: %w", s.root, err)
		}
		for _, dir := range []string{s.rootPath, s.root, filepath.Join(s.rootPath, schemaDirName)} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create scaffold %s: %w", dir, err)
			}
		}
	}

	acc := treecache.NewBranch()
	if err := s.readBranch(ctx, s.root, acc); err != nil {
		return fmt.Errorf("materialize storage tree: %w", err)
	}

	storageNode, ok := acc[storageDirName]
	if !ok {
		storageNode = treecache.NewBranch()
	}
	s.cache.SetWithTTL("", storageNode, 0)

	s.logger.WithFields(logrus.Fields{
		"action": "bootstrap",
		"root":   s.root,
	}).Info("存储树物化完成")
	return nil
}

// readBranch 将 diskPath 对应的节点物化进调用方提供的累加 Branch；
// 不存在的节点不产生任何内容。
func (s *Synchronizer) readBranch(ctx context.Context, diskPath string, branch treecache.Branch) error {
	name, node, err := s.readNode(ctx, diskPath)
	if err != nil {
		return err
	}
	if node != nil {
		branch[name] = node
	}
	return nil
}

// readNode 递归读取单个磁盘节点。目录的子节点并发读取，结果各写入独立
// 槽位，父节点等全部子节点完成后才组装 Branch（严格 fan-in，兄弟间无序）；
// 任一子节点的非 ENOENT 错误中止整个 fan-in。
func (s *Synchronizer) readNode(ctx context.Context, diskPath string) (string, treecache.Node, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	info, err := os.Stat(diskPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil, nil
		}
		return "", nil, fmt.Errorf("stat %s: %w", diskPath, err)
	}

	base := filepath.Base(diskPath)
	if !info.IsDir() {
		data, err := os.ReadFile(diskPath)
		if err != nil {
			return "", nil, fmt.Errorf("read file %s: %w", diskPath, err)
		}
		return base, treecache.Leaf(data), nil
	}

	entries, err := os.ReadDir(diskPath)
	if err != nil {
		return "", nil, fmt.Errorf("read dir %s: %w", diskPath, err)
	}

	type childResult struct {
		name string
		node treecache.Node
		err  error
	}
	results := make([]childResult, len(entries))

	var wg sync.WaitGroup
	for i, entry := range entries {
		wg.Add(1)
		go func(slot int, childPath string) {
			defer wg.Done()
			name, node, err := s.readNode(ctx, childPath)
			results[slot] = childResult{name: name, node: node, err: err}
		}(i, filepath.Join(diskPath, entry.Name()))
	}
	wg.Wait()

	children := treecache.NewBranch()
	for _, res := range results {
		if res.err != nil {
			return "", nil, res.err
		}
		if res.node != nil {
			children[res.name] = res.node
		}
	}
	return base, children, nil
}

// trimLeading 去掉最多一个前导分隔符，使 /a/b 与 a/b 等价。
func (s *Synchronizer) trimLeading(nodePath string) string {
	return strings.TrimPrefix(nodePath, s.sep)
}

// diskPath 将逻辑路径映射到 storage 根下的磁盘路径，并阻止路径逃逸。
func (s *Synchronizer) diskPath(nodePath string) (string, error) {
	rel := nodePath
	if s.sep != "/" {
		rel = strings.ReplaceAll(rel, s.sep, "/")
	}
	rel = path.Clean("/" + rel)
	rel = strings.TrimPrefix(rel, "/")

	full := filepath.Join(s.root, filepath.FromSlash(rel))
	if full != s.root && !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes storage root: %s", nodePath)
	}
	return full, nil
}
