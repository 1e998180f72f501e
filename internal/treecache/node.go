package treecache

// Node 是缓存树中的一个值，封闭变体：Leaf 对应文件内容，Branch 对应目录，
// Listing 对应单层目录名列表（仅由单点读取产生，不参与树遍历）。
type Node interface {
	isNode()
}

// Leaf 保存文件的原始内容。
type Leaf string

// Branch 保存目录的命名子节点，永不为 nil；不存在的子节点不出现在映射中。
type Branch map[string]Node

// Listing 保存目录的单层子名称列表，是 ReadPath 的浅读取结果。
type Listing []string

func (Leaf) isNode()    {}
func (Branch) isNode()  {}
func (Listing) isNode() {}

// NewBranch 返回已初始化的空 Branch。
func NewBranch() Branch {
	return make(Branch)
}
