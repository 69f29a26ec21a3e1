package matcher

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Neighbor 表示一次最近邻搜索返回的单个结果。
// Position 是构建索引时向量序列中的位置，与候选人列表位置一一对应。
type Neighbor struct {
	Position int
	Distance float64 // 平方欧氏距离 (L2²)
}

// FlatIndex 是一个内存中的平坦向量索引，按平方欧氏距离做穷举最近邻搜索。
// 向量以float32存储（与序列化格式一致），距离计算在float64中累加。
// 重建与搜索互斥：搜索持读锁，Rebuild持写锁，重建是全有或全无的——
// 失败的重建不会影响已有索引。
type FlatIndex struct {
	mu      sync.RWMutex
	dim     int
	vectors [][]float32
}

// NewFlatIndex 基于给定向量序列构建索引。
// 空序列返回 ErrEmptyCorpus；向量维度不一致视为调用方错误。
func NewFlatIndex(vectors [][]float64) (*FlatIndex, error) {
	idx := &FlatIndex{}
	if err := idx.Rebuild(vectors); err != nil {
		return nil, err
	}
	return idx, nil
}

// Rebuild 用新的向量序列原子地替换索引内容。
// 先在锁外完成校验和转换，成功后才加写锁换入，保证失败时旧索引仍然可用。
func (i *FlatIndex) Rebuild(vectors [][]float64) error {
	if len(vectors) == 0 {
		return NewEmptyCorpusError("build")
	}

	dim := len(vectors[0])
	if dim == 0 {
		return &MatchError{Op: "build", BaseErr: ErrInvalidQuery, Detail: "向量维度为0"}
	}

	staged := make([][]float32, len(vectors))
	for pos, vec := range vectors {
		if len(vec) != dim {
			return &MatchError{
				Op:      "build",
				BaseErr: ErrInvalidQuery,
				Detail:  fmt.Sprintf("位置%d的向量维度不一致: %d != %d", pos, len(vec), dim),
			}
		}
		row := make([]float32, dim)
		for j, v := range vec {
			row[j] = float32(v)
		}
		staged[pos] = row
	}

	i.mu.Lock()
	i.dim = dim
	i.vectors = staged
	i.mu.Unlock()
	return nil
}

// Search 返回至多 min(k, n) 个最近邻，按距离升序排列。
// 相同距离的结果保持位置顺序，结果对相同输入是确定的。
func (i *FlatIndex) Search(query []float64, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, NewInvalidQueryError("search", fmt.Sprintf("k必须为正数，收到 %d", k))
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	if len(i.vectors) == 0 {
		return nil, NewIndexNotBuiltError("search")
	}
	if len(query) != i.dim {
		return nil, NewInvalidQueryError("search",
			fmt.Sprintf("查询向量维度不匹配: %d != %d", len(query), i.dim))
	}

	q := make([]float32, i.dim)
	for j, v := range query {
		q[j] = float32(v)
	}

	neighbors := make([]Neighbor, len(i.vectors))
	for pos, vec := range i.vectors {
		neighbors[pos] = Neighbor{Position: pos, Distance: squaredL2(q, vec)}
	}

	// 稳定排序保证距离相同时保持位置顺序
	sort.SliceStable(neighbors, func(a, b int) bool {
		return neighbors[a].Distance < neighbors[b].Distance
	})

	if k > len(neighbors) {
		k = len(neighbors)
	}
	return neighbors[:k], nil
}

// Size 返回已索引的向量数量
func (i *FlatIndex) Size() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.vectors)
}

// Dimension 返回索引的向量维度，未构建时为0
func (i *FlatIndex) Dimension() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.dim
}

// 序列化格式: dim(uint32 LE), n(uint32 LE)，之后是 n*dim 个 float32 (LE)。
// 该格式是实现私有的，不保证跨实现可移植。

// Serialize 将索引编码为二进制blob，可用于跨进程复用。
// 反序列化方必须同时持有构建索引时的同一份候选人列表（顺序一致）。
func (i *FlatIndex) Serialize() ([]byte, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if len(i.vectors) == 0 {
		return nil, NewIndexNotBuiltError("serialize")
	}

	buf := make([]byte, 8, 8+4*i.dim*len(i.vectors))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(i.dim))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(i.vectors)))

	scratch := make([]byte, 4)
	for _, vec := range i.vectors {
		for _, v := range vec {
			binary.LittleEndian.PutUint32(scratch, math.Float32bits(v))
			buf = append(buf, scratch...)
		}
	}
	return buf, nil
}

// DeserializeFlatIndex 从二进制blob恢复索引。
// 恢复后的索引对相同查询返回与原索引相同的邻居位置和距离。
func DeserializeFlatIndex(data []byte) (*FlatIndex, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("索引数据不完整: 长度 %d", len(data))
	}

	rawDim := binary.LittleEndian.Uint32(data[0:4])
	rawN := binary.LittleEndian.Uint32(data[4:8])
	if rawDim == 0 || rawN == 0 {
		return nil, fmt.Errorf("索引头无效: dim=%d, n=%d", rawDim, rawN)
	}
	// 长度校验在uint64中进行, 防止伪造的超大dim/n在int乘法中回绕后通过校验
	payload := uint64(len(data) - 8)
	if payload%4 != 0 || uint64(rawDim)*uint64(rawN) != payload/4 {
		return nil, fmt.Errorf("索引数据长度不符: dim=%d, n=%d, 实际 %d 字节", rawDim, rawN, len(data))
	}
	dim := int(rawDim)
	n := int(rawN)

	vectors := make([][]float32, n)
	off := 8
	for pos := 0; pos < n; pos++ {
		row := make([]float32, dim)
		for j := 0; j < dim; j++ {
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
			off += 4
		}
		vectors[pos] = row
	}

	return &FlatIndex{dim: dim, vectors: vectors}, nil
}

// squaredL2 计算两个向量的平方欧氏距离，在float64中累加以减少精度损失
func squaredL2(a, b []float32) float64 {
	var sum float64
	for j := range a {
		d := float64(a[j]) - float64(b[j])
		sum += d * d
	}
	return sum
}
