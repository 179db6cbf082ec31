package btree

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/rajeshpillai/tiny-sqlite/pager"
)

// byteOrder is the on-disk integer encoding for every multi-byte
// field in the header, nodes and records: fixed at little-endian so a
// page written by one build is readable by another regardless of
// host architecture.
var byteOrder = binary.LittleEndian

// Page is an alias for the pager's fixed-size buffer, interpreted as
// a tree node by every function in this package.
type Page = pager.Page

// NodeType distinguishes a leaf page from an internal page. The
// numeric values match the on-disk encoding (and the reference
// implementation's enum ordering).
type NodeType uint8

const (
	NodeTypeInternal NodeType = 0
	NodeTypeLeaf     NodeType = 1
)

// Common node header: every page except page 0 starts with these
// three fields.
const (
	nodeTypeOffset     = 0
	nodeTypeSize       = 1
	isRootOffset       = nodeTypeOffset + nodeTypeSize
	isRootSize         = 1
	parentPointerOffset = isRootOffset + isRootSize
	parentPointerSize   = 4

	commonHeaderSize = parentPointerOffset + parentPointerSize // 6
)

// Leaf node header, immediately following the common header.
const (
	leafNumCellsOffset = commonHeaderSize
	leafNumCellsSize   = 4
	leafNextLeafOffset = leafNumCellsOffset + leafNumCellsSize
	leafNextLeafSize   = 4

	leafHeaderSize = leafNextLeafOffset + leafNextLeafSize // 14
)

// Leaf body: a packed array of { key uint32, value RowSize bytes }
// cells, sorted ascending by key.
const (
	leafCellKeySize   = 4
	leafCellValueSize = RowSize
	leafCellSize      = leafCellKeySize + leafCellValueSize

	// MaxLeafCells is the largest number of cells a leaf page can hold.
	MaxLeafCells = (pager.PageSize - leafHeaderSize) / leafCellSize
	// MinLeafCells is the minimum occupancy a non-root leaf must keep.
	MinLeafCells = MaxLeafCells / 2
)

// Internal node header, immediately following the common header.
const (
	internalNumKeysOffset = commonHeaderSize
	internalNumKeysSize   = 4
	internalRightChildOffset = internalNumKeysOffset + internalNumKeysSize
	internalRightChildSize   = 4

	internalHeaderSize = internalRightChildOffset + internalRightChildSize // 14
)

// Internal body: a packed array of { child uint32, key uint32 } cells.
const (
	internalCellChildSize = 4
	internalCellKeySize   = 4
	internalCellSize      = internalCellChildSize + internalCellKeySize

	// MaxInternalKeys is the largest number of keys (and thus
	// numKeys+1 children) an internal page can hold.
	MaxInternalKeys = (pager.PageSize - internalHeaderSize) / internalCellSize
	// MinInternalKeys is the minimum occupancy a non-root internal
	// node must keep.
	MinInternalKeys = MaxInternalKeys / 2
)

// --- common header accessors ---

func getNodeType(p *Page) NodeType {
	return NodeType(p[nodeTypeOffset])
}

func setNodeType(p *Page, t NodeType) {
	p[nodeTypeOffset] = byte(t)
}

func isLeaf(p *Page) bool {
	return getNodeType(p) == NodeTypeLeaf
}

func getIsRoot(p *Page) bool {
	return p[isRootOffset] != 0
}

func setIsRoot(p *Page, root bool) {
	if root {
		p[isRootOffset] = 1
	} else {
		p[isRootOffset] = 0
	}
}

func getParentPage(p *Page) uint32 {
	return byteOrder.Uint32(p[parentPointerOffset:])
}

func setParentPage(p *Page, parent uint32) {
	byteOrder.PutUint32(p[parentPointerOffset:], parent)
}

// --- leaf accessors ---

func getLeafNumCells(p *Page) uint32 {
	return byteOrder.Uint32(p[leafNumCellsOffset:])
}

func setLeafNumCells(p *Page, n uint32) {
	byteOrder.PutUint32(p[leafNumCellsOffset:], n)
}

func getLeafNextLeaf(p *Page) uint32 {
	return byteOrder.Uint32(p[leafNextLeafOffset:])
}

func setLeafNextLeaf(p *Page, next uint32) {
	byteOrder.PutUint32(p[leafNextLeafOffset:], next)
}

func leafCellOffset(cellNum uint32) int {
	return leafHeaderSize + int(cellNum)*leafCellSize
}

func getLeafCellKey(p *Page, cellNum uint32) int32 {
	off := leafCellOffset(cellNum)
	return int32(byteOrder.Uint32(p[off:]))
}

func setLeafCellKey(p *Page, cellNum uint32, key int32) {
	off := leafCellOffset(cellNum)
	byteOrder.PutUint32(p[off:], uint32(key))
}

func getLeafCellValue(p *Page, cellNum uint32) []byte {
	off := leafCellOffset(cellNum) + leafCellKeySize
	return p[off : off+leafCellValueSize]
}

// initLeaf formats p as an empty, non-root leaf.
func initLeaf(p *Page) {
	setNodeType(p, NodeTypeLeaf)
	setIsRoot(p, false)
	setParentPage(p, 0)
	setLeafNumCells(p, 0)
	setLeafNextLeaf(p, 0)
}

// --- internal accessors ---

func getInternalNumKeys(p *Page) uint32 {
	return byteOrder.Uint32(p[internalNumKeysOffset:])
}

func setInternalNumKeys(p *Page, n uint32) {
	byteOrder.PutUint32(p[internalNumKeysOffset:], n)
}

func getInternalRightChild(p *Page) uint32 {
	return byteOrder.Uint32(p[internalRightChildOffset:])
}

func setInternalRightChild(p *Page, child uint32) {
	byteOrder.PutUint32(p[internalRightChildOffset:], child)
}

func internalCellOffset(cellNum uint32) int {
	return internalHeaderSize + int(cellNum)*internalCellSize
}

func getInternalCellChild(p *Page, cellNum uint32) uint32 {
	off := internalCellOffset(cellNum)
	return byteOrder.Uint32(p[off:])
}

func setInternalCellChild(p *Page, cellNum uint32, child uint32) {
	off := internalCellOffset(cellNum)
	byteOrder.PutUint32(p[off:], child)
}

func getInternalCellKey(p *Page, cellNum uint32) int32 {
	off := internalCellOffset(cellNum) + internalCellChildSize
	return int32(byteOrder.Uint32(p[off:]))
}

func setInternalCellKey(p *Page, cellNum uint32, key int32) {
	off := internalCellOffset(cellNum) + internalCellChildSize
	byteOrder.PutUint32(p[off:], uint32(key))
}

// getInternalChild returns child index i of an internal node, where
// i == NumKeys means the right child.
func getInternalChild(p *Page, i uint32) (uint32, error) {
	numKeys := getInternalNumKeys(p)
	if i > numKeys {
		return 0, errors.Errorf("btree: internal child index %d out of range (numKeys=%d)", i, numKeys)
	}
	if i == numKeys {
		return getInternalRightChild(p), nil
	}
	return getInternalCellChild(p, i), nil
}

// initInternal formats p as an empty, non-root internal node.
func initInternal(p *Page) {
	setNodeType(p, NodeTypeInternal)
	setIsRoot(p, false)
	setParentPage(p, 0)
	setInternalNumKeys(p, 0)
	setInternalRightChild(p, 0)
}
