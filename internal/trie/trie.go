// Package trie implements InvertedIndex: an in-memory, Aho-Corasick-shaped
// key trie whose leaves are physical-volume entry offsets, plus its
// binary serialization. Only goto edges are persisted; failure links
// are not part of the on-disk form and are never built, since this
// engine performs no substring search — lookups are exact key walks.
package trie

import (
	"bytes"
	"io"
	"sort"

	"github.com/michailvoronov/yet-another-storage/errs"
	"github.com/michailvoronov/yet-another-storage/internal/layout"
	"github.com/michailvoronov/yet-another-storage/internal/offtype"
)

type node[O offtype.Type] struct {
	children map[byte]*node[O]
	leaf     O
}

func newNode[O offtype.Type]() *node[O] {
	return &node[O]{children: make(map[byte]*node[O]), leaf: offtype.NonExist[O]()}
}

// Index is the trie root. The zero value is not usable; use New.
type Index[O offtype.Type] struct {
	root *node[O]
}

// New returns an empty trie.
func New[O offtype.Type]() *Index[O] {
	return &Index[O]{root: newNode[O]()}
}

// Insert adds key → leaf. It reports false (no-op) for an empty key or
// a key that already has a value; the caller turns that into a
// KeyAlreadyCreated error.
func (idx *Index[O]) Insert(key []byte, leaf O) bool {
	if len(key) == 0 {
		return false
	}

	cur := idx.root
	for _, ch := range key {
		child, ok := cur.children[ch]
		if !ok {
			child = newNode[O]()
			cur.children[ch] = child
		}
		cur = child
	}

	if offtype.Exists(cur.leaf) {
		return false
	}
	cur.leaf = leaf
	return true
}

// Get returns key's leaf, or offtype.NonExist[O]() if key is absent or
// empty.
func (idx *Index[O]) Get(key []byte) O {
	n := idx.find(key)
	if n == nil {
		return offtype.NonExist[O]()
	}
	return n.leaf
}

// HasKey reports whether key has a value.
func (idx *Index[O]) HasKey(key []byte) bool {
	return offtype.Exists(idx.Get(key))
}

// Delete removes key's value, pruning any branch that becomes empty as
// a result. It reports false for an empty or absent key.
func (idx *Index[O]) Delete(key []byte) bool {
	if len(key) == 0 {
		return false
	}

	n := idx.find(key)
	if n == nil || !offtype.Exists(n.leaf) {
		return false
	}
	n.leaf = offtype.NonExist[O]()

	path := make([]*node[O], len(key)+1)
	path[0] = idx.root
	cur := idx.root
	for i, ch := range key {
		cur = cur.children[ch]
		path[i+1] = cur
	}
	for i := len(key) - 1; i >= 0; i-- {
		child := path[i+1]
		if len(child.children) != 0 || offtype.Exists(child.leaf) {
			break
		}
		delete(path[i].children, key[i])
	}

	return true
}

// Walk visits every key currently stored in idx, in ascending
// byte-lexicographic order, calling fn with the key and its leaf.
func (idx *Index[O]) Walk(fn func(key []byte, leaf O)) {
	walk(idx.root, nil, fn)
}

func walk[O offtype.Type](n *node[O], prefix []byte, fn func([]byte, O)) {
	if n == nil {
		return
	}
	for _, ch := range sortedChildKeys(n.children) {
		child := n.children[ch]
		key := append(prefix, ch)
		if offtype.Exists(child.leaf) {
			cp := make([]byte, len(key))
			copy(cp, key)
			fn(cp, child.leaf)
		}
		walk(child, key, fn)
	}
}

func (idx *Index[O]) find(key []byte) *node[O] {
	if len(key) == 0 {
		return nil
	}
	cur := idx.root
	for _, ch := range key {
		child, ok := cur.children[ch]
		if !ok {
			return nil
		}
		cur = child
	}
	return cur
}

func sortedChildKeys[O offtype.Type](m map[byte]*node[O]) []byte {
	keys := make([]byte, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

type bfsItem[O offtype.Type, ID offtype.Type] struct {
	n        *node[O]
	id       ID
	parentID ID
	depth    ID
	parentCh byte
}

// Serialize walks idx in BFS order (root = id 0) and writes each node
// as {node_id, parent_node_id, depth_level, leaf_id, parent_node_ch}.
// IdType is chosen by the caller based on expected node count,
// independent of the offset width O used for leaves.
func Serialize[O offtype.Type, ID offtype.Type](idx *Index[O]) []byte {
	order := bfsOrder[O, ID](idx)

	leafIndex := make(map[int]ID)
	leafCount := 0
	for i, item := range order {
		if offtype.Exists(item.n.leaf) {
			leafIndex[i] = ID(leafCount)
			leafCount++
		}
	}

	buf := &bytes.Buffer{}
	buf.WriteByte(layout.MaxSupportedVersion.Major)
	buf.WriteByte(layout.MaxSupportedVersion.Minor)
	writeID(buf, ID(leafCount))
	writeID(buf, ID(len(order)))
	buf.WriteByte(byte(offtype.Size[ID]()))

	for i, item := range order {
		leafID := offtype.NonExist[ID]()
		if lid, ok := leafIndex[i]; ok {
			leafID = lid
		}
		writeID(buf, item.id)
		writeID(buf, item.parentID)
		writeID(buf, item.depth)
		writeID(buf, leafID)
		buf.WriteByte(item.parentCh)
	}

	for i, item := range order {
		if _, ok := leafIndex[i]; !ok {
			continue
		}
		writeID(buf, item.id)
		writeOffset(buf, item.n.leaf)
	}

	return buf.Bytes()
}

func bfsOrder[O offtype.Type, ID offtype.Type](idx *Index[O]) []bfsItem[O, ID] {
	queue := []bfsItem[O, ID]{{n: idx.root, id: 0, parentID: offtype.NonExist[ID](), depth: 0}}
	var order []bfsItem[O, ID]
	nextID := ID(1)

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)

		for _, ch := range sortedChildKeys(cur.n.children) {
			queue = append(queue, bfsItem[O, ID]{
				n:        cur.n.children[ch],
				id:       nextID,
				parentID: cur.id,
				depth:    cur.depth + 1,
				parentCh: ch,
			})
			nextID++
		}
	}

	return order
}

// Deserialize reconstructs a trie from a blob written by Serialize. It
// rejects a future on-disk version and any structural inconsistency:
// an unknown parent id, a duplicate node id, or a leaf referring to a
// node that was never declared.
func Deserialize[O offtype.Type, ID offtype.Type](data []byte) (*Index[O], error) {
	r := bytes.NewReader(data)

	var verBuf [2]byte
	if _, err := io.ReadFull(r, verBuf[:]); err != nil {
		return nil, errs.Wrap(errs.InvertedIndexDeserialization, "trie.Deserialize", err)
	}
	version := layout.Version{Major: verBuf[0], Minor: verBuf[1]}
	if version.Greater(layout.MaxSupportedVersion) {
		return nil, errs.New(errs.InvertedIndexDeserializationVersionUnsupported, "trie.Deserialize")
	}

	leafCount, err := readID[ID](r)
	if err != nil {
		return nil, errs.Wrap(errs.InvertedIndexDeserialization, "trie.Deserialize", err)
	}
	nodeCount, err := readID[ID](r)
	if err != nil {
		return nil, errs.Wrap(errs.InvertedIndexDeserialization, "trie.Deserialize", err)
	}

	var idTypeSizeBuf [1]byte
	if _, err := io.ReadFull(r, idTypeSizeBuf[:]); err != nil {
		return nil, errs.Wrap(errs.InvertedIndexDeserialization, "trie.Deserialize", err)
	}
	if int(idTypeSizeBuf[0]) != offtype.Size[ID]() {
		return nil, errs.New(errs.InvertedIndexDeserialization, "trie.Deserialize")
	}

	nodes := make(map[ID]*node[O], uint64(nodeCount))
	depths := make(map[ID]ID, uint64(nodeCount))
	leafIDs := make(map[ID]ID, uint64(nodeCount))

	for i := uint64(0); i < uint64(nodeCount); i++ {
		id, err := readID[ID](r)
		if err != nil {
			return nil, errs.Wrap(errs.InvertedIndexDeserialization, "trie.Deserialize", err)
		}
		parentID, err := readID[ID](r)
		if err != nil {
			return nil, errs.Wrap(errs.InvertedIndexDeserialization, "trie.Deserialize", err)
		}
		depth, err := readID[ID](r)
		if err != nil {
			return nil, errs.Wrap(errs.InvertedIndexDeserialization, "trie.Deserialize", err)
		}
		leafID, err := readID[ID](r)
		if err != nil {
			return nil, errs.Wrap(errs.InvertedIndexDeserialization, "trie.Deserialize", err)
		}
		var chBuf [1]byte
		if _, err := io.ReadFull(r, chBuf[:]); err != nil {
			return nil, errs.Wrap(errs.InvertedIndexDeserialization, "trie.Deserialize", err)
		}

		if _, dup := nodes[id]; dup {
			return nil, errs.New(errs.InvertedIndexDeserialization, "trie.Deserialize")
		}

		n := newNode[O]()
		if id == 0 {
			if offtype.Exists(parentID) || depth != 0 {
				return nil, errs.New(errs.InvertedIndexDeserialization, "trie.Deserialize")
			}
		} else {
			parent, ok := nodes[parentID]
			if !ok {
				return nil, errs.New(errs.InvertedIndexDeserialization, "trie.Deserialize")
			}
			if depth != depths[parentID]+1 {
				return nil, errs.New(errs.InvertedIndexDeserialization, "trie.Deserialize")
			}
			parent.children[chBuf[0]] = n
		}

		nodes[id] = n
		depths[id] = depth
		if offtype.Exists(leafID) {
			leafIDs[leafID] = id
		}
	}

	root, ok := nodes[0]
	if !ok {
		return nil, errs.New(errs.InvertedIndexDeserialization, "trie.Deserialize")
	}

	for i := uint64(0); i < uint64(leafCount); i++ {
		leafID, err := readID[ID](r)
		if err != nil {
			return nil, errs.Wrap(errs.InvertedIndexDeserialization, "trie.Deserialize", err)
		}
		leaf, err := readOffset[O](r)
		if err != nil {
			return nil, errs.Wrap(errs.InvertedIndexDeserialization, "trie.Deserialize", err)
		}

		nodeID, ok := leafIDs[ID(i)]
		if !ok || nodeID != leafID {
			return nil, errs.New(errs.InvertedIndexDeserialization, "trie.Deserialize")
		}
		n, ok := nodes[nodeID]
		if !ok {
			return nil, errs.New(errs.InvertedIndexDeserialization, "trie.Deserialize")
		}
		n.leaf = leaf
	}

	return &Index[O]{root: root}, nil
}

func writeID[ID offtype.Type](buf *bytes.Buffer, v ID) {
	var b [8]byte
	switch offtype.Size[ID]() {
	case 4:
		layout.Endian.PutUint32(b[:4], uint32(v))
		buf.Write(b[:4])
	default:
		layout.Endian.PutUint64(b[:8], uint64(v))
		buf.Write(b[:8])
	}
}

func readID[ID offtype.Type](r *bytes.Reader) (ID, error) {
	size := offtype.Size[ID]()
	b := make([]byte, size)
	if _, err := io.ReadFull(r, b); err != nil {
		var zero ID
		return zero, err
	}
	if size == 4 {
		return ID(layout.Endian.Uint32(b)), nil
	}
	return ID(layout.Endian.Uint64(b)), nil
}

func writeOffset[O offtype.Type](buf *bytes.Buffer, v O) {
	var b [8]byte
	switch offtype.Size[O]() {
	case 4:
		layout.Endian.PutUint32(b[:4], uint32(v))
		buf.Write(b[:4])
	default:
		layout.Endian.PutUint64(b[:8], uint64(v))
		buf.Write(b[:8])
	}
}

func readOffset[O offtype.Type](r *bytes.Reader) (O, error) {
	size := offtype.Size[O]()
	b := make([]byte, size)
	if _, err := io.ReadFull(r, b); err != nil {
		var zero O
		return zero, err
	}
	if size == 4 {
		return O(layout.Endian.Uint32(b)), nil
	}
	return O(layout.Endian.Uint64(b)), nil
}
