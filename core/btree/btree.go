// Package btree is an in-memory row store that satisfies the storage
// interfaces of the register machine. Each tree is an ordered slice of
// entries: table trees are ordered by rowid, index trees by record key.
package btree

import (
	"sort"
	"strconv"

	"github.com/FocuswithJustin/vdbecore/core/errors"
	"github.com/FocuswithJustin/vdbecore/core/vdbe"
)

// Cursor state constants
const (
	CursorValid    = 0 // Cursor points to a valid entry
	CursorInvalid  = 1 // Cursor does not point to a valid entry
	CursorSkipNext = 2 // Entry was deleted; Next lands on the entry that followed it
)

type entry struct {
	rowid int64
	key   []byte
	data  []byte
}

type tree struct {
	index   bool
	keyInfo *vdbe.KeyInfo
	rows    []entry
}

// Btree holds the trees of one database, addressed by root number.
type Btree struct {
	trees    map[int]*tree
	nextRoot int
}

// New creates an empty database.
func New() *Btree {
	return &Btree{trees: make(map[int]*tree), nextRoot: 1}
}

// CreateTable creates an empty rowid table and returns its root.
func (bt *Btree) CreateTable() int {
	return bt.create(&tree{})
}

// CreateIndex creates an empty index ordered by ki and returns its root.
func (bt *Btree) CreateIndex(ki *vdbe.KeyInfo) int {
	return bt.create(&tree{index: true, keyInfo: ki})
}

func (bt *Btree) create(t *tree) int {
	root := bt.nextRoot
	bt.nextRoot++
	bt.trees[root] = t
	return root
}

// Open opens a cursor on the tree at root. A KeyInfo must be given for
// index trees and omitted for tables.
func (bt *Btree) Open(root int, writable bool, ki *vdbe.KeyInfo) (vdbe.BtCursor, error) {
	t, ok := bt.trees[root]
	if !ok {
		return nil, errors.NewNotFound("tree", strconv.Itoa(root))
	}
	if t.index != (ki != nil) {
		return nil, errors.NewVM(errors.Misuse, "tree %d opened with the wrong kind of cursor", root)
	}
	if ki == nil {
		ki = t.keyInfo
	}
	return &BtCursor{tree: t, keyInfo: ki, writable: writable, State: CursorInvalid}, nil
}

// OpenEphemeral creates a private tree that is dropped when its cursor is
// closed.
func (bt *Btree) OpenEphemeral(ki *vdbe.KeyInfo) (vdbe.BtCursor, error) {
	t := &tree{index: ki != nil, keyInfo: ki}
	return &BtCursor{tree: t, keyInfo: ki, writable: true, State: CursorInvalid}, nil
}

// Count returns the number of entries in the tree at root.
func (bt *Btree) Count(root int) (int64, error) {
	t, ok := bt.trees[root]
	if !ok {
		return 0, errors.NewNotFound("tree", strconv.Itoa(root))
	}
	return int64(len(t.rows)), nil
}

// BtCursor is a position in one tree.
type BtCursor struct {
	tree     *tree
	keyInfo  *vdbe.KeyInfo
	writable bool
	pos      int
	State    int
}

func (c *BtCursor) set(pos int) bool {
	if pos < 0 || pos >= len(c.tree.rows) {
		c.State = CursorInvalid
		return false
	}
	c.pos = pos
	c.State = CursorValid
	return true
}

func (c *BtCursor) check() error {
	if c.tree == nil {
		return errors.NewVM(errors.Misuse, "cursor is closed")
	}
	return nil
}

// First moves to the smallest entry.
func (c *BtCursor) First() (bool, error) {
	if err := c.check(); err != nil {
		return true, err
	}
	return !c.set(0), nil
}

// Last moves to the largest entry.
func (c *BtCursor) Last() (bool, error) {
	if err := c.check(); err != nil {
		return true, err
	}
	return !c.set(len(c.tree.rows) - 1), nil
}

// Next moves to the following entry.
func (c *BtCursor) Next() (bool, error) {
	if err := c.check(); err != nil {
		return false, err
	}
	switch c.State {
	case CursorSkipNext:
		return c.set(c.pos), nil
	case CursorInvalid:
		return false, nil
	}
	return c.set(c.pos + 1), nil
}

// Previous moves to the preceding entry.
func (c *BtCursor) Previous() (bool, error) {
	if err := c.check(); err != nil {
		return false, err
	}
	if c.State == CursorInvalid {
		return false, nil
	}
	return c.set(c.pos - 1), nil
}

// MovetoRowid positions the cursor at rowid or next to where it would be.
func (c *BtCursor) MovetoRowid(rowid int64) (int, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	if c.tree.index {
		return 0, errors.NewVM(errors.Misuse, "rowid seek on an index")
	}
	rows := c.tree.rows
	i := sort.Search(len(rows), func(i int) bool { return rows[i].rowid >= rowid })
	return c.settle(i, func() int { return compareRowid(rows[i].rowid, rowid) })
}

// settle leaves the cursor on entry i, the first entry not smaller than
// the search key, or on the last entry when i is past the end.
func (c *BtCursor) settle(i int, cmp func() int) (int, error) {
	n := len(c.tree.rows)
	if n == 0 {
		c.State = CursorInvalid
		return -1, nil
	}
	if i >= n {
		c.set(n - 1)
		return -1, nil
	}
	c.set(i)
	return cmp(), nil
}

func compareRowid(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// search returns the first entry whose key compares at or above key.
func (c *BtCursor) search(key *vdbe.UnpackedRecord) (int, int, error) {
	rows := c.tree.rows
	var firstErr error
	var found int
	i := sort.Search(len(rows), func(i int) bool {
		rc, err := vdbe.RecordCompare(rows[i].key, key)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return rc >= 0
	})
	if firstErr != nil {
		return 0, 0, firstErr
	}
	if i < len(rows) {
		rc, err := vdbe.RecordCompare(rows[i].key, key)
		if err != nil {
			return 0, 0, err
		}
		found = rc
	}
	return i, found, nil
}

// MovetoKey positions an index cursor at key or next to where it would be.
func (c *BtCursor) MovetoKey(key *vdbe.UnpackedRecord) (int, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	if !c.tree.index {
		return 0, errors.NewVM(errors.Misuse, "key seek on a table")
	}
	i, rc, err := c.search(key)
	if err != nil {
		return 0, err
	}
	return c.settle(i, func() int { return rc })
}

// CompareKey compares the entry under the cursor with key.
func (c *BtCursor) CompareKey(key *vdbe.UnpackedRecord) (int, error) {
	if !c.Valid() {
		return 0, errors.NewVM(errors.Misuse, "compare on an invalid cursor")
	}
	return vdbe.RecordCompare(c.tree.rows[c.pos].key, key)
}

// Valid reports whether the cursor is on an entry.
func (c *BtCursor) Valid() bool {
	return c.tree != nil && c.State == CursorValid
}

// Rowid returns the rowid of the current table entry.
func (c *BtCursor) Rowid() (int64, error) {
	if !c.Valid() {
		return 0, errors.NewVM(errors.Misuse, "rowid of an invalid cursor")
	}
	if c.tree.index {
		return 0, errors.NewVM(errors.Misuse, "rowid of an index entry")
	}
	return c.tree.rows[c.pos].rowid, nil
}

// Key returns the record key of the current index entry.
func (c *BtCursor) Key() ([]byte, error) {
	if !c.Valid() {
		return nil, errors.NewVM(errors.Misuse, "key of an invalid cursor")
	}
	if !c.tree.index {
		return nil, errors.NewVM(errors.Misuse, "key of a table entry")
	}
	return c.tree.rows[c.pos].key, nil
}

// Data returns the record of the current table entry.
func (c *BtCursor) Data() ([]byte, error) {
	if !c.Valid() {
		return nil, errors.NewVM(errors.Misuse, "data of an invalid cursor")
	}
	return c.tree.rows[c.pos].data, nil
}

// Insert adds or replaces an entry and leaves the cursor on it.
func (c *BtCursor) Insert(rowid int64, key, data []byte) error {
	if err := c.check(); err != nil {
		return err
	}
	if !c.writable {
		return errors.NewVM(errors.Misuse, "insert through a read-only cursor")
	}
	rows := c.tree.rows
	var i int
	var exists bool
	if c.tree.index {
		unpacked, err := vdbe.UnpackRecord(c.keyInfo, key)
		if err != nil {
			return err
		}
		var rc int
		i, rc, err = c.search(unpacked)
		if err != nil {
			return err
		}
		exists = i < len(rows) && rc == 0
	} else {
		i = sort.Search(len(rows), func(i int) bool { return rows[i].rowid >= rowid })
		exists = i < len(rows) && rows[i].rowid == rowid
	}

	e := entry{rowid: rowid, key: append([]byte(nil), key...), data: append([]byte(nil), data...)}
	if exists {
		rows[i] = e
	} else {
		rows = append(rows, entry{})
		copy(rows[i+1:], rows[i:])
		rows[i] = e
		c.tree.rows = rows
	}
	c.set(i)
	return nil
}

// Delete removes the current entry.
func (c *BtCursor) Delete() error {
	if !c.Valid() {
		return errors.NewVM(errors.Misuse, "delete on an invalid cursor")
	}
	if !c.writable {
		return errors.NewVM(errors.Misuse, "delete through a read-only cursor")
	}
	rows := c.tree.rows
	copy(rows[c.pos:], rows[c.pos+1:])
	c.tree.rows = rows[:len(rows)-1]
	c.State = CursorSkipNext
	return nil
}

// Count returns the number of entries in the tree.
func (c *BtCursor) Count() (int64, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	return int64(len(c.tree.rows)), nil
}

// Close releases the cursor.
func (c *BtCursor) Close() error {
	c.tree = nil
	c.State = CursorInvalid
	return nil
}
