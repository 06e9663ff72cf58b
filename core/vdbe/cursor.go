package vdbe

import (
	"github.com/FocuswithJustin/vdbecore/core/errors"
)

// BtCursor is a position in one ordered tree of the storage layer. Table
// trees are keyed by rowid and carry a data record; index trees are keyed
// by a record and carry no data.
type BtCursor interface {
	// First moves to the smallest entry. empty is true when the tree has
	// no entries.
	First() (empty bool, err error)
	// Last moves to the largest entry.
	Last() (empty bool, err error)
	// Next moves forward and reports whether the cursor is on an entry.
	Next() (bool, error)
	// Previous moves backward and reports whether the cursor is on an entry.
	Previous() (bool, error)

	// MovetoRowid positions a table cursor near rowid. The result is 0 on
	// an exact match, negative when the cursor is left on a smaller entry
	// and positive when it is left on a larger one. An empty tree gives a
	// negative result and an invalid cursor.
	MovetoRowid(rowid int64) (int, error)
	// MovetoKey positions an index cursor near key with the same result
	// convention as MovetoRowid.
	MovetoKey(key *UnpackedRecord) (int, error)
	// CompareKey compares the entry under the cursor with key.
	CompareKey(key *UnpackedRecord) (int, error)

	Valid() bool
	Rowid() (int64, error)
	Key() ([]byte, error)
	Data() ([]byte, error)

	// Insert writes an entry and leaves the cursor on it. Table trees use
	// rowid and data, index trees use key.
	Insert(rowid int64, key, data []byte) error
	// Delete removes the entry under the cursor. The cursor is left just
	// before the following entry so that Next reaches it.
	Delete() error
	Count() (int64, error)
	Close() error
}

// Storage opens cursors on the trees of a database.
type Storage interface {
	// Open opens the tree rooted at root. A nil KeyInfo opens a table tree.
	Open(root int, writable bool, ki *KeyInfo) (BtCursor, error)
	// OpenEphemeral creates a private tree that disappears on Close.
	OpenEphemeral(ki *KeyInfo) (BtCursor, error)
}

// CursorType represents the type of a VDBE cursor.
type CursorType uint8

const (
	CursorBTree  CursorType = 0 // B-tree cursor
	CursorPseudo CursorType = 3 // Pseudo-table cursor (single row held in a register)
)

// cacheStale is never a valid CacheCtr, so a cursor carrying it always
// re-reads its row.
const cacheStale = 0

// Cursor represents a database cursor in the VDBE.
type Cursor struct {
	CurType  CursorType // Type of cursor
	IsTable  bool       // True for rowid tables, false for indexes
	Writable bool       // True if cursor supports write operations
	NullRow  bool       // True if pointing to a row with no data

	Bt      BtCursor // Storage cursor, nil for pseudo cursors
	KeyInfo *KeyInfo // Key comparison rules for index cursors
	NField  int      // Number of columns

	PseudoReg int // Register holding the row (CursorPseudo)

	// Deferred seek set by OP_Seek and performed on first use.
	DeferredMoveto bool
	MovetoTarget   int64
	SeekResult     int

	SeqCount  int64 // Next value for OP_Sequence
	LastRowid int64 // Last rowid produced by OP_NewRowid

	// Parsed header of the current row, valid while CacheStatus equals
	// the VDBE's CacheCtr.
	CacheStatus uint32
	row         []byte
	types       []uint32
	offsets     []int
}

// invalidate marks the cached row as stale after the position moves.
func (c *Cursor) invalidate() {
	c.CacheStatus = cacheStale
	c.row = nil
	c.types = nil
	c.offsets = nil
}

// moveto performs a pending deferred seek.
func (c *Cursor) moveto() error {
	if !c.DeferredMoveto {
		return nil
	}
	res, err := c.Bt.MovetoRowid(c.MovetoTarget)
	if err != nil {
		return err
	}
	if res != 0 {
		return errors.NewVM(errors.Corrupt, "deferred seek to rowid %d found no row", c.MovetoTarget)
	}
	c.DeferredMoveto = false
	c.invalidate()
	return nil
}

func (c *Cursor) close() error {
	c.invalidate()
	if c.Bt == nil {
		return nil
	}
	bt := c.Bt
	c.Bt = nil
	return bt.Close()
}
