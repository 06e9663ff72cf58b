package btree

import (
	"testing"

	"github.com/FocuswithJustin/vdbecore/core/errors"
	"github.com/FocuswithJustin/vdbecore/core/utf"
	"github.com/FocuswithJustin/vdbecore/core/vdbe"
)

// record encodes Go values with the record codec.
func record(t *testing.T, vals ...interface{}) []byte {
	t.Helper()
	mems := make([]*vdbe.Mem, len(vals))
	for i, val := range vals {
		switch x := val.(type) {
		case nil:
			mems[i] = vdbe.NewMemNull()
		case int:
			mems[i] = vdbe.NewMemInt(int64(x))
		case int64:
			mems[i] = vdbe.NewMemInt(x)
		case float64:
			mems[i] = vdbe.NewMemReal(x)
		case string:
			mems[i] = vdbe.NewMemStr(x)
		case []byte:
			mems[i] = vdbe.NewMemBlob(x)
		default:
			t.Fatalf("record: unsupported value %T", val)
		}
	}
	out := vdbe.NewMem()
	if err := vdbe.MakeRecord(out, mems, "", 4, 1<<20); err != nil {
		t.Fatalf("MakeRecord failed: %v", err)
	}
	return out.Bytes()
}

func twoColumnKeys() *vdbe.KeyInfo {
	return &vdbe.KeyInfo{Collations: []utf.Collation{utf.Binary, utf.Binary}}
}

func newTable(t *testing.T, bt *Btree, rowids ...int64) int {
	t.Helper()
	root := bt.CreateTable()
	cur, err := bt.Open(root, true, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer cur.Close()
	for _, rowid := range rowids {
		if err := cur.Insert(rowid, nil, record(t, rowid*10)); err != nil {
			t.Fatalf("Insert(%d) failed: %v", rowid, err)
		}
	}
	return root
}

func TestTableCursorOrder(t *testing.T) {
	bt := New()
	root := newTable(t, bt, 3, 1, 2)

	cur, err := bt.Open(root, false, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	empty, err := cur.First()
	if err != nil || empty {
		t.Fatalf("First() = %v, %v, want false, nil", empty, err)
	}
	var got []int64
	for ok := true; ok; ok, _ = cur.Next() {
		rowid, err := cur.Rowid()
		if err != nil {
			t.Fatalf("Rowid failed: %v", err)
		}
		got = append(got, rowid)
	}
	want := []int64{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("scan = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("scan[%d] = %d, want %d", i, got[i], want[i])
		}
	}
	if n, _ := cur.Count(); n != 3 {
		t.Errorf("Count() = %d, want 3", n)
	}
}

func TestMovetoRowid(t *testing.T) {
	bt := New()
	root := newTable(t, bt, 10, 20, 30)

	tests := []struct {
		name    string
		rowid   int64
		wantRes int
		wantPos int64
	}{
		{"Exact", 20, 0, 20},
		{"Between", 15, 1, 20},
		{"BeforeFirst", 5, 1, 10},
		{"PastEnd", 35, -1, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cur, _ := bt.Open(root, false, nil)
			res, err := cur.MovetoRowid(tt.rowid)
			if err != nil {
				t.Fatalf("MovetoRowid failed: %v", err)
			}
			if res != tt.wantRes {
				t.Errorf("MovetoRowid(%d) = %d, want %d", tt.rowid, res, tt.wantRes)
			}
			if rowid, _ := cur.Rowid(); rowid != tt.wantPos {
				t.Errorf("cursor on %d, want %d", rowid, tt.wantPos)
			}
		})
	}

	t.Run("Empty", func(t *testing.T) {
		cur, _ := bt.Open(bt.CreateTable(), false, nil)
		res, err := cur.MovetoRowid(1)
		if err != nil || res >= 0 || cur.Valid() {
			t.Errorf("MovetoRowid on empty = %d, %v, valid=%v; want negative, nil, false", res, err, cur.Valid())
		}
	})
}

func TestIndexCursor(t *testing.T) {
	bt := New()
	ki := twoColumnKeys()
	root := bt.CreateIndex(ki)
	cur, err := bt.Open(root, true, ki)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	for i, name := range []string{"c", "a", "b"} {
		if err := cur.Insert(0, record(t, name, i+1), nil); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	probe := func(name string, defaultRC int) *vdbe.UnpackedRecord {
		return &vdbe.UnpackedRecord{KeyInfo: ki, Mems: []*vdbe.Mem{vdbe.NewMemStr(name)}, DefaultRC: defaultRC}
	}

	tests := []struct {
		name      string
		key       *vdbe.UnpackedRecord
		wantRes   int
		wantFirst string
	}{
		{"PrefixMatch", probe("b", 0), 0, "b"},
		{"PrefixAfter", probe("b", -1), 1, "c"},
		{"PrefixBefore", probe("b", 1), 1, "b"},
		{"Missing", probe("bb", 0), 1, "c"},
		{"PastEnd", probe("z", 0), -1, "c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := cur.MovetoKey(tt.key)
			if err != nil {
				t.Fatalf("MovetoKey failed: %v", err)
			}
			if res != tt.wantRes {
				t.Errorf("MovetoKey() = %d, want %d", res, tt.wantRes)
			}
			key, err := cur.Key()
			if err != nil {
				t.Fatalf("Key failed: %v", err)
			}
			mems, err := vdbe.DecodeRecord(key)
			if err != nil {
				t.Fatalf("DecodeRecord failed: %v", err)
			}
			if got := mems[0].TextValue(); got != tt.wantFirst {
				t.Errorf("cursor on %q, want %q", got, tt.wantFirst)
			}
		})
	}

	t.Run("DuplicateReplaces", func(t *testing.T) {
		if err := cur.Insert(0, record(t, "a", 2), nil); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		if n, _ := cur.Count(); n != 3 {
			t.Errorf("Count() = %d, want 3", n)
		}
	})
}

func TestDeleteKeepsScanPosition(t *testing.T) {
	bt := New()
	root := newTable(t, bt, 1, 2, 3, 4)
	cur, _ := bt.Open(root, true, nil)

	if _, err := cur.MovetoRowid(2); err != nil {
		t.Fatalf("MovetoRowid failed: %v", err)
	}
	if err := cur.Delete(); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if cur.Valid() {
		t.Error("cursor should not be on an entry right after Delete")
	}
	ok, _ := cur.Next()
	if !ok {
		t.Fatal("Next after Delete found nothing")
	}
	if rowid, _ := cur.Rowid(); rowid != 3 {
		t.Errorf("Next after Delete landed on %d, want 3", rowid)
	}

	cur.MovetoRowid(4)
	cur.Delete()
	if ok, _ := cur.Next(); ok {
		t.Error("Next after deleting the last entry should find nothing")
	}
	if n, _ := cur.Count(); n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
}

func TestOpenErrors(t *testing.T) {
	bt := New()
	table := bt.CreateTable()

	if _, err := bt.Open(99, false, nil); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Open(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := bt.Open(table, false, twoColumnKeys()); errors.CodeOf(err) != errors.Misuse {
		t.Errorf("Open(table as index) code = %v, want MISUSE", errors.CodeOf(err))
	}

	cur, _ := bt.Open(table, false, nil)
	if err := cur.Insert(1, nil, nil); errors.CodeOf(err) != errors.Misuse {
		t.Errorf("Insert on read-only cursor code = %v, want MISUSE", errors.CodeOf(err))
	}
	cur.Close()
	if _, err := cur.First(); err == nil {
		t.Error("First on a closed cursor should fail")
	}
}

func TestEphemeralIsPrivate(t *testing.T) {
	bt := New()
	a, _ := bt.OpenEphemeral(nil)
	b, _ := bt.OpenEphemeral(nil)
	if err := a.Insert(1, nil, record(t, 1)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if n, _ := b.Count(); n != 0 {
		t.Errorf("second ephemeral tree has %d entries, want 0", n)
	}
}
