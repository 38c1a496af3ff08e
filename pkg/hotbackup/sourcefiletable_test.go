package hotbackup

import "testing"

func TestSourceFileTableGetOrCreate(t *testing.T) {
	tbl := NewSourceFileTable(4)

	a := tbl.GetOrCreate("/src/a")
	if a.RefCount() != 1 {
		t.Fatalf("RefCount() = %d, want 1", a.RefCount())
	}

	b := tbl.GetOrCreate("/src/a")
	if b != a {
		t.Fatal("GetOrCreate for the same path returned a different object")
	}
	if a.RefCount() != 2 {
		t.Fatalf("RefCount() after second GetOrCreate = %d, want 2", a.RefCount())
	}
}

func TestSourceFileTableLookup(t *testing.T) {
	tbl := NewSourceFileTable(4)
	if tbl.Lookup("/src/a") != nil {
		t.Fatal("Lookup on an empty table returned a non-nil SourceFile")
	}
	sf := tbl.GetOrCreate("/src/a")
	if tbl.Lookup("/src/a") != sf {
		t.Fatal("Lookup did not return the object created by GetOrCreate")
	}
}

func TestSourceFileTableRelease(t *testing.T) {
	tbl := NewSourceFileTable(4)
	sf := tbl.GetOrCreate("/src/a")
	tbl.GetOrCreate("/src/a") // refcount 2

	tbl.Release(sf)
	if tbl.Lookup("/src/a") == nil {
		t.Fatal("entry removed while a reference remained")
	}

	tbl.Release(sf)
	if tbl.Lookup("/src/a") != nil {
		t.Fatal("entry survived after its last reference was released")
	}
}

func TestSourceFileTableRename(t *testing.T) {
	tbl := NewSourceFileTable(4)
	sf := tbl.GetOrCreate("/src/a")

	tbl.Rename("/src/a", "/src/b")

	if tbl.Lookup("/src/a") != nil {
		t.Fatal("old path still resolves after Rename")
	}
	if tbl.Lookup("/src/b") != sf {
		t.Fatal("new path does not resolve to the renamed SourceFile")
	}
	if sf.Name() != "/src/b" {
		t.Fatalf("SourceFile.Name() = %q, want %q", sf.Name(), "/src/b")
	}
}

func TestSourceFileTableRenameKeepsExistingOccupant(t *testing.T) {
	tbl := NewSourceFileTable(4)
	moved := tbl.GetOrCreate("/src/a")
	occupant := tbl.GetOrCreate("/src/b") // already present at the rename target

	tbl.Rename("/src/a", "/src/b")

	if got := tbl.Lookup("/src/b"); got != occupant {
		t.Fatalf("Lookup(%q) = %p, want the pre-existing occupant %p", "/src/b", got, occupant)
	}
	if tbl.Lookup("/src/a") != nil {
		t.Fatal("old path still resolves after Rename")
	}
	if moved.Name() != "/src/b" {
		t.Fatalf("moved SourceFile.Name() = %q, want %q (name still updates even when not installed)", moved.Name(), "/src/b")
	}
}

func TestSourceFileTableRenameMissingIsNoop(t *testing.T) {
	tbl := NewSourceFileTable(4)
	tbl.Rename("/src/missing", "/src/also-missing") // must not panic
	if tbl.Lookup("/src/also-missing") != nil {
		t.Fatal("Rename of an untracked path created an entry")
	}
}

func TestSourceFileTableTryRemoveIfUnlinked(t *testing.T) {
	tbl := NewSourceFileTable(4)
	sf := tbl.GetOrCreate("/src/a")
	sf.Unref() // drop to zero references without going through Release

	tbl.TryRemoveIfUnlinked("/src/a")
	if tbl.Lookup("/src/a") == nil {
		t.Fatal("entry removed before being marked unlinked")
	}

	sf.MarkUnlinked()
	tbl.TryRemoveIfUnlinked("/src/a")
	if tbl.Lookup("/src/a") != nil {
		t.Fatal("unlinked entry with no remaining references was not removed")
	}
}
