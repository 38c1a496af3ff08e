package hotbackup

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/paulschiretz/hotbackup/pkg/sharded"
)

// SourceFileTable maps canonical source paths to SourceFile objects and
// hosts the rename lock that makes Rename atomic against concurrent
// lookups. Its backing map shards its own locking; the rename lock is a
// single dedicated mutex because a rename must be observed atomically
// across two keys, which per-shard locking alone cannot provide.
type SourceFileTable struct {
	shards     *sharded.Map
	renameLock sync.Mutex
	group      singleflight.Group
}

// NewSourceFileTable builds an empty table with the given shard count,
// which must be a power of two.
func NewSourceFileTable(numShards int) *SourceFileTable {
	return &SourceFileTable{shards: sharded.NewMap(numShards)}
}

// GetOrCreate returns the SourceFile for canonicalPath, creating it (with a
// reference count of one) if it doesn't already exist. If it does exist,
// its reference count is bumped by one and the existing object is
// returned. Concurrent first-lookups for the same path are deduplicated via
// singleflight so exactly one SourceFile is ever created for a path that
// no caller has referenced yet.
func (t *SourceFileTable) GetOrCreate(canonicalPath string) *SourceFile {
	if v, ok := t.shards.Load(canonicalPath); ok {
		sf := v.(*SourceFile)
		sf.Ref()
		return sf
	}

	ran := false
	v, _, _ := t.group.Do(canonicalPath, func() (any, error) {
		ran = true
		actual, loaded := t.shards.LoadOrStore(canonicalPath, NewSourceFile(canonicalPath))
		sf := actual.(*SourceFile)
		if loaded {
			sf.Ref()
		}
		return sf, nil
	})
	sf := v.(*SourceFile)
	if !ran {
		// This caller joined another goroutine's in-flight call and was
		// handed its result; take this caller's own reference.
		sf.Ref()
	}
	return sf
}

// Lookup returns the SourceFile for canonicalPath without affecting its
// reference count, or nil if none exists.
func (t *SourceFileTable) Lookup(canonicalPath string) *SourceFile {
	v, ok := t.shards.Load(canonicalPath)
	if !ok {
		return nil
	}
	return v.(*SourceFile)
}

// Release drops one reference on sf and, if the count reaches zero, removes
// it from the table. The entry is looked up under sf's current name, so
// Release is safe to call after sf has been renamed.
func (t *SourceFileTable) Release(sf *SourceFile) {
	if sf.Unref() > 0 {
		return
	}
	t.shards.DeleteIf(sf.Name(), func(v any) bool {
		return v.(*SourceFile) == sf && sf.RefCount() <= 0
	})
}

// Rename atomically relocates the table entry for oldPath to newPath,
// mutating the SourceFile's stored name in place so outstanding
// Descriptions holding a pointer to it remain valid. If no entry exists for
// oldPath, Rename is a no-op (the file was never referenced by an open
// description).
func (t *SourceFileTable) Rename(oldPath, newPath string) {
	if oldPath == newPath {
		return
	}
	t.renameLock.Lock()
	defer t.renameLock.Unlock()

	v, ok := t.shards.Load(oldPath)
	if !ok {
		return
	}
	sf := v.(*SourceFile)
	t.shards.Delete(oldPath)
	sf.SetName(newPath)
	// LoadOrStore rather than Store: an extremely unlucky race could have
	// another goroutine already create a fresh SourceFile at newPath
	// between two GetOrCreate calls; the rename lock only serializes
	// renames against each other and against this table's own mutations,
	// not against GetOrCreate, so prefer the winner already installed.
	// If an entry already occupies newPath, LoadOrStore leaves it in place;
	// sf's name was still mutated above, but the table keeps pointing at
	// whichever SourceFile won the race rather than sf.
	t.shards.LoadOrStore(newPath, sf)
}

// TryRemoveIfUnlinked removes canonicalPath from the table if the entry is
// both unlinked and has no remaining references. Called after Unlink to
// eagerly drop entries nothing refers to anymore.
func (t *SourceFileTable) TryRemoveIfUnlinked(canonicalPath string) {
	t.shards.DeleteIf(canonicalPath, func(v any) bool {
		sf := v.(*SourceFile)
		return sf.Unlinked() && sf.RefCount() <= 0
	})
}
