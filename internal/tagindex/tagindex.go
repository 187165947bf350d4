// Package tagindex maintains the secondary tag → keys index used for bulk
// invalidation. It keeps a reverse key → tags map so a key's memberships can
// be diffed on rewrite and dropped on removal without scanning every tag.
//
// Index is safe for concurrent use. The cache mutates it only from its entry
// write path, while holding the owning shard's lock.
package tagindex

import "sync"

type set map[string]struct{}

// Index maps tags to keys and keys to tags.
type Index struct {
	mu    sync.RWMutex
	byTag map[string]set
	byKey map[string]set
}

// New returns an empty index.
func New() *Index {
	return &Index{
		byTag: make(map[string]set),
		byKey: make(map[string]set),
	}
}

// Add indexes key under tag.
func (x *Index) Add(tag, key string) {
	x.mu.Lock()
	x.addLocked(tag, key)
	x.mu.Unlock()
}

// Set replaces key's memberships with tags: the key is dropped from tags it
// no longer carries and added to new ones. An empty tags removes the key.
func (x *Index) Set(key string, tags []string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	want := make(set, len(tags))
	for _, t := range tags {
		want[t] = struct{}{}
	}
	for t := range x.byKey[key] {
		if _, keep := want[t]; !keep {
			x.removeLocked(t, key)
		}
	}
	for t := range want {
		x.addLocked(t, key)
	}
}

// RemoveKey drops key from every tag it is indexed under.
func (x *Index) RemoveKey(key string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for t := range x.byKey[key] {
		x.removeLocked(t, key)
	}
}

// Keys returns a snapshot of the keys currently indexed under tag.
func (x *Index) Keys(tag string) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	ks := x.byTag[tag]
	out := make([]string, 0, len(ks))
	for k := range ks {
		out = append(out, k)
	}
	return out
}

// Has reports whether key is indexed under tag.
func (x *Index) Has(tag, key string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.byTag[tag][key]
	return ok
}

// Tags returns the number of non-empty tags.
func (x *Index) Tags() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byTag)
}

func (x *Index) addLocked(tag, key string) {
	ks := x.byTag[tag]
	if ks == nil {
		ks = make(set)
		x.byTag[tag] = ks
	}
	ks[key] = struct{}{}

	ts := x.byKey[key]
	if ts == nil {
		ts = make(set)
		x.byKey[key] = ts
	}
	ts[tag] = struct{}{}
}

func (x *Index) removeLocked(tag, key string) {
	if ks := x.byTag[tag]; ks != nil {
		delete(ks, key)
		if len(ks) == 0 {
			delete(x.byTag, tag)
		}
	}
	if ts := x.byKey[key]; ts != nil {
		delete(ts, tag)
		if len(ts) == 0 {
			delete(x.byKey, key)
		}
	}
}
