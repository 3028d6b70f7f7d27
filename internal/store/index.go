package store

import (
	"github.com/RoaringBitmap/roaring"
)

// index maps a label value to the bitmap of event ordinals carrying it.
// Callers hold the store lock.
type index struct {
	name string
	sets map[string]*roaring.Bitmap
}

func newIndex(name string) *index {
	return &index{name: name, sets: make(map[string]*roaring.Bitmap)}
}

func (x *index) add(key string, ord uint32) {
	bm, ok := x.sets[key]
	if !ok {
		bm = roaring.New()
		x.sets[key] = bm
	}
	bm.Add(ord)
}

// remove drops ord from key and forgets the key once its set is empty.
func (x *index) remove(key string, ord uint32) {
	bm, ok := x.sets[key]
	if !ok {
		return
	}
	bm.Remove(ord)
	if bm.IsEmpty() {
		delete(x.sets, key)
	}
}

// get returns the live bitmap for key, or nil.
func (x *index) get(key string) *roaring.Bitmap {
	return x.sets[key]
}

// counts returns the cardinality per key.
func (x *index) counts() map[string]int {
	out := make(map[string]int, len(x.sets))
	for k, bm := range x.sets {
		out[k] = int(bm.GetCardinality())
	}
	return out
}
