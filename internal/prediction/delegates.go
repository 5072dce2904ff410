package prediction

import (
	"maps"
	"slices"
)

type keyCallbacks struct {
	rejected []func()
	caughtUp []func()
}

// Delegates tracks per-key callbacks fired when the authority rejects a
// prediction or when replicated state catches up to it.
//
// Not safe for concurrent use.
type Delegates struct {
	byKey        map[int32]*keyCallbacks
	lastCaughtUp int32
}

// NewDelegates creates an empty Delegates.
func NewDelegates() *Delegates {
	return &Delegates{byKey: make(map[int32]*keyCallbacks)}
}

func (d *Delegates) entry(id int32) *keyCallbacks {
	e := d.byKey[id]
	if e == nil {
		e = &keyCallbacks{}
		d.byKey[id] = e
	}
	return e
}

// OnRejected registers fn for when k is rejected.
func (d *Delegates) OnRejected(k Key, fn func()) {
	if !k.IsValid() {
		return
	}
	e := d.entry(k.ID)
	e.rejected = append(e.rejected, fn)
}

// OnCaughtUp registers fn for when replicated state reaches k.
func (d *Delegates) OnCaughtUp(k Key, fn func()) {
	if !k.IsValid() {
		return
	}
	e := d.entry(k.ID)
	e.caughtUp = append(e.caughtUp, fn)
}

// OnRejectedOrCaughtUp registers fn for whichever happens first.
func (d *Delegates) OnRejectedOrCaughtUp(k Key, fn func()) {
	if !k.IsValid() {
		return
	}
	fired := false
	once := func() {
		if fired {
			return
		}
		fired = true
		fn()
	}
	d.OnRejected(k, once)
	d.OnCaughtUp(k, once)
}

// Reject fires the rejected callbacks of k and forgets the key.
func (d *Delegates) Reject(k Key) {
	e := d.byKey[k.ID]
	if e == nil {
		return
	}
	delete(d.byKey, k.ID)
	for _, fn := range e.rejected {
		fn()
	}
}

// CatchUpTo fires the caught-up callbacks of every key up to and including
// k, in ascending key order.
func (d *Delegates) CatchUpTo(k Key) {
	if k.ID <= d.lastCaughtUp {
		return
	}
	d.lastCaughtUp = k.ID
	for _, id := range slices.Sorted(maps.Keys(d.byKey)) {
		if id > k.ID {
			break
		}
		e := d.byKey[id]
		delete(d.byKey, id)
		for _, fn := range e.caughtUp {
			fn()
		}
	}
}

// Pending returns the number of keys with outstanding callbacks.
func (d *Delegates) Pending() int {
	return len(d.byKey)
}
