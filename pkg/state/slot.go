// Package state holds the latest tracking result shared between the capture
// loop, the emotion callback and the render loop.
//
// Writers build a new Snapshot and swap it in whole; readers do one atomic
// load, so a reader never sees expressions from one tick and a head rotation
// from another.
package state

import (
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-facerig/pkg/emotion"
	"github.com/teslashibe/go-facerig/pkg/expression"
	"github.com/teslashibe/go-facerig/pkg/landmarks"
)

// Snapshot is an immutable view of the latest state. Do not modify a
// snapshot obtained from Load.
type Snapshot struct {
	Expressions expression.Vector
	Head        expression.HeadRotation
	HasHead     bool
	Landmarks   landmarks.Frame
	Emotions    emotion.Scores
	VisionOnly  bool
	Seq         uint64
	Time        time.Time
}

// Vision is one capture tick's output.
type Vision struct {
	Expressions expression.Vector
	Head        expression.HeadRotation
	Landmarks   landmarks.Frame
	VisionOnly  bool
}

// Slot is the single shared "latest" holder.
type Slot struct {
	p   atomic.Pointer[Snapshot]
	now func() time.Time
}

// NewSlot creates a slot holding the neutral snapshot.
func NewSlot() *Slot {
	s := &Slot{now: time.Now}
	s.p.Store(&Snapshot{Time: s.now()})
	return s
}

// Load returns the current snapshot.
func (s *Slot) Load() *Snapshot {
	return s.p.Load()
}

// StoreVision replaces the vision fields, keeping the last known emotions.
func (s *Slot) StoreVision(v Vision) {
	s.update(func(next *Snapshot) {
		next.Expressions = v.Expressions
		next.Head = v.Head
		next.HasHead = true
		next.Landmarks = v.Landmarks.Clone()
		next.VisionOnly = v.VisionOnly
	})
}

// StoreEmotions replaces the emotion scores, keeping the vision fields.
func (s *Slot) StoreEmotions(scores emotion.Scores) {
	scores = scores.Clone()
	s.update(func(next *Snapshot) {
		next.Emotions = scores
	})
}

// ClearVision resets the vision fields to neutral, keeping emotions.
// Used when the face has been absent for a sustained period.
func (s *Slot) ClearVision() {
	s.update(func(next *Snapshot) {
		next.Expressions = expression.Vector{}
		next.Head = expression.HeadRotation{}
		next.HasHead = false
		next.Landmarks = landmarks.Frame{}
	})
}

// Clear resets everything to the neutral snapshot.
func (s *Slot) Clear() {
	s.update(func(next *Snapshot) {
		*next = Snapshot{}
	})
}

// update copies the current snapshot, applies fn and swaps the copy in,
// retrying if another writer won the race.
func (s *Slot) update(fn func(next *Snapshot)) {
	for {
		cur := s.p.Load()
		next := *cur
		fn(&next)
		next.Seq = cur.Seq + 1
		next.Time = s.now()
		if s.p.CompareAndSwap(cur, &next) {
			return
		}
	}
}
