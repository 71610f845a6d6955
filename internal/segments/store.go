// Package segments holds the ordered caption segment sequence and its single
// supported mutation: replacing one segment's text.
package segments

import (
	"errors"
	"sync"

	"caption-studio/internal/domain"
)

// ErrIndexOutOfRange is returned when editing a segment index that does not
// exist in the current sequence.
var ErrIndexOutOfRange = errors.New("segment index out of range")

// Store is a passive holder for the time-coded caption lines of the current
// transcript. Order matches the server transcript 1:1 by index; edits change
// text only, never timing, order, or count.
type Store struct {
	mu       sync.RWMutex
	segments []domain.CaptionSegment
}

// NewStore creates an empty segment store.
func NewStore() *Store {
	return &Store{}
}

// Replace swaps in a new segment sequence wholesale. Prior edits are
// discarded; no merging between old and new content is attempted.
func (s *Store) Replace(segs []domain.CaptionSegment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = append([]domain.CaptionSegment(nil), segs...)
}

// Clear drops all segments.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = nil
}

// EditText replaces the text of the segment at index, leaving start, end,
// and word timings untouched.
func (s *Store) EditText(index int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.segments) {
		return ErrIndexOutOfRange
	}

	s.segments[index].Text = text
	return nil
}

// Segments returns a copy of the current sequence.
func (s *Store) Segments() []domain.CaptionSegment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.CaptionSegment(nil), s.segments...)
}

// Len reports the current segment count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.segments)
}
