package task

import (
	"time"

	"github.com/javiermolinar/studyplanner/internal/dateutil"
)

// StudyBlock is a contiguous interval allocated to a task.
type StudyBlock struct {
	ID     int64
	TaskID int64
	Start  time.Time
	End    time.Time
	// ExternalEventID is the mirror on the external calendar. Empty until mirrored.
	ExternalEventID string
}

// Duration returns the block length.
func (b *StudyBlock) Duration() time.Duration {
	return b.End.Sub(b.Start)
}

// Minutes returns the block length in whole minutes.
func (b *StudyBlock) Minutes() int {
	return int(b.Duration() / time.Minute)
}

// Overlaps reports whether the block intersects the half-open range [start, end).
func (b *StudyBlock) Overlaps(start, end time.Time) bool {
	return end.After(b.Start) && start.Before(b.End)
}

// IsMirrored reports whether the block has an external calendar copy.
func (b *StudyBlock) IsMirrored() bool {
	return b.ExternalEventID != ""
}

// Moved returns a copy of b starting at newStart with the same duration.
func (b *StudyBlock) Moved(newStart time.Time) *StudyBlock {
	moved := *b
	moved.Start = newStart
	moved.End = newStart.Add(b.Duration())
	return &moved
}

// MinutesByDate sums block minutes per local date key in loc.
// A block is counted on the date it starts.
func MinutesByDate(blocks []*StudyBlock, loc *time.Location) map[string]int {
	load := make(map[string]int)
	for _, b := range blocks {
		load[dateutil.DateKey(b.Start.In(loc))] += b.Minutes()
	}
	return load
}

// TotalMinutes sums the length of all blocks.
func TotalMinutes(blocks []*StudyBlock) int {
	total := 0
	for _, b := range blocks {
		total += b.Minutes()
	}
	return total
}
