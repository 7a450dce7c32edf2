package model

import (
	"sort"
	"time"
)

// Reason codes carried by Unplaced entries.
type Reason string

const (
	ReasonDeadlineMissed       Reason = "deadline_missed"
	ReasonInsufficientCapacity Reason = "insufficient_capacity"
	ReasonOutOfHorizon         Reason = "out_of_horizon"
	ReasonInvalid              Reason = "invalid"
)

// Placement is one scheduled session of a task.
type Placement struct {
	TaskID string    `json:"task_id"`
	Block  Timeblock `json:"block"`
}

// Unplaced records a task that was not placed fully on time. For
// deadline_missed the task may be fully placed, just late.
type Unplaced struct {
	TaskID           string `json:"task_id"`
	Reason           Reason `json:"reason"`
	PlacedMinutes    int    `json:"placed_minutes"`
	RemainingMinutes int    `json:"remaining_minutes"`
	Detail           string `json:"detail,omitempty"`
}

// Schedule is the result of one scheduling run.
type Schedule struct {
	UserID     string      `json:"user_id"`
	Horizon    Interval    `json:"horizon"`
	Placements []Placement `json:"placements"`
	Unplaced   []Unplaced  `json:"unplaced"`
	Fixed      []Timeblock `json:"fixed"`
}

// Blocks returns the placed blocks in placement order.
func (s *Schedule) Blocks() []Timeblock {
	out := make([]Timeblock, len(s.Placements))
	for i, p := range s.Placements {
		out[i] = p.Block
	}
	return out
}

// Feed merges fixed and placed blocks into one timeline ordered by start.
func (s *Schedule) Feed() []Timeblock {
	out := make([]Timeblock, 0, len(s.Fixed)+len(s.Placements))
	out = append(out, s.Fixed...)
	out = append(out, s.Blocks()...)
	SortBlocks(out)
	return out
}

// Outcome returns the unplaced entry for a task, if any.
func (s *Schedule) Outcome(taskID string) (Unplaced, bool) {
	for _, u := range s.Unplaced {
		if u.TaskID == taskID {
			return u, true
		}
	}
	return Unplaced{}, false
}

// PlacedFor returns the sessions placed for a task in start order.
func (s *Schedule) PlacedFor(taskID string) []Timeblock {
	var out []Timeblock
	for _, p := range s.Placements {
		if p.TaskID == taskID {
			out = append(out, p.Block)
		}
	}
	return out
}

// PlacedDuration sums the sessions placed for a task.
func (s *Schedule) PlacedDuration(taskID string) time.Duration {
	var d time.Duration
	for _, b := range s.PlacedFor(taskID) {
		d += b.Duration()
	}
	return d
}

// SortBlocks orders blocks by start, end, then id.
func SortBlocks(blocks []Timeblock) {
	sort.SliceStable(blocks, func(i, j int) bool {
		a, b := blocks[i], blocks[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if !a.End.Equal(b.End) {
			return a.End.Before(b.End)
		}
		return a.ID < b.ID
	})
}
