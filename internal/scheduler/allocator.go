package scheduler

import (
	"fmt"
	"sort"
	"time"

	"github.com/rcliao/timeblock/internal/model"
)

// AllocateOptions carries the run context the allocator needs.
type AllocateOptions struct {
	UserID  string
	Horizon model.Interval
	Now     time.Time

	// Reserved ids are already in use, typically by pinned sessions from an
	// earlier run. Placement numbering skips them.
	Reserved map[string]bool
}

// Allocate places pending tasks into free time.
//
// Policy:
//   - Tasks are taken in order of (deadline asc with none last, priority
//     desc, estimate asc, id asc).
//   - A task gets a single session in the earliest window that holds all of
//     it; otherwise it is split across windows, smallest window first.
//   - A task that cannot finish by its deadline is placed late if possible
//     (deadline_missed); a task that cannot be placed in full keeps what fits
//     and is marked insufficient_capacity.
//
// This is a greedy pass, not an optimal packing. Output is deterministic.
func Allocate(pending []model.Task, free []model.Interval, p model.Policy, opts AllocateOptions) (*model.Schedule, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	tasks := make([]model.Task, len(pending))
	copy(tasks, pending)
	SortTasks(tasks)

	s := &model.Schedule{
		UserID:     opts.UserID,
		Horizon:    opts.Horizon,
		Placements: []model.Placement{},
		Unplaced:   []model.Unplaced{},
	}
	ids := newIDSeq(opts.Reserved)
	avail := model.MergeIntervals(free)
	gap := time.Duration(p.SessionGapMinutes) * time.Minute

	for _, t := range tasks {
		need := t.Estimate()
		minD, maxD, err := SessionBounds(t, p)
		if err != nil {
			s.Unplaced = append(s.Unplaced, model.Unplaced{
				TaskID: t.ID, Reason: model.ReasonInvalid,
				RemainingMinutes: minutes(need), Detail: err.Error(),
			})
			continue
		}

		from := opts.Horizon.Start
		if opts.Now.After(from) {
			from = opts.Now
		}
		if t.EarliestStart != nil && t.EarliestStart.After(from) {
			from = *t.EarliestStart
		}
		var until time.Time
		if t.Deadline != nil {
			until = *t.Deadline
		}

		sessions := planSessions(avail, need, minD, maxD, gap, from, until)
		if covered(sessions) == need {
			avail = commit(s, ids, t, avail, sessions)
			continue
		}

		if t.Deadline != nil {
			sessions = planSessions(avail, need, minD, maxD, gap, from, time.Time{})
		}
		placed := covered(sessions)
		if placed == need {
			avail = commit(s, ids, t, avail, sessions)
			last := sessions[len(sessions)-1].End
			if t.Deadline != nil && last.After(*t.Deadline) {
				s.Unplaced = append(s.Unplaced, model.Unplaced{
					TaskID: t.ID, Reason: model.ReasonDeadlineMissed,
					PlacedMinutes: minutes(placed),
					Detail:        fmt.Sprintf("finishes %s after deadline", last.Sub(*t.Deadline)),
				})
			}
			continue
		}

		if len(sessions) > 0 {
			avail = commit(s, ids, t, avail, sessions)
		}
		s.Unplaced = append(s.Unplaced, model.Unplaced{
			TaskID: t.ID, Reason: model.ReasonInsufficientCapacity,
			PlacedMinutes: minutes(placed), RemainingMinutes: minutes(need - placed),
			Detail: fmt.Sprintf("%s free after %s, need %s", model.TotalDuration(clip(avail, from, time.Time{})), from.UTC().Format(time.RFC3339), need-placed),
		})
	}

	sort.SliceStable(s.Placements, func(i, j int) bool {
		a, b := s.Placements[i].Block, s.Placements[j].Block
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.ID < b.ID
	})
	return s, nil
}

// SortTasks orders tasks the way Allocate consumes them.
func SortTasks(tasks []model.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		switch {
		case a.Deadline != nil && b.Deadline == nil:
			return true
		case a.Deadline == nil && b.Deadline != nil:
			return false
		case a.Deadline != nil && !a.Deadline.Equal(*b.Deadline):
			return a.Deadline.Before(*b.Deadline)
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Estimate() != b.Estimate() {
			return a.Estimate() < b.Estimate()
		}
		return a.ID < b.ID
	})
}

// SessionBounds resolves a task's effective session length range. Explicit
// task values win over policy defaults; a default minimum is clamped to the
// estimate.
func SessionBounds(t model.Task, p model.Policy) (time.Duration, time.Duration, error) {
	est := t.Estimate()

	minD := time.Duration(t.MinSessionMinutes) * time.Minute
	minExplicit := t.MinSessionMinutes > 0
	if !minExplicit {
		minD = time.Duration(p.DefaultMinSessionMinutes) * time.Minute
		if minD > est {
			minD = est
		}
	}
	if minD > est {
		return 0, 0, &model.ValidationError{Record: t.ID, Field: "min_session_minutes",
			Msg: fmt.Sprintf("min session %s exceeds estimate %s", minD, est)}
	}

	maxD := time.Duration(t.MaxSessionMinutes) * time.Minute
	maxExplicit := t.MaxSessionMinutes > 0
	if !maxExplicit {
		maxD = time.Duration(p.DefaultMaxSessionMinutes) * time.Minute
		if maxD == 0 {
			maxD = est
		}
	}

	if maxD < minD {
		switch {
		case maxExplicit && minExplicit:
			return 0, 0, &model.ValidationError{Record: t.ID, Field: "max_session_minutes",
				Msg: fmt.Sprintf("max %s is below min %s", maxD, minD)}
		case maxExplicit:
			minD = maxD
		default:
			maxD = minD
		}
	}

	floor := time.Minute
	if est < floor {
		floor = est
	}
	if minD < floor {
		minD = floor
	}
	if maxD < minD {
		maxD = minD
	}
	return minD, maxD, nil
}

// planSessions chooses sessions for need within [from, until) without
// touching free. A zero until means no upper limit. The result may cover
// less than need.
func planSessions(free []model.Interval, need, minD, maxD, gap time.Duration, from, until time.Time) []model.Interval {
	usable := clip(free, from, until)

	if need <= maxD {
		for _, u := range usable {
			if u.Duration() >= need {
				return []model.Interval{{Start: u.Start, End: u.Start.Add(need)}}
			}
		}
	}

	cands := make([]model.Interval, 0, len(usable))
	for _, u := range usable {
		if u.Duration() >= minD {
			cands = append(cands, u)
		}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		di, dj := cands[i].Duration(), cands[j].Duration()
		if di != dj {
			return di < dj
		}
		return cands[i].Start.Before(cands[j].Start)
	})

	var sessions []model.Interval
	remaining := need
	for _, u := range cands {
		cursor := u.Start
		for remaining > 0 {
			s := u.End.Sub(cursor)
			if s > maxD {
				s = maxD
			}
			if s > remaining {
				s = remaining
			}
			// Never leave a tail shorter than a minimum session.
			if rest := remaining - s; rest > 0 && rest < minD {
				s = remaining - minD
			}
			if s < minD {
				break
			}
			sessions = append(sessions, model.Interval{Start: cursor, End: cursor.Add(s)})
			remaining -= s
			cursor = cursor.Add(s + gap)
		}
		if remaining == 0 {
			break
		}
	}
	model.SortIntervals(sessions)
	return sessions
}

// clip narrows free intervals to [from, until). A zero until is unbounded.
func clip(free []model.Interval, from, until time.Time) []model.Interval {
	out := make([]model.Interval, 0, len(free))
	for _, iv := range free {
		if iv.Start.Before(from) {
			iv.Start = from
		}
		if !until.IsZero() && iv.End.After(until) {
			iv.End = until
		}
		if !iv.Empty() {
			out = append(out, iv)
		}
	}
	return out
}

func covered(sessions []model.Interval) time.Duration {
	return model.TotalDuration(sessions)
}

// idSeq hands out placement ids of the form <task>/<n>, lowest n first,
// skipping ids that are reserved or already handed out.
type idSeq struct {
	used map[string]bool
	next map[string]int
}

func newIDSeq(reserved map[string]bool) *idSeq {
	used := make(map[string]bool, len(reserved))
	for id := range reserved {
		used[id] = true
	}
	return &idSeq{used: used, next: make(map[string]int)}
}

func (q *idSeq) take(taskID string) string {
	n := q.next[taskID]
	id := fmt.Sprintf("%s/%d", taskID, n)
	for q.used[id] {
		n++
		id = fmt.Sprintf("%s/%d", taskID, n)
	}
	q.used[id] = true
	q.next[taskID] = n + 1
	return id
}

// commit records sessions for t and returns the shrunken free list.
func commit(s *model.Schedule, ids *idSeq, t model.Task, free []model.Interval, sessions []model.Interval) []model.Interval {
	title := t.Title
	if title == "" {
		title = t.ID
	}
	for _, iv := range sessions {
		s.Placements = append(s.Placements, model.Placement{
			TaskID: t.ID,
			Block: model.Timeblock{
				ID:     ids.take(t.ID),
				Source: model.SourceTask,
				Title:  title,
				Start:  iv.Start.UTC(),
				End:    iv.End.UTC(),
				LinkID: t.LinkID,
				TaskID: t.ID,
			},
		})
	}
	return model.SubtractIntervals(free, sessions)
}
