// README: Kitchen priority scheduler blending elapsed preparation time with promised slots.
package kitchen

import (
	"math"
	"sort"
	"time"

	"kitchenline/internal/modules/order"
)

type ElapsedTier string

const (
	ElapsedNormal  ElapsedTier = "normal"
	ElapsedWarning ElapsedTier = "warning"
	ElapsedDanger  ElapsedTier = "danger"
)

type DeadlineTier string

const (
	DeadlineNone     DeadlineTier = ""
	DeadlineNormal   DeadlineTier = "normal"
	DeadlineUrgent   DeadlineTier = "urgent"
	DeadlineCritical DeadlineTier = "critical"
)

type Thresholds struct {
	WarningAfter   time.Duration
	DangerAfter    time.Duration
	CriticalWithin time.Duration
	UrgentWithin   time.Duration
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		WarningAfter:   15 * time.Minute,
		DangerAfter:    25 * time.Minute,
		CriticalWithin: 5 * time.Minute,
		UrgentWithin:   15 * time.Minute,
	}
}

// Priority is recomputed on every render and never stored.
type Priority struct {
	Elapsed      time.Duration
	ElapsedTier  ElapsedTier
	HasDeadline  bool
	Deadline     time.Time
	Until        time.Duration
	DeadlineTier DeadlineTier
	Urgent       bool
}

type Scheduler struct {
	th  Thresholds
	loc *time.Location
}

// NewScheduler interprets slots in loc; nil means time.Local.
func NewScheduler(th Thresholds, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{th: th, loc: loc}
}

func (s *Scheduler) Priority(o *order.Order, now time.Time) Priority {
	p := Priority{Elapsed: now.Sub(o.CreatedAt)}
	switch {
	case p.Elapsed >= s.th.DangerAfter:
		p.ElapsedTier = ElapsedDanger
	case p.Elapsed >= s.th.WarningAfter:
		p.ElapsedTier = ElapsedWarning
	default:
		p.ElapsedTier = ElapsedNormal
	}

	// A slot that does not parse is treated as absent.
	if slot := o.Slot(); slot != nil {
		if at, err := slot.At(s.loc); err == nil {
			p.HasDeadline = true
			p.Deadline = at
			p.Until = at.Sub(now)
			switch {
			case p.Until <= s.th.CriticalWithin:
				p.DeadlineTier = DeadlineCritical
			case p.Until <= s.th.UrgentWithin:
				p.DeadlineTier = DeadlineUrgent
			default:
				p.DeadlineTier = DeadlineNormal
			}
		}
	}
	p.Urgent = p.ElapsedTier == ElapsedDanger || p.DeadlineTier == DeadlineCritical
	return p
}

// Entry is one row of a rendered queue.
type Entry struct {
	Order          *order.Order `json:"order"`
	ElapsedTier    ElapsedTier  `json:"elapsedTier"`
	ElapsedMinutes int          `json:"elapsedMinutes"`
	DeadlineTier   DeadlineTier `json:"deadlineTier,omitempty"`
	MinutesUntil   *int         `json:"minutesUntil,omitempty"`
	Urgent         bool         `json:"urgent"`

	priority Priority
}

// Less orders dated entries before undated ones, dated by time left, undated by age.
func Less(a, b Entry) bool {
	pa, pb := a.priority, b.priority
	if pa.HasDeadline != pb.HasDeadline {
		return pa.HasDeadline
	}
	if pa.HasDeadline && pa.Until != pb.Until {
		return pa.Until < pb.Until
	}
	if !a.Order.CreatedAt.Equal(b.Order.CreatedAt) {
		return a.Order.CreatedAt.Before(b.Order.CreatedAt)
	}
	return a.Order.ID < b.Order.ID
}

// Sort returns every order in priority order.
func (s *Scheduler) Sort(orders []*order.Order, now time.Time) []Entry {
	out := make([]Entry, 0, len(orders))
	for _, o := range orders {
		out = append(out, s.entry(o, now))
	}
	sort.SliceStable(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out
}

// KitchenQueue keeps only orders the kitchen still has to act on.
func (s *Scheduler) KitchenQueue(orders []*order.Order, now time.Time) []Entry {
	active := make([]*order.Order, 0, len(orders))
	for _, o := range orders {
		switch o.Status {
		case order.StatusPending, order.StatusPreparing, order.StatusReady:
			active = append(active, o)
		}
	}
	return s.Sort(active, now)
}

func (s *Scheduler) entry(o *order.Order, now time.Time) Entry {
	p := s.Priority(o, now)
	e := Entry{
		Order:          o,
		ElapsedTier:    p.ElapsedTier,
		ElapsedMinutes: int(p.Elapsed / time.Minute),
		DeadlineTier:   p.DeadlineTier,
		Urgent:         p.Urgent,
		priority:       p,
	}
	if p.HasDeadline {
		m := int(math.Floor(p.Until.Minutes()))
		e.MinutesUntil = &m
	}
	return e
}
