package testutil

import (
	"strconv"
	"sync"
	"time"

	"sabot-go/internal/sabot"
)

// Epoch is the time every TickingClock built by NewRunClock starts at.
var Epoch = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// TickingClock moves forward by step each time it is read, so a run that
// reads the clock at start and finish gets a non-zero duration.
type TickingClock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

var _ sabot.Clock = (*TickingClock)(nil)

// NewRunClock starts at Epoch and ticks one second per read.
func NewRunClock() *TickingClock {
	return &TickingClock{next: Epoch, step: time.Second}
}

func (c *TickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next = c.next.Add(c.step)
	return t
}

// RunIDs hands out run ids "run-1", "run-2" and so on.
type RunIDs struct {
	mu sync.Mutex
	n  int
}

var _ sabot.IDGenerator = (*RunIDs)(nil)

func (g *RunIDs) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return "run-" + strconv.Itoa(g.n)
}
