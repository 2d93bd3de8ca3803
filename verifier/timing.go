package verifier

import (
	"fmt"
	"time"
)

// Stats counts the work done by the last run.
type Stats struct {
	// Replays is the number of interleavings handed to the engine.
	Replays uint64
	// Checks is the number of assertion and invariant evaluations.
	Checks uint64
	// Explored is the number of interleavings that passed every check.
	Explored uint64

	// ReplayTime includes per-step invariant checks, CheckTime only the
	// final assertion.
	ReplayTime time.Duration
	CheckTime  time.Duration

	replayStart time.Time
	checkStart  time.Time
}

func (s *Stats) ReplayStart() {
	s.Replays++
	s.replayStart = time.Now()
}

func (s *Stats) ReplayEnd() {
	s.ReplayTime += time.Since(s.replayStart)
}

func (s *Stats) CheckStart() {
	s.Checks++
	s.checkStart = time.Now()
}

func (s *Stats) CheckEnd() {
	s.CheckTime += time.Since(s.checkStart)
}

// Overhead is the time spent checking relative to the time spent replaying.
func (s Stats) Overhead() float64 {
	if s.ReplayTime == 0 {
		return 0
	}
	return float64(s.CheckTime) / float64(s.ReplayTime)
}

func (s Stats) String() string {
	return fmt.Sprintf("replays=%d checks=%d explored=%d replay=%s check=%s overhead=%.2f",
		s.Replays, s.Checks, s.Explored, s.ReplayTime, s.CheckTime, s.Overhead())
}
