package job

import (
	"math"
	"time"
)

// Chunk sizing defaults.
const (
	DefaultMinLimit     = 5
	DefaultMaxLimit     = 800
	DefaultWarmupSteps  = 20
	DefaultRecordCost   = 10 << 10
	DefaultStreakCap    = 30
	defaultRate         = 20
	minRate             = 10
	degradedChunkLimit  = 1
	minElapsedForRating = time.Millisecond
)

// PlanInput is the budget and history the planner sizes a chunk from.
type PlanInput struct {
	StepsDone         int64
	Elapsed           time.Duration
	TimeAvailable     time.Duration
	MemoryAvailable   int64
	LowResourceStreak int64
}

// ChunkPlanner picks the number of records to request next.
type ChunkPlanner interface {
	Limit(in PlanInput) int
}

// AdaptivePlanner balances the time and memory budgets against the observed
// throughput. The zero value uses the defaults.
type AdaptivePlanner struct {
	MinLimit    int
	MaxLimit    int
	WarmupSteps int64
	RecordCost  int64
}

var _ ChunkPlanner = AdaptivePlanner{}

func (p AdaptivePlanner) withDefaults() AdaptivePlanner {
	if p.MinLimit <= 0 {
		p.MinLimit = DefaultMinLimit
	}
	if p.MaxLimit < p.MinLimit {
		p.MaxLimit = max(DefaultMaxLimit, p.MinLimit)
	}
	if p.WarmupSteps <= 0 {
		p.WarmupSteps = DefaultWarmupSteps
	}
	if p.RecordCost <= 0 {
		p.RecordCost = DefaultRecordCost
	}
	return p
}

// Limit returns a value in [MinLimit, MaxLimit], or exactly 1 while a
// low-resource streak is pending.
func (p AdaptivePlanner) Limit(in PlanInput) int {
	if in.LowResourceStreak > 0 {
		return degradedChunkLimit
	}
	p = p.withDefaults()

	// Observed rate is stepsDone/elapsed; the floor only guards a zero elapsed.
	rate := float64(defaultRate)
	if in.StepsDone > 0 {
		elapsed := max(in.Elapsed, minElapsedForRating)
		rate = float64(in.StepsDone) / elapsed.Seconds()
	}
	rate = max(rate, minRate)

	byTime := 1.0
	if in.TimeAvailable > 0 {
		byTime = in.TimeAvailable.Seconds() / rate
	}
	byMem := float64(in.MemoryAvailable) / float64(p.RecordCost)

	limit := math.Min(byTime, byMem)
	if in.StepsDone < p.WarmupSteps {
		limit = math.Min(limit, float64(p.WarmupSteps))
	}

	if math.IsNaN(limit) || limit < float64(p.MinLimit) {
		return p.MinLimit
	}
	if limit > float64(p.MaxLimit) {
		return p.MaxLimit
	}
	return int(limit)
}
