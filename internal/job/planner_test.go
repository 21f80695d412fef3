package job

import (
	"math"
	"testing"
	"time"
)

func TestAdaptivePlanner_Bounded(t *testing.T) {
	t.Parallel()

	p := AdaptivePlanner{}
	times := []time.Duration{0, time.Millisecond, time.Second, time.Minute, time.Hour, 1000 * time.Hour}
	mems := []int64{0, 1, 10 << 10, 1 << 20, 128 << 20, math.MaxInt64}
	dones := []int64{0, 1, 19, 20, 21, 1000, math.MaxInt32}
	elapsed := []time.Duration{0, time.Second, time.Hour}

	for _, ta := range times {
		for _, ma := range mems {
			for _, d := range dones {
				for _, el := range elapsed {
					in := PlanInput{StepsDone: d, Elapsed: el, TimeAvailable: ta, MemoryAvailable: ma}
					got := p.Limit(in)
					if got < DefaultMinLimit || got > DefaultMaxLimit {
						t.Fatalf("Limit(%+v) = %d, out of [%d, %d]", in, got, DefaultMinLimit, DefaultMaxLimit)
					}
				}
			}
		}
	}
}

func TestAdaptivePlanner_DegradedForcesOne(t *testing.T) {
	t.Parallel()

	got := AdaptivePlanner{}.Limit(PlanInput{
		StepsDone:         500,
		Elapsed:           time.Minute,
		TimeAvailable:     time.Hour,
		MemoryAvailable:   1 << 30,
		LowResourceStreak: 3,
	})
	if got != 1 {
		t.Errorf("Limit() in degraded mode = %d, want 1", got)
	}
}

func TestAdaptivePlanner_Cases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   PlanInput
		want int
	}{
		{
			name: "no time left",
			in:   PlanInput{StepsDone: 100, Elapsed: 10 * time.Second, MemoryAvailable: 1 << 30},
			want: DefaultMinLimit,
		},
		{
			name: "warm-up caps at twenty",
			in:   PlanInput{StepsDone: 5, Elapsed: time.Second, TimeAvailable: 100 * time.Hour, MemoryAvailable: 1 << 30},
			want: 20,
		},
		{
			name: "memory bound",
			in:   PlanInput{StepsDone: 100, Elapsed: 10 * time.Second, TimeAvailable: 100 * time.Hour, MemoryAvailable: 100 * DefaultRecordCost},
			want: 100,
		},
		{
			// 10 steps/s observed, 3000 s left.
			name: "time bound",
			in:   PlanInput{StepsDone: 100, Elapsed: 10 * time.Second, TimeAvailable: 3000 * time.Second, MemoryAvailable: 1 << 30},
			want: 300,
		},
		{
			// 200 steps/s over half a second, 100000 s left.
			name: "sub-second elapsed keeps observed rate",
			in:   PlanInput{StepsDone: 100, Elapsed: 500 * time.Millisecond, TimeAvailable: 100000 * time.Second, MemoryAvailable: 1 << 30},
			want: 500,
		},
		{
			name: "clamped to max",
			in:   PlanInput{StepsDone: 100, Elapsed: 10 * time.Second, TimeAvailable: 100 * time.Hour, MemoryAvailable: 1 << 40},
			want: DefaultMaxLimit,
		},
		{
			name: "negative memory clamps to min",
			in:   PlanInput{StepsDone: 100, Elapsed: 10 * time.Second, TimeAvailable: time.Hour, MemoryAvailable: -5 << 20},
			want: DefaultMinLimit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := (AdaptivePlanner{}).Limit(tt.in); got != tt.want {
				t.Errorf("Limit() = %d, want %d", got, tt.want)
			}
		})
	}
}
