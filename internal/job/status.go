package job

import (
	"github.com/flemzord/dbpurge/internal/checkpoint"
	"github.com/flemzord/dbpurge/internal/resource"
)

// Status is the caller-facing view returned by every step.
type Status struct {
	Kind              checkpoint.Kind   `json:"kind"`
	Phase             checkpoint.Phase  `json:"phase"`
	StepsPlanned      int64             `json:"steps_planned"`
	StepsDone         int64             `json:"steps_done"`
	Progress          int               `json:"progress"`
	Finished          bool              `json:"finished"`
	Throttled         bool              `json:"throttled,omitempty"`
	Limit             int               `json:"limit,omitempty"`
	LowResourceStreak int64             `json:"low_resource_streak,omitempty"`
	Error             string            `json:"error,omitempty"`
	Resources         resource.Snapshot `json:"resources"`
}

// Progress returns the completion percentage of st in [0, 100]. A job with
// nothing planned after preprocessing counts as complete.
func Progress(st *checkpoint.State) int {
	if st == nil || st.Phase == checkpoint.PhaseCreated {
		return 0
	}
	if st.StepsPlanned <= 0 || st.Finished() {
		return 100
	}
	pct := st.StepsDone * 100 / st.StepsPlanned
	return int(min(max(pct, 0), 100))
}

// StatusOf builds a status from a checkpoint and a resource snapshot.
// Either may be nil.
func StatusOf(st *checkpoint.State, mon *resource.Monitors) Status {
	var s Status
	if mon != nil {
		s.Resources = mon.Snapshot()
	}
	if st == nil {
		s.Kind = checkpoint.KindNone
		return s
	}
	s.Kind = st.Kind
	s.Phase = st.Phase
	s.StepsPlanned = st.StepsPlanned
	s.StepsDone = st.StepsDone
	s.Progress = Progress(st)
	s.Finished = st.Finished()
	s.Limit = st.LastLimit
	s.LowResourceStreak = st.LowResourceStreak
	return s
}
