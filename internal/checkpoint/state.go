// Package checkpoint persists the state of the single active purge job
// between short-lived step invocations.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Kind identifies which job variant owns a State.
type Kind string

// Job kinds.
const (
	KindNone      Kind = "none"
	KindSitePurge Kind = "site-purge"
	KindLogPurge  Kind = "log-purge"
	KindOptimize  Kind = "optimize"
)

// Valid reports whether k names a runnable job kind.
func (k Kind) Valid() bool {
	switch k {
	case KindSitePurge, KindLogPurge, KindOptimize:
		return true
	}
	return false
}

// Phase is the lifecycle position of a job. Phases only move forward.
type Phase string

// Lifecycle phases in order.
const (
	PhaseCreated       Phase = "created"
	PhasePreprocessed  Phase = "preprocessed"
	PhaseLooping       Phase = "looping"
	PhasePostprocessed Phase = "postprocessed"
)

var phaseOrder = []Phase{PhaseCreated, PhasePreprocessed, PhaseLooping, PhasePostprocessed}

func (p Phase) rank() int { return slices.Index(phaseOrder, p) }

// Config carries the kind-specific parameters of a job.
type Config struct {
	// SiteID is the site purged by a site-purge job.
	SiteID int64 `json:"site_id,omitempty"`

	// SiteName is the display name of SiteID, kept for the artifact name.
	SiteName string `json:"site_name,omitempty"`

	// Until is the cutoff of a log-purge job: older records are purged.
	Until time.Time `json:"until,omitzero"`

	// Artifact is the backup file receiving the dump, without extension.
	Artifact string `json:"artifact,omitempty"`

	// Tables holds the tables still to process, resolved at preprocess.
	Tables []string `json:"tables,omitempty"`
}

// State is one job's checkpoint, serialized wholesale.
type State struct {
	Kind              Kind      `json:"kind"`
	Token             string    `json:"token"`
	Phase             Phase     `json:"phase"`
	StepsPlanned      int64     `json:"steps_planned"`
	StepsDone         int64     `json:"steps_done"`
	StartedAt         time.Time `json:"started_at,omitzero"`
	FinishedAt        time.Time `json:"finished_at,omitzero"`
	LowResourceStreak int64     `json:"low_resource_streak"`
	LastLimit         int       `json:"last_limit,omitempty"`
	Config            Config    `json:"config"`

	// Version is bumped by every successful Store.Set and guards against
	// concurrent writers.
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// New returns a fresh State in the created phase.
func New(kind Kind, token string, cfg Config) *State {
	return &State{
		Kind:   kind,
		Token:  token,
		Phase:  PhaseCreated,
		Config: cfg,
	}
}

// Advance moves the state to phase p. Moving backwards is an error;
// re-entering the current phase is a no-op.
func (s *State) Advance(p Phase) error {
	if p.rank() < 0 {
		return fmt.Errorf("checkpoint: unknown phase %q", p)
	}
	if p.rank() < s.Phase.rank() {
		return fmt.Errorf("checkpoint: phase %s cannot regress to %s", s.Phase, p)
	}
	s.Phase = p
	return nil
}

// Finished reports whether the job reached its terminal phase.
func (s *State) Finished() bool { return s.Phase == PhasePostprocessed }

// Clone returns a deep copy.
func (s *State) Clone() *State {
	cp := *s
	cp.Config.Tables = slices.Clone(s.Config.Tables)
	return &cp
}

// Encode serializes the state.
func (s *State) Encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: encode: %w", err)
	}
	return data, nil
}

// Decode parses a serialized state and rejects blobs that do not describe
// a known job.
func Decode(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if !s.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrCorrupt, s.Kind)
	}
	if s.Phase.rank() < 0 {
		return nil, fmt.Errorf("%w: unknown phase %q", ErrCorrupt, s.Phase)
	}
	return &s, nil
}
