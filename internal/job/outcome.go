package job

// OutcomeKind classifies the result of one loop unit.
type OutcomeKind int

// Loop unit results.
const (
	// OutcomeProgress means the unit completed and counters moved.
	OutcomeProgress OutcomeKind = iota

	// OutcomeThrottled means resources ran short; nothing was committed and
	// the next poll retries.
	OutcomeThrottled

	// OutcomeFatal means the unit failed and the step must surface Err.
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeProgress:
		return "progress"
	case OutcomeThrottled:
		return "throttled"
	case OutcomeFatal:
		return "fatal"
	}
	return "unknown"
}

// Outcome is the result of one loop unit.
type Outcome struct {
	Kind OutcomeKind
	Rows int64
	Err  error
}

func progressed(rows int64) Outcome { return Outcome{Kind: OutcomeProgress, Rows: rows} }

func throttled(err error) Outcome { return Outcome{Kind: OutcomeThrottled, Err: err} }

func fatal(err error) Outcome { return Outcome{Kind: OutcomeFatal, Err: err} }
