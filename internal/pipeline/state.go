package pipeline

// State is a step of the report pipeline. Failures return to StateSelect
// with the selection preserved and the error kept in LastError.
type State string

const (
	StateSelect     State = "select"
	StateTriage     State = "triage"
	StateAnalyzing  State = "analyzing"
	StateGenerating State = "generating"
	StateComplete   State = "complete"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == StateComplete }
