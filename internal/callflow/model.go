// Package callflow defines the compiled IVR call-flow model shared by the
// compiler, resolver, exporters, and API. Records are plain data: they carry
// no behavior beyond validation.
package callflow

// Reserved labels every flow may target without declaring them.
const (
	// LabelProblems is the terminal error handler. The compiler synthesizes
	// a Problems record if the diagram does not declare one.
	LabelProblems = "Problems"
	// LabelHangup terminates the call. It is a runtime primitive, never a record.
	LabelHangup = "hangup"
)

// AudioReference is one playable unit: either a static catalog reference
// such as "callout:1042", or a runtime variable such as
// "location:{{callout_location}}" substituted by the telephony runtime.
type AudioReference string

// PromptPlan is the resolved audio rendering of one node's text: an ordered
// reference sequence plus resolution quality metadata. Produced once by the
// resolver and never mutated afterwards.
type PromptPlan struct {
	Play           []AudioReference `json:"play" yaml:"play"`
	Missing        []string         `json:"missing,omitempty" yaml:"missing,omitempty"`
	Confidence     float64          `json:"confidence" yaml:"confidence"`
	RequiresReview bool             `json:"requires_review" yaml:"requires_review"`
}

// BranchTable maps collected DTMF digits (or literal keyword labels) to the
// label of the next record. Error and None are the mandatory fallbacks for
// invalid input and input timeout.
type BranchTable struct {
	Targets map[string]string `json:"targets" yaml:"targets"`
	Error   string            `json:"error" yaml:"error"`
	None    string            `json:"none" yaml:"none"`
}

// CollectPolicy governs DTMF digit collection for a decision or menu record.
type CollectPolicy struct {
	NumDigits    int      `json:"num_digits" yaml:"num_digits"`
	MaxTries     int      `json:"max_tries" yaml:"max_tries"`
	MaxWaitSec   int      `json:"max_wait_sec" yaml:"max_wait_sec"`
	ValidChoices []string `json:"valid_choices" yaml:"valid_choices"`
}

// MenuItem is one spoken option of a menu record. Items without a matching
// outgoing edge are kept for playback but contribute no branch entry.
type MenuItem struct {
	Digit  string     `json:"digit" yaml:"digit"`
	Prompt PromptPlan `json:"prompt" yaml:"prompt"`
	Log    string     `json:"log" yaml:"log"`
}

// Record is one compiled IVR instruction. Exactly one of Goto, Branch, or
// Menu describes the control transfer; a record with none of them is
// terminal and the runtime hangs up after playback.
type Record struct {
	Label      string         `json:"label" yaml:"label"`
	LogText    string         `json:"log" yaml:"log"`
	PlayPrompt PromptPlan     `json:"play_prompt" yaml:"play_prompt"`
	Goto       string         `json:"goto,omitempty" yaml:"goto,omitempty"`
	Branch     *BranchTable   `json:"branch,omitempty" yaml:"branch,omitempty"`
	Collect    *CollectPolicy `json:"collect,omitempty" yaml:"collect,omitempty"`
	Menu       []MenuItem     `json:"menu,omitempty" yaml:"menu,omitempty"`

	// AllowBargeIn is false only for records that must play to completion,
	// such as the synthesized Problems handler.
	AllowBargeIn bool `json:"allow_barge_in" yaml:"allow_barge_in"`
}

// MissingFragment records one piece of node text that could not be resolved
// to an audio reference, attributed to the record it belongs to.
type MissingFragment struct {
	Label    string `json:"label" yaml:"label"`
	Fragment string `json:"fragment" yaml:"fragment"`
}

// Report aggregates resolution quality over one conversion run.
type Report struct {
	ConversionID string            `json:"conversion_id,omitempty" yaml:"conversion_id,omitempty"`
	TotalNodes   int               `json:"total_nodes" yaml:"total_nodes"`
	NeedsReview  int               `json:"needs_review" yaml:"needs_review"`
	SuccessRate  float64           `json:"success_rate" yaml:"success_rate"`
	Missing      []MissingFragment `json:"missing,omitempty" yaml:"missing,omitempty"`

	// LabelMap records the diagram-id to descriptive-label remapping.
	LabelMap map[string]string `json:"label_map" yaml:"label_map"`
}
