package policy

// ClassifierSchemaVersion is the wire schema version for classifier results.
const ClassifierSchemaVersion = 1

// PageFeatures is the sensed representation of a captured page.
// Derived once per capture from a URL; immutable; never persisted.
type PageFeatures struct {
	// Host is the page hostname (e.g. "example.com").
	Host string `json:"host"`

	// Path is the URL path, "/" when empty.
	Path string `json:"path"`

	// Title is the document title at capture time.
	Title string `json:"title"`
}

// Label is the classifier's opinion about a page.
type Label string

const (
	// LabelDistract marks pages the classifier considers distracting.
	LabelDistract Label = "distract"
	// LabelNeutral marks pages with no strong signal either way.
	LabelNeutral Label = "neutral"
	// LabelWork marks pages the classifier considers work-related.
	LabelWork Label = "work"
)

// ClassifierResult is the external classifier's opinion about a page.
type ClassifierResult struct {
	// SchemaVersion is always ClassifierSchemaVersion.
	SchemaVersion int `json:"schemaVersion"`

	// Label is the classification label.
	Label Label `json:"label"`

	// Confidence is the classifier's confidence in [0,1].
	Confidence float64 `json:"confidence"`
}

// Action is the decision outcome for a capture.
type Action string

const (
	// ActionAllow lets the page through with no enforcement.
	ActionAllow Action = "allow"
	// ActionBlock blocks the page. The appeal dialog is still shown,
	// since appeal is the only unblock mechanism provided.
	ActionBlock Action = "block"
	// ActionPromptAppeal blocks the page and invites an appeal.
	ActionPromptAppeal Action = "promptAppeal"
)

// Decision reason strings. Fixed vocabulary so UI surfaces and tests can
// match on them.
const (
	ReasonOutsideSchedule = "Outside schedule"
	ReasonWhitelist       = "Whitelist"
	ReasonTemporaryAllow  = "Temporary allow"
	ReasonBlacklist       = "Blacklist"
	ReasonStrictMode      = "Strict mode"
	ReasonWorkStrict      = "Work (strict)"
	ReasonDistract        = "Classifier distract"
	ReasonWork            = "Classifier work"
	ReasonDefaultAllow    = "Default allow"
)

// Decision is the outcome of evaluating one capture. Produced exactly once
// per capture and never mutated after creation.
type Decision struct {
	// Action is what enforcement should do.
	Action Action `json:"action"`

	// Reason names the rule that produced the action.
	Reason string `json:"reason"`
}

// Enforcing reports whether the decision requires showing the block dialog.
func (d Decision) Enforcing() bool {
	return d.Action == ActionBlock || d.Action == ActionPromptAppeal
}

// Input is the full bundle the engine evaluates. All external lookups
// (schedule, temporary allows) happen before evaluation so the engine stays
// pure.
type Input struct {
	// Features is the sensed page.
	Features PageFeatures

	// WhitelistPatterns are regex pattern strings; malformed patterns are
	// skipped at match time.
	WhitelistPatterns []string

	// BlacklistPatterns are regex pattern strings; malformed patterns are
	// skipped at match time.
	BlacklistPatterns []string

	// StrictMode indicates strict mode is enabled and unexpired.
	StrictMode bool

	// Classifier is the classifier opinion for this page, if any.
	Classifier *ClassifierResult

	// TemporarilyAllowed indicates the host holds an unexpired temporary
	// allow grant.
	TemporarilyAllowed bool

	// ScheduleActive indicates the capture falls inside an active
	// schedule window.
	ScheduleActive bool
}
