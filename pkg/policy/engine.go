package policy

// Confidence thresholds for classifier-driven rules.
const (
	// strictWorkThreshold is the exclusive cutoff for allowing work pages
	// in strict mode: confidence must be strictly greater.
	strictWorkThreshold = 0.65

	// classifierThreshold is the inclusive cutoff for acting on a
	// classifier opinion outside strict mode.
	classifierThreshold = 0.5
)

// Evaluate runs the precedence chain over the input bundle and returns the
// decision. The evaluation order is load-bearing and must not be
// rearranged:
//
//  1. outside schedule        -> allow
//  2. whitelist match         -> allow
//  3. unexpired temp allow    -> allow (outranks blacklist, not whitelist)
//  4. blacklist match         -> block
//  5. strict mode             -> allow only on confident work, else prompt
//  6. classifier opinion      -> prompt on distract, allow on work
//  7. default                 -> allow (fail-open by design)
func Evaluate(in Input) Decision {
	if !in.ScheduleActive {
		return Decision{Action: ActionAllow, Reason: ReasonOutsideSchedule}
	}

	host, path := in.Features.Host, in.Features.Path

	if matchesAny(host, path, CompilePatterns(in.WhitelistPatterns)) {
		return Decision{Action: ActionAllow, Reason: ReasonWhitelist}
	}

	if in.TemporarilyAllowed {
		return Decision{Action: ActionAllow, Reason: ReasonTemporaryAllow}
	}

	if matchesAny(host, path, CompilePatterns(in.BlacklistPatterns)) {
		return Decision{Action: ActionBlock, Reason: ReasonBlacklist}
	}

	if in.StrictMode {
		if in.Classifier != nil && in.Classifier.Label == LabelWork && in.Classifier.Confidence > strictWorkThreshold {
			return Decision{Action: ActionAllow, Reason: ReasonWorkStrict}
		}
		return Decision{Action: ActionPromptAppeal, Reason: ReasonStrictMode}
	}

	if c := in.Classifier; c != nil {
		switch {
		case c.Label == LabelDistract && c.Confidence >= classifierThreshold:
			return Decision{Action: ActionPromptAppeal, Reason: ReasonDistract}
		case c.Label == LabelWork && c.Confidence >= classifierThreshold:
			return Decision{Action: ActionAllow, Reason: ReasonWork}
		}
	}

	return Decision{Action: ActionAllow, Reason: ReasonDefaultAllow}
}
