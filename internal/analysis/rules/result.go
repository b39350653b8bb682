package rules

// MatchResult is the outcome of evaluating one strategy at one candle:
// either no match, or a match carrying a human-readable annotation.
type MatchResult struct {
	matched    bool
	annotation string
}

// NoMatch is returned when any rule fails or data is insufficient.
func NoMatch() MatchResult {
	return MatchResult{}
}

// Match builds a successful result.
func Match(annotation string) MatchResult {
	return MatchResult{matched: true, annotation: annotation}
}

// Matched reports whether the strategy fired.
func (r MatchResult) Matched() bool {
	return r.matched
}

// Annotation is empty for NoMatch.
func (r MatchResult) Annotation() string {
	return r.annotation
}

func (r MatchResult) String() string {
	if !r.matched {
		return "no match"
	}
	return "match: " + r.annotation
}
