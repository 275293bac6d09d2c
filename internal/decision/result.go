package decision

// ResultKind tags a ParseResult.
type ResultKind int

const (
	// KindOk: every element validated.
	KindOk ResultKind = iota
	// KindPartial: some elements were dropped.
	KindPartial
	// KindEmpty: nothing survived; Decisions holds one synthetic hold.
	KindEmpty
)

func (k ResultKind) String() string {
	switch k {
	case KindOk:
		return "ok"
	case KindPartial:
		return "partial"
	case KindEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// ParseResult is the outcome of normalizing one model response.
type ParseResult struct {
	Kind      ResultKind
	Decisions []TradeDecision
	Dropped   int
	// Issues explains each dropped element, in input order.
	Issues []string
}

func okResult(ds []TradeDecision) ParseResult {
	return ParseResult{Kind: KindOk, Decisions: ds}
}

func partialResult(ds []TradeDecision, issues []string) ParseResult {
	return ParseResult{Kind: KindPartial, Decisions: ds, Dropped: len(issues), Issues: issues}
}

func emptyResult(issues []string) ParseResult {
	return ParseResult{
		Kind:      KindEmpty,
		Decisions: []TradeDecision{Hold("", "no valid decisions in model output")},
		Dropped:   len(issues),
		Issues:    issues,
	}
}

// Actionable returns the non-synthetic decisions.
func (r ParseResult) Actionable() []TradeDecision {
	out := make([]TradeDecision, 0, len(r.Decisions))
	for _, d := range r.Decisions {
		if !d.Synthetic {
			out = append(out, d)
		}
	}
	return out
}

// OrHold returns the decisions, with the synthetic hold of an empty result
// attributed to symbol.
func (r ParseResult) OrHold(symbol string) []TradeDecision {
	if r.Kind != KindEmpty {
		return r.Decisions
	}
	return []TradeDecision{Hold(symbol, "no valid decisions in model output")}
}
