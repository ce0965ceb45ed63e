package discovery

import "github.com/use-agent/smartscraper/llm"

// Ledger accumulates candidates tried across Discovery Loop iterations so
// the LLM is never asked to suggest the same XPath twice and sees why
// each prior attempt failed.
type Ledger struct {
	entries []llm.FeedbackEntry
	tried   map[string]bool
}

func NewLedger() *Ledger {
	return &Ledger{tried: make(map[string]bool)}
}

// Record adds xpath with reason if it hasn't already been recorded.
func (l *Ledger) Record(xpath, reason string) {
	if l.tried[xpath] {
		return
	}
	l.tried[xpath] = true
	l.entries = append(l.entries, llm.FeedbackEntry{XPath: xpath, Reason: reason})
}

// Seen reports whether xpath has already been tried this discovery run.
func (l *Ledger) Seen(xpath string) bool {
	return l.tried[xpath]
}

// Entries returns the feedback ledger to attach to the next suggest_xpaths
// call.
func (l *Ledger) Entries() []llm.FeedbackEntry {
	return l.entries
}
