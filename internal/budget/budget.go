// Package budget estimates prompt sizes and trims retrieved passages so the
// prompt fits a model's context window. Tokenizers differ per backend, so a
// character heuristic is used: 1 token ≈ 4 characters.
package budget

import (
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/pdfqa/internal/rag"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// messageOverhead is the per-message framing cost in most chat APIs.
	messageOverhead = 4
)

// Estimate returns a rough token count for s.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated token count of msgs, summing role
// and content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageOverhead
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// Passage returns the estimated cost of one formatted passage, separator
// included.
func Passage(r rag.Result) int {
	return Estimate(rag.Header(r.Metadata)+"\n"+r.Text) + Estimate(rag.ContextSeparator)
}

// Fit keeps the nearest results whose passages fit in maxTokens once
// fixedTokens (system message, question, framing) are accounted for.
// Results are assumed nearest first; the farthest are dropped. The nearest
// result is always kept. maxTokens <= 0 disables trimming.
func Fit(results []rag.Result, fixedTokens, maxTokens int) []rag.Result {
	if maxTokens <= 0 || len(results) == 0 {
		return results
	}

	used := fixedTokens
	for i, r := range results {
		used += Passage(r)
		if used > maxTokens {
			if i == 0 {
				return results[:1]
			}
			return results[:i]
		}
	}
	return results
}
