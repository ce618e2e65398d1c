package types

// Tier identifies which retrieval strategy produced a context item.
// Lower tiers carry higher priority: Tier 0 results are always included
// ahead of Tier 1, and Tier 1 ahead of Tier 2.
type Tier int

const (
	// TierOverlap is the exact changed line range plus its immediate
	// chunk boundary.
	TierOverlap Tier = iota
	// TierProximity is the changed range expanded by a fixed window.
	TierProximity
	// TierSemantic holds nearest neighbors from the vector index.
	TierSemantic
)

func (t Tier) String() string {
	switch t {
	case TierOverlap:
		return "overlap"
	case TierProximity:
		return "proximity"
	case TierSemantic:
		return "semantic"
	default:
		return "unknown"
	}
}

// ContextItem is one retrieved span of source text.
type ContextItem struct {
	FilePath  string  `json:"file_path"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Tier      Tier    `json:"tier"`
	Score     float64 `json:"score,omitempty"` // cosine similarity for TierSemantic, 0 otherwise
	Content   string  `json:"content,omitempty"`
}

// ContextBundle is the ordered, deduplicated, token-budgeted result of a
// context selection. Items appear in tier order; within a tier, Tier 0/1
// items follow hunk order and Tier 2 items are sorted by descending score
// with ties broken by ascending vector id, so identical inputs always
// produce identical bundles.
type ContextBundle struct {
	Items     []ContextItem `json:"items"`
	Truncated bool          `json:"truncated"`
}

// TokensPerChar is the heuristic divisor for estimating token counts.
const TokensPerChar = 4

// EstimateTokens returns the approximate token count of s.
func EstimateTokens(s string) int {
	return len(s) / TokensPerChar
}

// Tokens returns the estimated token cost of the item when serialized,
// including a small fixed overhead for its location header.
func (c ContextItem) Tokens() int {
	const headerOverhead = 8
	return EstimateTokens(c.Content) + headerOverhead
}
