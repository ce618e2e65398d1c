// Package selector turns a diff into a token-budgeted context bundle
// using three retrieval tiers evaluated in strict priority order: exact
// overlap with the changed lines, a fixed proximity window around them,
// and semantic neighbors from the vector index.
//
// Tier 0 references are never dropped; when the budget runs out only
// their content is trimmed. Tier 0 and 1 share a reserved 70% of the
// budget, Tier 2 takes what remains. Output is deterministic for
// identical inputs: hunk order for the first two tiers, similarity score
// descending with vector-id tiebreak for the third.
package selector
