// Package align computes an optimal word-level edit script between a
// reference token sequence and a submission token sequence.
//
// The algorithm is classic dynamic-programming edit distance over tokens
// (cost 1 for substitute/insert/delete, 0 for match, comparing tokens by
// their normalized form). Backtracking resolves ties with a fixed precedence
//
//	match > substitute > delete > insert
//
// so that identical inputs always produce an identical script, independent of
// request timing or concurrency. The emitted script reconstructs both input
// sequences exactly (see [Script.ProjectReference] and
// [Script.ProjectSubmission]).
//
// Complexity is O(n·m) time and space in token counts.
package align

import "github.com/hverberg/echotype/internal/token"

// OpKind is the closed set of edit operations.
type OpKind int

const (
	// OpMatch means the reference and submission tokens have equal
	// normalized forms.
	OpMatch OpKind = iota

	// OpSubstitute means the submission token replaces a different
	// reference token.
	OpSubstitute

	// OpDelete means the reference token has no counterpart in the
	// submission (the user missed it).
	OpDelete

	// OpInsert means the submission token has no counterpart in the
	// reference (the user added it).
	OpInsert
)

// String returns the human-readable name of the op kind.
func (k OpKind) String() string {
	switch k {
	case OpMatch:
		return "match"
	case OpSubstitute:
		return "substitute"
	case OpDelete:
		return "delete"
	case OpInsert:
		return "insert"
	default:
		return "unknown"
	}
}

// EditOp is one step of the edit script. Ref is nil for inserts and Sub is
// nil for deletes; both are set for matches and substitutions.
type EditOp struct {
	Kind OpKind
	Ref  *token.Token
	Sub  *token.Token
}

// Script is an ordered edit script. Reading it front to back and projecting
// the reference side (match/substitute/delete) or the submission side
// (match/substitute/insert) reproduces the corresponding input sequence.
type Script []EditOp

// ProjectReference returns the reference token sequence encoded in the script.
func (s Script) ProjectReference() []token.Token {
	out := make([]token.Token, 0, len(s))
	for _, op := range s {
		if op.Ref != nil {
			out = append(out, *op.Ref)
		}
	}
	return out
}

// ProjectSubmission returns the submission token sequence encoded in the script.
func (s Script) ProjectSubmission() []token.Token {
	out := make([]token.Token, 0, len(s))
	for _, op := range s {
		if op.Sub != nil {
			out = append(out, *op.Sub)
		}
	}
	return out
}

// Align computes the minimal edit script turning reference into submission.
// Both inputs may be empty; the result is deterministic for identical inputs.
func Align(reference, submission []token.Token) Script {
	n, m := len(reference), len(submission)

	// cost[i][j] is the minimal edit cost between reference[:i] and
	// submission[:j].
	cost := make([][]int, n+1)
	for i := range cost {
		cost[i] = make([]int, m+1)
	}
	for i := 1; i <= n; i++ {
		cost[i][0] = i
	}
	for j := 1; j <= m; j++ {
		cost[0][j] = j
	}

	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			if equalTokens(reference[i-1], submission[j-1]) {
				cost[i][j] = cost[i-1][j-1]
				continue
			}
			cost[i][j] = min(cost[i-1][j-1], cost[i-1][j], cost[i][j-1]) + 1
		}
	}

	// Backtrack from (n, m). The fixed order of the branches below IS the
	// tie-break contract: match, then substitute, then delete, then insert.
	ops := make(Script, 0, n+m)
	i, j := n, m
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && equalTokens(reference[i-1], submission[j-1]) && cost[i][j] == cost[i-1][j-1]:
			ops = append(ops, EditOp{Kind: OpMatch, Ref: &reference[i-1], Sub: &submission[j-1]})
			i--
			j--
		case i > 0 && j > 0 && cost[i][j] == cost[i-1][j-1]+1:
			ops = append(ops, EditOp{Kind: OpSubstitute, Ref: &reference[i-1], Sub: &submission[j-1]})
			i--
			j--
		case i > 0 && cost[i][j] == cost[i-1][j]+1:
			ops = append(ops, EditOp{Kind: OpDelete, Ref: &reference[i-1]})
			i--
		default:
			ops = append(ops, EditOp{Kind: OpInsert, Sub: &submission[j-1]})
			j--
		}
	}

	// The script was built back to front.
	for l, r := 0, len(ops)-1; l < r; l, r = l+1, r-1 {
		ops[l], ops[r] = ops[r], ops[l]
	}
	return ops
}

// equalTokens compares two tokens by normalized form. Two tokens whose
// normalized forms are both empty (pure punctuation) compare equal.
func equalTokens(a, b token.Token) bool {
	return a.Normalized == b.Normalized
}
