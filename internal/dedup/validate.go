package dedup

import (
	"strings"
	"unicode"

	"github.com/lanternvc/lantern/pkg/types"
)

// Validation failure reasons.
const (
	ReasonTooShort        = "too_short"
	ReasonJobTitle        = "job_title"
	ReasonSingleToken     = "single_token"
	ReasonUnbalancedParen = "unbalanced_paren"
	ReasonNoAlpha         = "no_alpha"
)

// Verdict is the result of validating a candidate entity name.
type Verdict struct {
	Valid  bool
	Reason string // one of the Reason* constants when Valid is false
}

func invalid(reason string) Verdict { return Verdict{Reason: reason} }

// ValidateName checks a candidate name against the policy. The checks run
// cheapest first; the first failure wins.
func (p *Policy) ValidateName(name string) Verdict {
	norm := types.NormalizeName(name)

	if !hasAlpha(norm) {
		return invalid(ReasonNoAlpha)
	}
	if len([]rune(norm)) < p.MinNameLength {
		return invalid(ReasonTooShort)
	}
	if !balancedParens(norm) {
		return invalid(ReasonUnbalancedParen)
	}

	tokens := strings.Fields(norm)
	if p.RejectJobTitles && allJobTitleWords(p, tokens) {
		return invalid(ReasonJobTitle)
	}
	if p.RejectSingleToken && len(tokens) == 1 {
		return invalid(ReasonSingleToken)
	}
	return Verdict{Valid: true}
}

func hasAlpha(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func balancedParens(s string) bool {
	depth := 0
	for _, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

// allJobTitleWords reports whether every token is a job-title word, i.e. the
// "name" is actually a title like "CEO" or "Head of Engineering" that leaked
// out of a source system's name field.
func allJobTitleWords(p *Policy, tokens []string) bool {
	if len(tokens) == 0 {
		return false
	}
	for _, tok := range tokens {
		if !p.isJobTitleWord(tok) {
			return false
		}
	}
	return true
}
