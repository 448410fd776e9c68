package classify

import (
	"fmt"
	"strings"

	"github.com/mescon/Scanarr/internal/domain"
)

// suspiciousDensityThreshold is the keyword-hit count above which an
// otherwise unclassified diagnostic is treated as worth a deeper look.
const suspiciousDensityThreshold = 5

// diagnosticExcerptLen bounds the diagnostic excerpt quoted in fallback
// messages.
const diagnosticExcerptLen = 200

func contains(haystack, needle string) bool {
	return strings.Contains(haystack, needle)
}

// Classify interprets one decode-check outcome. It is pure: no I/O, no
// clock, and identical inputs always produce an identical verdict. The
// caller stamps Path, Elapsed and Timestamp afterwards.
func Classify(text string, exitCode int, depth domain.Depth, rules *Rules) domain.Verdict {
	v := domain.Verdict{Depth: depth}
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	// Clean exit with silent stderr is the healthy baseline.
	if exitCode == 0 && trimmed == "" {
		v.Confidence = 0.9
		v.Message = "clean decode, no diagnostics"
		return clamped(v)
	}

	decided := false

	// High-confidence corruption signatures are decisive.
	if names := matchSignatures(rules.corruption, lower); len(names) > 0 {
		v.IsCorrupt = true
		v.Confidence = 0.9
		v.Issues = append(v.Issues, names...)
		if len(names) > 3 {
			v.Message = fmt.Sprintf("severe corruption: %d signatures matched (%s)",
				len(names), strings.Join(names, ", "))
		} else {
			v.Message = "corruption signatures matched: " + strings.Join(names, ", ")
		}
		decided = true
	}

	// Warning signatures matter on a quick pass; after a full decode the
	// file demonstrably played out, so they only leave residual doubt.
	if !decided {
		if names := matchSignatures(rules.warning, lower); len(names) > 0 {
			v.Issues = append(v.Issues, names...)
			if depth == domain.DepthQuick {
				v.NeedsDeeperCheck = true
				v.Confidence = 0.6
				v.Message = "decode warnings, deeper check recommended: " + strings.Join(names, ", ")
			} else {
				v.Confidence = 0.3
				v.Message = "decode warnings after full decode: " + strings.Join(names, ", ")
			}
			decided = true
		}
	}

	// Critical exit codes. On quick they justify escalation; after a deep
	// decode a critical exit means the decoder gave up on the content.
	if rules.criticalExits[exitCode] {
		if depth == domain.DepthQuick {
			if !v.IsCorrupt {
				v.NeedsDeeperCheck = true
				if v.Confidence < 0.5 {
					v.Confidence = 0.5
				}
				if !decided {
					v.Message = fmt.Sprintf("critical exit code %d on quick pass", exitCode)
				}
			}
		} else if !decided {
			v.IsCorrupt = true
			v.Confidence = 0.7
			v.Message = fmt.Sprintf("critical exit code %d after full decode", exitCode)
		}
		decided = true
	}

	// Keyword density: many scattered suspicious words with no recognized
	// signature still warrant attention.
	if !decided {
		if hits := keywordHits(lower, rules.suspicious); hits > suspiciousDensityThreshold {
			if depth == domain.DepthQuick {
				v.NeedsDeeperCheck = true
			}
			if v.Confidence < 0.4 {
				v.Confidence = 0.4
			}
			v.Message = fmt.Sprintf("high density of suspicious keywords (%d hits)", hits)
			decided = true
		}
	}

	// Overrides, applied last and independently of each other.
	if contains(lower, "timed out") || contains(lower, "timeout") {
		v.Issues = appendIssue(v.Issues, "tool timeout")
		if depth == domain.DepthQuick {
			v.NeedsDeeperCheck = true
			if v.Confidence < 0.6 {
				v.Confidence = 0.6
			}
			if v.Message == "" {
				v.Message = "decode check timed out on quick pass"
			}
		} else {
			v.IsCorrupt = true
			v.Confidence = 0.8
			v.Message = "decode check timed out despite full-decode budget"
		}
		decided = true
	}

	if contains(lower, "moov atom") {
		v.IsCorrupt = true
		v.Confidence = 0.95
		v.Issues = appendIssue(v.Issues, "missing container index")
		v.Message = "missing container index (moov atom not found)"
		decided = true
	}

	if contains(lower, "pts") && contains(lower, "dts") {
		if depth == domain.DepthQuick {
			v.NeedsDeeperCheck = true
			decided = true
		} else if v.Confidence > 0.4 {
			v.Confidence = 0.4
		}
	}

	// Fallback for anything still unexplained.
	if !decided && exitCode != 0 {
		if depth == domain.DepthQuick {
			v.NeedsDeeperCheck = true
			v.Confidence = 0.3
			v.Message = fmt.Sprintf("unrecognized failure (exit %d), deeper check recommended", exitCode)
		} else {
			v.Confidence = 0.3
			v.Message = fmt.Sprintf("decode failed (exit %d): %s", exitCode, excerpt(trimmed))
		}
		decided = true
	}

	// Network wording runs after the fallback so its annotation and
	// confidence reduction survive on unrecognized failures too.
	if containsAny(lower, rules.network) {
		v.Confidence -= 0.3
		if v.Confidence < 0.1 {
			v.Confidence = 0.1
		}
		v.Issues = appendIssue(v.Issues, "network-related diagnostics")
		v.Message = strings.TrimSpace(v.Message + " (network wording present; likely remote input issue, not local corruption)")
	}

	// Exit 0 with chatter that matched nothing: treat as healthy with
	// slightly reduced confidence and keep the diagnostic visible.
	if !decided && exitCode == 0 {
		if v.Confidence < 0.7 {
			v.Confidence = 0.7
		}
		if v.Message == "" {
			v.Message = "diagnostics present but matched no known signatures: " + excerpt(trimmed)
		}
	}

	return clamped(v)
}

// keywordHits counts total occurrences of every keyword in the text.
func keywordHits(lower string, keywords []string) int {
	hits := 0
	for _, kw := range keywords {
		hits += strings.Count(lower, kw)
	}
	return hits
}

func containsAny(lower string, words []string) bool {
	for _, w := range words {
		if contains(lower, w) {
			return true
		}
	}
	return false
}

func appendIssue(issues []string, issue string) []string {
	for _, i := range issues {
		if i == issue {
			return issues
		}
	}
	return append(issues, issue)
}

func excerpt(text string) string {
	if len(text) <= diagnosticExcerptLen {
		return text
	}
	return text[:diagnosticExcerptLen] + "..."
}

// clamped enforces the confidence bound on every path out of Classify.
func clamped(v domain.Verdict) domain.Verdict {
	if v.Confidence < 0 {
		v.Confidence = 0
	}
	if v.Confidence > 1 {
		v.Confidence = 1
	}
	return v
}
