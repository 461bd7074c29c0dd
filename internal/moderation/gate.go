// Package moderation screens user-submitted text before it is written.
//
// Evaluate is pure and synchronous. Checks run in a fixed order and the
// first hit wins:
//
//  1. banned-word patterns (case-insensitive): spam keywords, URL-looking
//     tokens, and an abuse family
//  2. link density: more than MaxLinks http(s) links
//  3. repeated characters: any single character repeated MaxRun or more
//     times in a row
//
// Empty input is never flagged; whether empty content is acceptable is
// decided by the caller's required-field checks.
package moderation

import (
	"regexp"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/text/unicode/norm"
)

const (
	// MaxLinks is the number of links tolerated in one submission.
	MaxLinks = 2
	// MaxRun is the run length at which a repeated character is flagged.
	MaxRun = 11
)

// Reasons reported in Verdict.Reason.
const (
	ReasonBannedWord    = "banned_word"
	ReasonTooManyLinks  = "too_many_links"
	ReasonRepeatedChars = "repeated_characters"
)

// Verdict is the outcome of Evaluate.
type Verdict struct {
	IsSpam bool   `json:"isSpam"`
	Reason string `json:"reason,omitempty"`
}

var (
	spamWords = regexp.MustCompile(`(?i)(` +
		`\bfree\s+money\b|\bearn\s+\$?\d+|\bclick\s+here\b|\bbuy\s+now\b|\blimited\s+offer\b|` +
		`\bpromo\s*code\b|\bdiscount\s*code\b|\bcoupon\b|\breferral\s*(code|link)\b|\binvite\s*code\b|` +
		`\bcrypto\s*(giveaway|airdrop)\b|\bcasino\b|\bviagra\b|\bmake\s+money\s+fast\b|` +
		`副業|稼げる|無料プレゼント|出会い系|` +
		`\bwww\.[a-z0-9-]+\.|\bbit\.ly/|\btinyurl\.com/|\bt\.co/|\bgoo\.gl/|` +
		`\b[a-z0-9-]+\.(xyz|top|click|loan|work|buzz)\b` +
		`)`)

	abuseWords = regexp.MustCompile(`(?i)(` +
		`\bkill\s+yourself\b|\bkys\b|\bretard(ed)?\b|\bfaggot\b|\bnigger\b|\bwhore\b|` +
		`死ね|殺すぞ|きもい` +
		`)`)

	linkRE = regexp.MustCompile(`https?://[^\s]+`)
)

var flags = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "moderation_flags_total",
		Help: "Submissions flagged by the moderation gate.",
	},
	[]string{"reason"},
)

func init() {
	prometheus.MustRegister(flags)
}

// Evaluate screens text. Input is NFKC-normalized first so full-width and
// compatibility forms match the ASCII patterns.
func Evaluate(text string) Verdict {
	if strings.TrimSpace(text) == "" {
		return Verdict{}
	}
	text = norm.NFKC.String(text)

	v := evaluate(text)
	if v.IsSpam {
		flags.WithLabelValues(v.Reason).Inc()
	}
	return v
}

func evaluate(text string) Verdict {
	if spamWords.MatchString(text) || abuseWords.MatchString(text) {
		return Verdict{IsSpam: true, Reason: ReasonBannedWord}
	}
	if len(linkRE.FindAllStringIndex(text, -1)) > MaxLinks {
		return Verdict{IsSpam: true, Reason: ReasonTooManyLinks}
	}
	if hasRun(text, MaxRun) {
		return Verdict{IsSpam: true, Reason: ReasonRepeatedChars}
	}
	return Verdict{}
}

// hasRun reports whether any rune other than newline repeats n or more
// times consecutively.
func hasRun(s string, n int) bool {
	var prev rune = -1
	run := 0
	for _, r := range s {
		if r == prev && r != '\n' {
			run++
		} else {
			prev, run = r, 1
		}
		if run >= n {
			return true
		}
	}
	return false
}
