// Package guard protects inference prompts against prompt-injection attempts
// in user-supplied journal text.
//
// Every inference entry point runs [Guard.Check] before issuing a network
// call; matched input is answered with the analysis kind's neutral default
// and never reaches a model. Text that passes the check is still passed
// through [Guard.Escape] before being interpolated into a structured prompt
// template, so that quotes, braces and line breaks in the journal text cannot
// terminate or reshape the JSON-shaped instruction block around it.
//
// Matching is case-insensitive and runs on the NFKD (compatibility
// decomposition) form of the input. Compatibility decomposition — rather
// than plain canonical composition — folds homoglyph and compatibility
// characters (fullwidth letters, circled digits, ligatures) onto their plain
// equivalents, so "Ｉｇｎｏｒｅ previous instructions" matches the same
// pattern as its ASCII form.
package guard

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// patterns is the ordered list of injection signatures, covering English and
// German. All are compiled case-insensitive. Word boundaries keep benign
// substrings (e.g. "forget-me-nots") from matching.
var patterns = []*regexp.Regexp{
	// English.
	regexp.MustCompile(`(?i)\bignore\b.{0,40}\b(previous|prior|above|earlier)\b.{0,40}\b(instructions?|prompts?|rules?)\b`),
	regexp.MustCompile(`(?i)\bdisregard\b.{0,40}\b(previous|prior|above|all)\b.{0,40}\b(instructions?|prompts?|rules?)\b`),
	regexp.MustCompile(`(?i)\byou\s+are\s+now\s+(a|an|the|my)\b`),
	regexp.MustCompile(`(?i)\bforget\s+(everything|all)\b.{0,40}\b(said|told|instructed|before|above)\b`),
	regexp.MustCompile(`(?i)\bnew\s+instructions?\s*:`),
	regexp.MustCompile(`(?i)\bsystem\s+prompt\b.{0,30}\b(override|overwrite|replace|reveal|show)\b`),
	regexp.MustCompile(`(?i)\b(override|overwrite)\b.{0,30}\bsystem\s+prompt\b`),
	regexp.MustCompile(`(?i)\bact\s+as\s+(a|an|if|though)\b`),
	regexp.MustCompile(`(?i)\bpretend\s+(to\s+be|you\s+are)\b`),
	regexp.MustCompile(`(?i)\broleplay\s+as\b`),
	regexp.MustCompile(`(?i)\bjailbreak\b`),
	regexp.MustCompile(`(?i)\bdeveloper\s+mode\b`),
	regexp.MustCompile(`(?i)\brepeat\b.{0,30}\b(system\s+prompt|your\s+instructions)\b`),
	regexp.MustCompile(`(?i)\bdo\s+not\s+follow\b.{0,40}\b(instructions?|rules?)\b`),
	// German.
	regexp.MustCompile(`(?i)\bignorier(e|en)?\b.{0,40}\b(vorherige[nr]?|alle|obige[nr]?)\b.{0,40}\b(anweisung(en)?|regeln?|prompts?)\b`),
	regexp.MustCompile(`(?i)\bvergiss\s+(alles|alle)\b`),
	regexp.MustCompile(`(?i)\bdu\s+bist\s+(jetzt|ab\s+sofort)\b`),
	regexp.MustCompile(`(?i)\bneue\s+anweisung(en)?\s*:`),
	regexp.MustCompile(`(?i)\btu\s+so,?\s+als\s+(ob|wärst)\b`),
	regexp.MustCompile(`(?i)\bverhalte\s+dich\s+wie\b`),
	regexp.MustCompile(`(?i)\bspiel(e)?\s+die\s+rolle\b`),
	regexp.MustCompile(`(?i)\bmissachte\b.{0,40}\b(anweisung(en)?|regeln?)\b`),
}

// Guard is the injection sanitiser shared by all provider clients. The zero
// value is not usable; construct with [New]. Guard is immutable after
// construction and safe for concurrent use.
type Guard struct {
	patterns []*regexp.Regexp
}

// New returns a Guard loaded with the built-in pattern set.
func New() *Guard {
	return &Guard{patterns: patterns}
}

// Check reports whether text matches any injection signature. The input is
// NFKD-normalised before matching so compatibility-character variants of a
// signature are caught.
func (g *Guard) Check(text string) bool {
	folded := norm.NFKD.String(text)
	for _, p := range g.patterns {
		if p.MatchString(folded) {
			return true
		}
	}
	return false
}

// escaper rewrites the characters that could let journal text break out of a
// JSON-shaped prompt template. Backslash first, then quotes and braces;
// newlines collapse to single spaces.
var escaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"'", `\'`,
	"{", `\{`,
	"}", `\}`,
	"\r\n", " ",
	"\n", " ",
	"\r", " ",
)

// Escape returns text rewritten so it can be interpolated into a structured
// prompt template without terminating or altering the surrounding
// instruction block.
func (g *Guard) Escape(text string) string {
	return escaper.Replace(text)
}
