// Package sanitize turns LLM or client supplied answers into plain display text.
package sanitize

import (
	"regexp"
	"strings"
)

type rule struct {
	re   *regexp.Regexp
	repl string
}

// Order matters: every rule runs on the output of the previous one.
var rules = []rule{
	{regexp.MustCompile("(?s)```.*?```"), ""},               // fenced code blocks
	{regexp.MustCompile("`([^`]*)`"), "$1"},                 // inline code
	{regexp.MustCompile(`(?m)^[ \t]{0,3}#{1,6}[ \t]*`), ""}, // headings
	{regexp.MustCompile(`(?m)^[ \t]*[-*+][ \t]+`), ""},      // unordered list markers
	{regexp.MustCompile(`(?m)^[ \t]*\d+\.[ \t]+`), ""},      // ordered list markers
	{regexp.MustCompile(`\*+`), ""},                         // emphasis
	{regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`), "$1"},     // links
	{regexp.MustCompile(`</?[^>]+(>|$)`), ""},               // tags
	{regexp.MustCompile(`(?m)[ \t]+$`), ""},                 // trailing blanks per line
	{regexp.MustCompile(`(?m)^[ \t]+`), ""},                 // leading blanks per line
	{regexp.MustCompile(`\n{2,}`), "\n\n"},                  // blank line runs
}

// Answer strips markdown and HTML artifacts from text. It never fails; input
// that does not match a rule is left as is. The pipeline is repeated until the
// text stops changing, so Answer(Answer(s)) == Answer(s) even when one rule
// uncovers a marker an earlier rule already passed over ("- - item",
// "<b>- item</b>"). A pass that changes the text always shortens it, so the
// loop ends.
//
// Heading and list markers match horizontal whitespace only: a blank line
// before a list or heading is kept as a paragraph break.
func Answer(text string) string {
	out := text
	for {
		next := pass(out)
		if next == out {
			return out
		}
		out = next
	}
}

func pass(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, r := range rules {
		text = r.re.ReplaceAllString(text, r.repl)
	}
	return strings.TrimSpace(text)
}
