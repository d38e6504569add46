// Package normalize rewrites text between its written technical form and the
// way it is spoken. ForSynthesis expands symbols and abbreviations so a
// synthesizer reads them clearly; ForMatching collapses a recognizer
// transcript back onto canonical tokens before answer matching. Both
// directions are pure and deterministic.
package normalize

import (
	"regexp"
	"strings"
)

type rule struct {
	pattern *regexp.Regexp
	replace string
}

// Multi-character symbols go first so longer operators are not shadowed by
// their own prefixes (=== before ==, !== before !=).
var symbolRules = buildLiteralRules([][2]string{
	{"===", " strict equals "},
	{"!==", " strict not equals "},
	{"==", " double equals "},
	{"!=", " not equals "},
	{"<=", " less than or equal to "},
	{">=", " greater than or equal to "},
	{"=>", " arrow "},
	{"->", " arrow "},
	{"++", " plus plus "},
	{"&&", " and and "},
	{"||", " or or "},
	{"::", " scope "},
	{"<<", " output into "},
	{">>", " input into "},
	{"=", " equals "},
	{"+", " plus "},
	{"<", " less than "},
	{">", " greater than "},
	{"%", " percent "},
	{"&", " ampersand "},
	{"*", " star "},
	{"/", " slash "},
	{"#", " hash "},
	{"_", " underscore "},
	{"{", " open brace "},
	{"}", " close brace "},
	{"(", " open paren "},
	{")", " close paren "},
	{"[", " open bracket "},
	{"]", " close bracket "},
	{";", " semicolon "},
})

// spokenWords maps canonical technical vocabulary to a clearly pronounceable
// form. Keys match whole words, case-insensitively.
var spokenWords = buildWordRules([][2]string{
	{"HTML", "H T M L"},
	{"CSS", "C S S"},
	{"SQL", "S Q L"},
	{"API", "A P I"},
	{"JSON", "J SON"},
	{"URL", "U R L"},
	{"HTTP", "H T T P"},
	{"CPU", "C P U"},
	{"GUI", "G U I"},
	{"IDE", "I D E"},
	{"cout", "see out"},
	{"cin", "see in"},
	{"printf", "print f"},
	{"scanf", "scan f"},
	{"const", "constant"},
	{"bool", "boolean"},
	{"int", "integer"},
	{"char", "character"},
	{"str", "string"},
	{"num", "number"},
	{"func", "function"},
	{"args", "arguments"},
	{"params", "parameters"},
	{"init", "initialize"},
	{"JS", "java script"},
	{"npm", "N P M"},
	{"src", "source"},
	{"div", "div element"},
})

// canonicalWords is the reverse direction for transcripts: spoken-out forms
// back to the tokens used in option text. Longer phrases first.
var canonicalWords = buildWordRules([][2]string{
	{"option number one", "option 1"},
	{"option number two", "option 2"},
	{"option number three", "option 3"},
	{"option number four", "option 4"},
	{"option number five", "option 5"},
	{"choice number one", "option 1"},
	{"choice number two", "option 2"},
	{"choice number three", "option 3"},
	{"choice number four", "option 4"},
	{"choice number five", "option 5"},
	{"option number", "option"},
	{"see out", "cout"},
	{"see in", "cin"},
	{"print f", "printf"},
	{"scan f", "scanf"},
	{"java script", "javascript"},
	{"one", "1"},
	{"two", "2"},
	{"three", "3"},
	{"four", "4"},
	{"five", "5"},
	{"won", "1"},
	{"too", "2"},
	{"tree", "3"},
	{"fore", "4"},
})

var (
	// A hyphen is arithmetic only when a digit sits on either side; compound
	// words like if-else keep their hyphen.
	digitHyphen = regexp.MustCompile(`(\d)\s*-\s*|-\s*(\d)`)

	sentenceEnd = regexp.MustCompile(`([.!?])\s+`)
	whitespace  = regexp.MustCompile(`\s+`)
	punctuation = regexp.MustCompile(`[^\w\s]`)
)

// ForSynthesis prepares text for the synthesizer: symbol expansion, spoken
// vocabulary, arithmetic minus, then a short pause after each sentence.
func ForSynthesis(text string) string {
	out := applyRules(text, symbolRules)
	out = applyRules(out, spokenWords)
	out = digitHyphen.ReplaceAllString(out, "$1 minus $2")
	out = sentenceEnd.ReplaceAllString(out, "$1, ")
	return collapse(out)
}

// ForMatching canonicalizes a transcript for comparison against option text:
// lowercase, spoken forms collapsed, punctuation stripped.
func ForMatching(text string) string {
	out := strings.ToLower(text)
	out = applyRules(out, canonicalWords)
	out = punctuation.ReplaceAllString(out, " ")
	return collapse(out)
}

func applyRules(text string, rules []rule) string {
	for _, r := range rules {
		text = r.pattern.ReplaceAllString(text, r.replace)
	}
	return text
}

func collapse(text string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

func buildLiteralRules(pairs [][2]string) []rule {
	rules := make([]rule, 0, len(pairs))
	for _, p := range pairs {
		rules = append(rules, rule{
			pattern: regexp.MustCompile(regexp.QuoteMeta(p[0])),
			replace: p[1],
		})
	}
	return rules
}

func buildWordRules(pairs [][2]string) []rule {
	rules := make([]rule, 0, len(pairs))
	for _, p := range pairs {
		rules = append(rules, rule{
			pattern: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(p[0]) + `\b`),
			replace: p[1],
		})
	}
	return rules
}
