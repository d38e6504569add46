// Package interpret maps a free-form recognizer transcript onto one of a
// question's answer options. Matching is tiered: exact candidate equality,
// substring containment, then word overlap. The function is pure so a fixed
// (transcript, options) pair always yields the same result.
package interpret

import (
	"fmt"
	"strings"

	"github.com/voxexam-labs/voxexam-core/internal/speech/normalize"
)

// NoMatch is the OptionIndex value when no tier produced a confident match.
const NoMatch = -1

const (
	exactConfidence      = 100
	containConfidence    = 50
	overlapMaxConfidence = 30
	overlapMinConfidence = 10
)

// Result is the outcome of one interpretation attempt.
type Result struct {
	OptionIndex   int     `json:"option_index"`
	Confidence    float64 `json:"confidence"`
	RawTranscript string  `json:"raw_transcript"`
}

// Matched reports whether an option was selected.
func (r Result) Matched() bool { return r.OptionIndex != NoMatch }

var ordinalWords = [...]string{"first", "second", "third", "fourth", "fifth"}

// candidates builds the reference strings a speaker might use for the option
// at position i (zero-based): positional forms, the bare letter and number,
// the ordinal word, and the option's own normalized text.
func candidates(i int, optionText string) []string {
	n := i + 1
	letter := string(rune('a' + i))
	refs := []string{
		fmt.Sprintf("option %d", n),
		fmt.Sprintf("option %s", letter),
		fmt.Sprintf("choice %d", n),
		fmt.Sprintf("choice %s", letter),
		fmt.Sprintf("answer %d", n),
		letter,
		fmt.Sprintf("%d", n),
	}
	if i < len(ordinalWords) {
		refs = append(refs, ordinalWords[i])
	}
	if norm := normalize.ForMatching(optionText); norm != "" {
		refs = append(refs, norm)
	}
	return refs
}

// Interpret selects the best-matching option for a transcript. Tier order:
// exact equality against any candidate string wins immediately with
// confidence 100 (first option in order on ties); substring containment
// scores 50; word overlap scores up to 30 and only counts above 10. When
// nothing matches, OptionIndex is NoMatch and the raw transcript is carried
// back unchanged for display.
func Interpret(transcript string, options []string) Result {
	result := Result{OptionIndex: NoMatch, RawTranscript: transcript}
	norm := normalize.ForMatching(transcript)
	if norm == "" {
		return result
	}

	for i, opt := range options {
		for _, ref := range candidates(i, opt) {
			if norm == ref {
				return Result{OptionIndex: i, Confidence: exactConfidence, RawTranscript: transcript}
			}
		}
	}

	for i, opt := range options {
		if result.Confidence >= containConfidence {
			break
		}
		for _, ref := range candidates(i, opt) {
			// Bare letters and digits are too short to contain safely.
			if len(ref) < 3 {
				continue
			}
			if strings.Contains(norm, ref) {
				result.OptionIndex = i
				result.Confidence = containConfidence
				break
			}
		}
	}
	if result.Matched() {
		return result
	}

	transcriptWords := strings.Fields(norm)
	for i, opt := range options {
		score := overlapScore(transcriptWords, normalize.ForMatching(opt))
		if score > overlapMinConfidence && score > result.Confidence {
			result.OptionIndex = i
			result.Confidence = score
		}
	}
	return result
}

// overlapScore counts option words longer than two characters that appear as
// substrings of any transcript word, scaled to overlapMaxConfidence.
func overlapScore(transcriptWords []string, normalizedOption string) float64 {
	optionWords := strings.Fields(normalizedOption)
	if len(optionWords) == 0 {
		return 0
	}
	matched := 0
	for _, ow := range optionWords {
		if len(ow) <= 2 {
			continue
		}
		for _, tw := range transcriptWords {
			if strings.Contains(tw, ow) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(optionWords)) * overlapMaxConfidence
}
