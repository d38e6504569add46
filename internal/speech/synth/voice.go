package synth

import (
	"context"
	"strings"
)

// clearVoices are voices known to pronounce technical vocabulary cleanly,
// used as a tie-breaker after the local-English preference.
var clearVoices = []string{
	"Google US English",
	"Microsoft David",
	"Samantha",
	"Daniel",
}

type defaultPicker struct {
	preferred string
}

// NewDefaultPicker returns the standard voice policy: an explicitly preferred
// name wins, then a local (non-network) English voice, then a known
// clear-pronunciation voice, then whatever English voice exists.
func NewDefaultPicker(preferred string) VoicePicker {
	return &defaultPicker{preferred: preferred}
}

func (p *defaultPicker) Pick(_ context.Context, available []Voice) (Voice, bool) {
	if len(available) == 0 {
		return Voice{}, false
	}
	if p.preferred != "" {
		for _, v := range available {
			if strings.EqualFold(v.Name, p.preferred) {
				return v, true
			}
		}
	}
	for _, v := range available {
		if v.Local && isEnglish(v.Language) {
			return v, true
		}
	}
	for _, name := range clearVoices {
		for _, v := range available {
			if strings.EqualFold(v.Name, name) {
				return v, true
			}
		}
	}
	for _, v := range available {
		if isEnglish(v.Language) {
			return v, true
		}
	}
	return available[0], true
}

func isEnglish(tag string) bool {
	return strings.HasPrefix(strings.ToLower(tag), "en")
}
