package engines

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"github.com/clarityread/readaloud/tts"
)

// MatchVoice picks a voice for want, which may be a voice id, a voice name
// or a language tag such as "en-GB". An empty want selects the default
// voice. It reports false when nothing suitable exists.
func MatchVoice(voices []tts.Voice, want string) (tts.Voice, bool) {
	if len(voices) == 0 {
		return tts.Voice{}, false
	}
	if want == "" {
		return DefaultVoice(voices), true
	}

	for _, v := range voices {
		if strings.EqualFold(v.ID, want) || strings.EqualFold(v.Name, want) {
			return v, true
		}
	}

	tag, err := language.Parse(want)
	if err != nil {
		return tts.Voice{}, false
	}
	return MatchLanguage(voices, tag)
}

// MatchLanguage returns the voice whose language best matches tag.
func MatchLanguage(voices []tts.Voice, tag language.Tag) (tts.Voice, bool) {
	var (
		tags       []language.Tag
		candidates []tts.Voice
	)
	for _, v := range voices {
		t, err := language.Parse(v.Language)
		if err != nil {
			continue
		}
		tags = append(tags, t)
		candidates = append(candidates, v)
	}
	if len(tags) == 0 {
		return tts.Voice{}, false
	}

	_, idx, conf := language.NewMatcher(tags).Match(tag)
	if conf == language.No {
		return tts.Voice{}, false
	}

	// prefer the default voice among equally good matches
	best := candidates[idx]
	for i, v := range candidates {
		if v.Default && tags[i] == tags[idx] {
			best = v
			break
		}
	}
	return best, true
}

// DefaultVoice returns the voice flagged as default, or the first one.
func DefaultVoice(voices []tts.Voice) tts.Voice {
	for _, v := range voices {
		if v.Default {
			return v
		}
	}
	return voices[0]
}

// ResolveVoice picks the voice for a read: want when set, else the
// configured language lang, else the default voice.
func ResolveVoice(voices []tts.Voice, want, lang string) (tts.Voice, error) {
	if want == "" {
		want = lang
	}
	v, ok := MatchVoice(voices, want)
	if !ok {
		return tts.Voice{}, fmt.Errorf("no voice matches %q", want)
	}
	return v, nil
}
