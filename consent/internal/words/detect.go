package words

import "github.com/abadojack/whatlanggo"

// DetectLang returns the ISO 639-1 code of the language of text, or "" when
// the text is too short or the guess is unreliable.
func DetectLang(text string) string {
	if CountWords(Normalize(text)) < 3 {
		return ""
	}
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}
