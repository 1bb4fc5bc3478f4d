// Package langdetect classifies the script of a text span into one of the
// recognition locales supported by the transcription providers.
//
// Detection is Unicode-block based: a span containing Devanagari characters
// maps to Hindi, Telugu characters to Telugu, and anything else falls back to
// Indian English. The result selects the STT recognition locale and is
// independent of speaker attribution.
package langdetect

// Locale is a BCP-47 recognition locale tag.
type Locale string

const (
	// LocaleEnglish is the default recognition locale.
	LocaleEnglish Locale = "en-IN"

	// LocaleHindi is selected when Devanagari script is present.
	LocaleHindi Locale = "hi-IN"

	// LocaleTelugu is selected when Telugu script is present.
	LocaleTelugu Locale = "te-IN"
)

// Unicode block ranges for the two alternate scripts.
const (
	devanagariLo = 0x0900
	devanagariHi = 0x097F
	teluguLo     = 0x0C00
	teluguHi     = 0x0C7F
)

// Detect returns the recognition locale for text. The first alternate-script
// rune decides; a span with no recognised alternate script, including the
// empty span, is English.
func Detect(text string) Locale {
	for _, r := range text {
		switch {
		case r >= devanagariLo && r <= devanagariHi:
			return LocaleHindi
		case r >= teluguLo && r <= teluguHi:
			return LocaleTelugu
		}
	}
	return LocaleEnglish
}
