package language

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// DefaultTarget is used when no target language is configured.
const DefaultTarget = "pt-BR"

// Language is a resolved target language.
type Language struct {
	Code string
	Name string
}

// Resolve parses a BCP 47 tag such as "ko", "pt-BR" or "zh-Hant" and returns
// its canonical code with an English display name.
func Resolve(code string) (Language, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		code = DefaultTarget
	}
	tag, err := language.Parse(code)
	if err != nil {
		return Language{}, fmt.Errorf("unsupported language code %q: %w", code, err)
	}
	name := display.English.Tags().Name(tag)
	if name == "" {
		name = tag.String()
	}
	return Language{Code: tag.String(), Name: name}, nil
}

var commonCodes = []string{
	"ar", "de", "en", "es", "es-419", "fr", "hi", "id", "it", "ja", "ko",
	"nl", "pl", "pt-BR", "pt-PT", "ru", "sv", "th", "tr", "uk", "vi",
	"zh-Hans", "zh-Hant",
}

// Common returns frequently used targets. Any valid BCP 47 tag is accepted
// by Resolve; this list only feeds the CLI listing.
func Common() []Language {
	out := make([]Language, 0, len(commonCodes))
	for _, code := range commonCodes {
		if lang, err := Resolve(code); err == nil {
			out = append(out, lang)
		}
	}
	return out
}
