package domain

import (
	"fmt"
	"strings"
)

const (
	EnglishName = "English"
	EnglishCode = "en"
)

// Language is a display name plus its ISO 639-1 code.
type Language struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

var languageCodes = map[string]string{
	"english":    "en",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"polish":     "pl",
	"romanian":   "ro",
	"ukrainian":  "uk",
	"russian":    "ru",
	"lithuanian": "lt",
	"latvian":    "lv",
	"bulgarian":  "bg",
	"hungarian":  "hu",
	"czech":      "cs",
	"slovak":     "sk",
	"dutch":      "nl",
	"irish":      "ga",
	"arabic":     "ar",
	"chinese":    "zh",
	"hindi":      "hi",
}

// LookupLanguage resolves a display name (case-insensitive) to a Language.
func LookupLanguage(name string) (Language, error) {
	trimmed := strings.TrimSpace(name)
	code, ok := languageCodes[strings.ToLower(trimmed)]
	if !ok {
		return Language{}, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, name)
	}
	return Language{Name: canonicalName(trimmed), Code: code}, nil
}

// TargetLanguages resolves requested names, drops English and duplicates
// (case-insensitive) and keeps request order.
func TargetLanguages(names []string) ([]Language, error) {
	seen := map[string]bool{EnglishCode: true}
	var out []Language
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		lang, err := LookupLanguage(name)
		if err != nil {
			return nil, err
		}
		if seen[lang.Code] {
			continue
		}
		seen[lang.Code] = true
		out = append(out, lang)
	}
	return out, nil
}

func canonicalName(s string) string {
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}
