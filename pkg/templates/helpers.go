package templates

import (
	"strings"
	"text/template"
	"unicode"
)

// FirstName returns the first word of a display name, or "" for blank input
func FirstName(fullName string) string {
	fields := strings.Fields(fullName)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// SanitizeName strips control characters and template delimiters from a user-supplied name
// so that it cannot alter the rendered prompt structure.
func SanitizeName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		switch r {
		case '{', '}', '<', '>':
			return -1
		}
		return r
	}, name)

	cleaned = strings.Join(strings.Fields(cleaned), " ")

	const maxLen = 80
	if runes := []rune(cleaned); len(runes) > maxLen {
		cleaned = string(runes[:maxLen])
	}
	return cleaned
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"lower":     strings.ToLower,
		"upper":     strings.ToUpper,
		"firstName": FirstName,
		"default": func(fallback, value string) string {
			if strings.TrimSpace(value) == "" {
				return fallback
			}
			return value
		},
	}
}
