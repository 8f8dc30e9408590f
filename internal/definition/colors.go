package definition

import (
	"regexp"
	"strings"
)

// Section sign that prefixes every host formatting code.
const colorChar = '§'

// legacyCodes are the characters accepted after '&'.
const legacyCodes = "0123456789AaBbCcDdEeFfKkLlMmNnOoRrXx"

var hexColorPattern = regexp.MustCompile(`&#([A-Fa-f0-9]{6})`)

// TranslateColors converts operator colour shorthand into host formatting
// codes. "&#RRGGBB" becomes "§x§R§R§G§G§B§B", then "&c" style codes become
// "§c".
func TranslateColors(s string) string {
	if s == "" {
		return s
	}
	s = translateHex(s)
	return translateLegacy(s)
}

func translateHex(s string) string {
	return hexColorPattern.ReplaceAllStringFunc(s, func(match string) string {
		var b strings.Builder
		b.WriteRune(colorChar)
		b.WriteByte('x')
		for _, c := range match[2:] {
			b.WriteRune(colorChar)
			b.WriteRune(c)
		}
		return b.String()
	})
}

func translateLegacy(s string) string {
	runes := []rune(s)
	for i := 0; i < len(runes)-1; i++ {
		if runes[i] == '&' && strings.ContainsRune(legacyCodes, runes[i+1]) {
			runes[i] = colorChar
			runes[i+1] = toLowerASCII(runes[i+1])
		}
	}
	return string(runes)
}

func toLowerASCII(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}
