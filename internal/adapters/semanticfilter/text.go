package semanticfilter

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// fold приводит текст к нижнему регистру по правилам русского языка и заменяет "ё" на "е".
// cases.Caser хранит состояние, поэтому создается на каждый вызов.
func fold(s string) string {
	s = cases.Lower(language.Russian).String(s)
	return strings.ReplaceAll(s, "ё", "е")
}

func foldAll(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.TrimSpace(fold(w)); w != "" {
			out = append(out, w)
		}
	}
	return out
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// containsAt ищет вхождение kw в text. Если wordStart, вхождение должно начинаться
// с начала слова; если wholeWord, оно еще и должно заканчиваться на границе слова.
func containsAt(text, kw string, wordStart, wholeWord bool) bool {
	if kw == "" {
		return false
	}
	for offset := 0; offset < len(text); {
		i := strings.Index(text[offset:], kw)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(kw)

		ok := true
		if wordStart || wholeWord {
			if r, _ := utf8.DecodeLastRuneInString(text[:start]); start > 0 && isWordRune(r) {
				ok = false
			}
		}
		if ok && wholeWord {
			if r, _ := utf8.DecodeRuneInString(text[end:]); end < len(text) && isWordRune(r) {
				ok = false
			}
		}
		if ok {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
	return false
}

func containsSubstring(text string, keywords []string) (string, bool) {
	for _, kw := range keywords {
		if containsAt(text, kw, false, false) {
			return kw, true
		}
	}
	return "", false
}

func containsWord(text string, keywords []string) bool {
	for _, kw := range keywords {
		if containsAt(text, kw, true, true) {
			return true
		}
	}
	return false
}
