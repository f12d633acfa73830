package util

import (
	"strings"
)

var separators = strings.NewReplacer(
	",", " ", ".", " ", "!", " ", "?", " ", ":", " ", ";", " ", "/", " ",
	"_", " ", "-", " ", "\n", " ", "\t", " ", "\r", " ", "(", " ", ")", " ",
)

// Tokenize lowercases s and splits it on spaces and punctuation.
func Tokenize(s string) []string {
	return strings.Fields(separators.Replace(strings.ToLower(s)))
}

// ContainsAnyCaseInsensitive returns true if text contains any of the needles (case-insensitive).
func ContainsAnyCaseInsensitive(text string, needles []string) bool {
	lt := strings.ToLower(text)
	for _, n := range needles {
		if strings.Contains(lt, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

// HasAnyToken reports whether any token of text equals one of words.
func HasAnyToken(text string, words ...string) bool {
	for _, tok := range Tokenize(text) {
		for _, w := range words {
			if tok == w {
				return true
			}
		}
	}
	return false
}
