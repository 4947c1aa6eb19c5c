package miner

import (
	"strings"
	"unicode"
)

// SplitSentences breaks text at terminal punctuation followed by whitespace,
// keeping closing quotes with their sentence. Blank lines also end a sentence.
func SplitSentences(text string) []string {
	var out []string
	var b strings.Builder
	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			out = append(out, s)
		}
		b.Reset()
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' && i+1 < len(runes) && runes[i+1] == '\n' {
			flush()
			continue
		}
		b.WriteRune(r)
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		for i+1 < len(runes) && isCloser(runes[i+1]) {
			i++
			b.WriteRune(runes[i])
		}
		if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
			flush()
		}
	}
	flush()
	return out
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', '”', '’', ')':
		return true
	}
	return false
}

// Segment splits text into at most n contiguous groups of ceil(sentences/n)
// sentences. Short texts yield fewer groups.
func Segment(text string, n int) []string {
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}
	n = max(n, 1)
	size := (len(sentences) + n - 1) / n

	groups := make([]string, 0, n)
	for start := 0; start < len(sentences); start += size {
		end := min(start+size, len(sentences))
		groups = append(groups, strings.Join(sentences[start:end], " "))
	}
	return groups
}
