package browser

import "strings"

// MatchPhrase returns the first text that contains any of phrases,
// ignoring case and runs of whitespace.
func MatchPhrase(texts []string, phrases []string) (string, bool) {
	for _, text := range texts {
		norm := normalize(text)
		if norm == "" {
			continue
		}
		for _, p := range phrases {
			np := normalize(p)
			if np != "" && strings.Contains(norm, np) {
				return strings.TrimSpace(text), true
			}
		}
	}
	return "", false
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
