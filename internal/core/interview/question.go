package interview

import "regexp"

// questionRe is the best-effort interrogative scan inherited from the
// product: a span that ends in "?" or starts with a known opener. It is a
// known-imprecise heuristic, not a parser; when it finds nothing the active
// question simply stays put.
var questionRe = regexp.MustCompile(`(?:\?|Can you|Could you|How would you|What is|Explain)[^.?!]*\?`)

// ExtractQuestion returns the first question-looking span in a reply.
func ExtractQuestion(text string) (string, bool) {
	m := questionRe.FindString(text)
	if m == "" {
		return "", false
	}
	return m, true
}
