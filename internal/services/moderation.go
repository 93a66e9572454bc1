package services

import (
	"regexp"
	"strings"
	"unicode"
)

// prohibitedWords are items that may not be offered on the marketplace.
// Entries are matched after CleanText, so they are written in canonical form.
var prohibitedWords = []string{
	"gun",
	"pistol",
	"ammo",
	"explosive",
	"cocaine",
	"heroin",
	"meth",
	"cannabis",
	"weed",
	"ma tuy",
	"sung",
	"counterfeit",
	"fake id",
	"hang gia",
	"ivory",
	"nga voi",
	"rhino horn",
	"sung te giac",
	"escort",
	"hack account",
	"stolen",
}

var obfuscationReplacer = strings.NewReplacer(
	"@", "a",
	"4", "a",
	"3", "e",
	"!", "i",
	"1", "i",
	"0", "o",
	"$", "s",
	"5", "s",
	"7", "t",
	"+", "t",
	"а", "a", // Cyrillic
	"е", "e",
	"і", "i",
	"о", "o",
	"р", "p",
)

var spaceRegex = regexp.MustCompile(`\s+`)

// CleanText normalizes text to canonical form: diacritics folded, common
// leetspeak substitutions undone, non-letters turned into spaces and
// repeated letters collapsed ("g.u.u.n" -> "g u n", "weeeed" -> "wed").
func CleanText(text string) string {
	cleaned := obfuscationReplacer.Replace(Fold(text))

	var b strings.Builder
	for _, r := range cleaned {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	cleaned = collapseRepeats(b.String())
	return strings.TrimSpace(spaceRegex.ReplaceAllString(cleaned, " "))
}

// collapseRepeats reduces runs of the same letter to one letter. Spaces are
// preserved.
func collapseRepeats(text string) string {
	var b strings.Builder
	last := rune(0)
	lastWasLetter := false
	for _, r := range text {
		isLetter := unicode.IsLetter(r)
		if isLetter && lastWasLetter && r == last {
			continue
		}
		b.WriteRune(r)
		last = r
		lastWasLetter = isLetter
	}
	return b.String()
}

// joinSingles glues runs of single-letter words back together so that
// spaced-out spellings ("g u n") are caught.
func joinSingles(cleaned string) string {
	words := strings.Fields(cleaned)
	var out []string
	var run strings.Builder
	flush := func() {
		if run.Len() > 0 {
			out = append(out, run.String())
			run.Reset()
		}
	}
	for _, w := range words {
		if len([]rune(w)) == 1 {
			run.WriteString(w)
			continue
		}
		flush()
		out = append(out, w)
	}
	flush()
	return strings.Join(out, " ")
}

// ProhibitedTerms returns the prohibited words found in text. Single words
// must match a whole word ("skunk" does not hit "gun"); phrases match as a
// contiguous substring.
func ProhibitedTerms(text string) []string {
	cleaned := CleanText(text)
	if cleaned == "" {
		return nil
	}
	candidates := []string{cleaned}
	if joined := joinSingles(cleaned); joined != cleaned {
		candidates = append(candidates, joined)
	}

	var hits []string
	for _, word := range prohibitedWords {
		canonical := collapseRepeats(word)
		for _, c := range candidates {
			if containsWord(c, canonical) {
				hits = append(hits, word)
				break
			}
		}
	}
	return hits
}
