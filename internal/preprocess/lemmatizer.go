package preprocess

import "strings"

// irregular maps inflected nouns whose base form no suffix rule recovers.
var irregular = map[string]string{
	"children":     "child",
	"people":       "person",
	"men":          "man",
	"women":        "woman",
	"mice":         "mouse",
	"geese":        "goose",
	"feet":         "foot",
	"teeth":        "tooth",
	"data":         "datum",
	"criteria":     "criterion",
	"phenomena":    "phenomenon",
	"analyses":     "analysis",
	"theses":       "thesis",
	"crises":       "crisis",
	"diagnoses":    "diagnosis",
	"hypotheses":   "hypothesis",
	"indices":      "index",
	"matrices":     "matrix",
	"vertices":     "vertex",
	"appendices":   "appendix",
	"leaves":       "leaf",
	"lives":        "life",
	"wives":        "wife",
	"knives":       "knife",
	"wolves":       "wolf",
	"halves":       "half",
	"shelves":      "shelf",
	"selves":       "self",
	"thieves":      "thief",
	"buses":        "bus",
	"gases":        "gas",
	"quizzes":      "quiz",
	"caches":       "cache",
	"niches":       "niche",
	"aches":        "ache",
	"headaches":    "headache",
	"avalanches":   "avalanche",
	"businessmen":  "businessman",
	"chairmen":     "chairman",
	"series":       "series",
	"species":      "species",
	"news":         "news",
	"physics":      "physics",
	"mathematics":  "mathematics",
	"economics":    "economics",
	"statistics":   "statistics",
	"politics":     "politics",
	"electronics":  "electronics",
}

// ieNouns are nouns ending in -ie whose plural must not become -y.
var ieNouns = map[string]bool{
	"movie": true, "cookie": true, "pie": true, "tie": true, "lie": true,
	"die": true, "calorie": true, "rookie": true, "zombie": true,
	"selfie": true, "prairie": true, "genie": true, "hippie": true,
}

// Lemmatize reduces an English noun to its base form using suffix rules and
// an exception table. Tokens containing non-letters are returned unchanged.
// The result is a fixed point: Lemmatize(Lemmatize(w)) == Lemmatize(w).
func Lemmatize(word string) string {
	l := lemmaOnce(word)
	if lemmaOnce(l) != l {
		return word
	}
	return l
}

func lemmaOnce(w string) string {
	if base, ok := irregular[w]; ok {
		return base
	}
	if len(w) <= 3 || !isLetters(w) {
		return w
	}
	switch {
	case strings.HasSuffix(w, "ss"), strings.HasSuffix(w, "us"), strings.HasSuffix(w, "is"):
		return w
	case strings.HasSuffix(w, "ies"):
		stem := strings.TrimSuffix(w, "s")
		if ieNouns[stem] || len(w) <= 4 {
			return stem
		}
		return strings.TrimSuffix(w, "ies") + "y"
	case strings.HasSuffix(w, "sses"):
		return strings.TrimSuffix(w, "es")
	case strings.HasSuffix(w, "ches"), strings.HasSuffix(w, "shes"), strings.HasSuffix(w, "xes"):
		return strings.TrimSuffix(w, "es")
	case strings.HasSuffix(w, "s"):
		return strings.TrimSuffix(w, "s")
	}
	return w
}

func isLetters(s string) bool {
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
