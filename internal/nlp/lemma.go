package nlp

import "strings"

// Lemma maps an already-normalised word to a canonical stem. The rules cover
// the regular Italian inflection classes (verb endings, plural/gender
// endings) with a small English fallback, which is enough for keyword-level
// lemma overlap. Irregular forms that matter for interviews are pinned in
// the exceptions table.
func Lemma(word string) string {
	if len(word) <= 3 {
		return word
	}
	if l, ok := lemmaExceptions[word]; ok {
		return l
	}

	for _, s := range verbSuffixes {
		if strings.HasSuffix(word, s.suffix) && len(word)-len(s.suffix) >= 2 {
			return word[:len(word)-len(s.suffix)] + s.replacement
		}
	}

	for _, s := range nounSuffixes {
		if strings.HasSuffix(word, s.suffix) && len(word)-len(s.suffix) >= 3 {
			return word[:len(word)-len(s.suffix)] + s.replacement
		}
	}

	return word
}

type suffixRule struct {
	suffix      string
	replacement string
}

// verbSuffixes reduce conjugated forms to the infinitive stem. Ordered
// longest-first so the most specific rule wins.
var verbSuffixes = []suffixRule{
	{"erebbero", "ere"},
	{"irebbero", "ire"},
	{"arono", "are"},
	{"avano", "are"},
	{"evano", "ere"},
	{"ivano", "ire"},
	{"ando", "are"},
	{"endo", "ere"},
	{"iamo", "are"},
	{"iate", "are"},
	{"ato", "are"},
	{"uto", "ere"},
	{"ito", "ire"},
	{"ava", "are"},
	{"eva", "ere"},
	{"iva", "ire"},
}

// nounSuffixes fold plural and feminine endings onto a shared stem, plus the
// common English plural endings so mixed-language answers still overlap.
var nounSuffixes = []suffixRule{
	{"zioni", "zione"},
	{"iche", "ica"},
	{"ici", "ico"},
	{"ghi", "go"},
	{"chi", "co"},
	{"ies", "y"},
	{"sses", "ss"},
	{"e", "a"},
	{"i", "o"},
	{"s", ""},
}

// lemmaExceptions pins high-frequency irregular forms that the suffix rules
// would mangle.
var lemmaExceptions = map[string]string{
	"sono":      "essere",
	"sei":       "essere",
	"siamo":     "essere",
	"siete":     "essere",
	"era":       "essere",
	"erano":     "essere",
	"stato":     "essere",
	"stata":     "essere",
	"fatto":     "fare",
	"fatta":     "fare",
	"faccio":    "fare",
	"facciamo":  "fare",
	"detto":     "dire",
	"dico":      "dire",
	"vado":      "andare",
	"andato":    "andare",
	"lavoro":    "lavoro",
	"lavori":    "lavoro",
	"lavorato":  "lavorare",
	"esperienza": "esperienza",
	"esperienze": "esperienza",
	"famiglia":  "famiglia",
	"famiglie":  "famiglia",
	"team":      "team",
	"went":      "go",
	"done":      "do",
	"made":      "make",
	"led":       "lead",
	"people":    "person",
}
