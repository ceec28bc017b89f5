package detect

import (
	"strings"

	"github.com/MrWong99/kolloq/internal/nlp"
)

// The interview runs in Italian, so the evasion phrase sets are Italian too.
// Matching is by substring over the normalised utterance, which makes the
// lists robust to accents and apostrophe variants.

// dontKnowPhrases flag answers that amount to "I don't know".
var dontKnowPhrases = normalizeAll([]string{
	"non lo so",
	"non so",
	"non ne ho idea",
	"non ho idea",
	"non saprei",
	"non so rispondere",
	"non so che dire",
	"non so la risposta",
	"non conosco la risposta",
	"non ho certezze in merito",
	"non mi risulta",
	"non ho abbastanza dati per rispondere",
	"boh",
	"bho",
	"ma che ne so",
	"eh, chi lo sa",
	"non ne ho la più pallida idea",
	"passo",
	"mi sfugge, sinceramente",
	"mai sentito, davvero",
	"se lo scopro te lo dico",
	"avrei voluto saperlo anch'io",
	"anche google avrebbe difficoltà",
	"un giorno forse lo sapremo",
	"attualmente non dispongo di queste informazioni",
	"mi riservo di verificare",
	"non sono in grado di fornire una risposta precisa",
	"è fuori dalla mia area di competenza",
	"mi informerò al riguardo",
	"al momento non posso confermare",
	"non lo conosco",
	"chi può dirlo",
	"mi cogli impreparato",
	"mi cogli impreparata",
	"è un mistero anche per me",
	"preferisco non sbilanciarmi",
	"dovrei controllare",
	"devo controllare",
	"non sono sicuro",
	"non sono sicura",
	"non ho abbastanza informazioni",
	"bella domanda",
	"me lo stavo chiedendo anch'io",
	"non è il mio campo",
	"forse qualcuno più esperto lo sa",
	"ci devo pensare su",
	"mai sentito prima",
	"non mi viene in mente",
	"mi sfugge in questo momento",
	"mi sfugge",
})

// repeatedQuestionPhrases flag answers claiming the question was already
// asked.
var repeatedQuestionPhrases = normalizeAll([]string{
	"questa domanda l'hai già fatta",
	"questa domanda l'ha già fatta",
	"me lo hai già chiesto",
	"ne abbiamo già parlato",
	"mi pare che tu l'abbia già chiesto",
	"se non sbaglio, l'hai già chiesto",
	"è una domanda ripetuta",
	"l'abbiamo già affrontata",
	"abbiamo già toccato questo punto",
	"me lo ha già chiesto",
	"mi sembra di aver risposto a questa",
	"penso di averti già risposto a riguardo",
	"non vorrei ripetermi, ma l'hai già chiesto",
	"questa mi suona molto familiare",
	"c'è un'eco qui o l'hai già detta",
	"ci risiamo",
	"l'hai già chiesta, ascolta meglio",
	"quante volte devo rispondere",
	"non è la prima volta che me lo chiedi",
	"già risposto, non insistere",
	"è la stessa domanda di prima",
	"sei ripetitivo",
	"sei ripetitiva",
	"lo hai già detto",
	"lo hai già chiesto",
	"me l'hai già chiesto",
	"ti stai ripetendo",
	"l'hai già detto",
	"perché me lo chiedi di nuovo",
	"penso che me lo hai già chiesto",
})

// IsDontKnow reports whether the utterance contains a "don't know" phrase.
func IsDontKnow(utterance string) bool {
	return containsAny(nlp.Normalize(utterance), dontKnowPhrases)
}

// IsRepeatedQuestionComplaint reports whether the utterance claims the
// question was already asked.
func IsRepeatedQuestionComplaint(utterance string) bool {
	return containsAny(nlp.Normalize(utterance), repeatedQuestionPhrases)
}

func normalizeAll(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if n := nlp.Normalize(p); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func containsAny(normalised string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(normalised, p) {
			return true
		}
	}
	return false
}
