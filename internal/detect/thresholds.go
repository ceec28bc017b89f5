package detect

// Thresholds holds the cut-offs for the fuzzy and cosine cascade tiers.
type Thresholds struct {
	// Fuzzy is the minimum token-sort ratio (0..100) for tier two.
	Fuzzy int

	// Cos is the minimum cosine similarity (0..1) for tier three.
	Cos float64
}

// DefaultThresholds are the fixed cut-offs used outside the adaptive variant.
var DefaultThresholds = Thresholds{Fuzzy: 90, Cos: 0.75}

// AdaptiveThresholds derives cut-offs from the utterance word count and the
// topic count. Short answers get looser matching because there is little
// text to match against; many topics tighten both tiers to hold the false
// positive rate.
func AdaptiveThresholds(wordCount, topicCount int) Thresholds {
	var t Thresholds
	switch {
	case wordCount < 10:
		t = Thresholds{Fuzzy: 80, Cos: 0.60}
	case wordCount < 30:
		t = Thresholds{Fuzzy: 85, Cos: 0.70}
	default:
		t = Thresholds{Fuzzy: 90, Cos: 0.75}
	}
	if topicCount > 6 {
		t.Fuzzy += 5
		t.Cos += 0.05
	}
	return t
}
