package health

import "strings"

// Tone is a coarse classification of an inbound message's disposition.
type Tone string

const (
	ToneEnthusiastic Tone = "enthusiastic"
	ToneNeutral      Tone = "neutral"
	ToneReluctant    Tone = "reluctant"
	ToneUnknown      Tone = "unknown"
)

// Verdict is the output of message classification.
type Verdict struct {
	Tone      Tone
	Objection bool
	Questions int
}

// Classifier turns free text into a tone/objection verdict. The keyword
// implementation is a known-brittle baseline; keeping it behind this
// interface lets a model-backed classifier replace it without touching
// any validator or analyzer rule logic.
type Classifier interface {
	Classify(text string) Verdict
}

// KeywordClassifier is the default phrase-list classifier.
type KeywordClassifier struct{}

// NewKeywordClassifier returns the default classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

var enthusiasticMarkers = []string{
	"great", "perfect", "awesome", "sounds good", "let's do it", "lets do it",
	"excited", "definitely", "absolutely", "can't wait", "yes!", "love",
}

var reluctantMarkers = []string{
	"maybe later", "not sure", "need to think", "have to check", "busy right now",
	"not a good time", "we'll see", "hold off", "not ready",
}

var objectionPhrases = []string{
	"already working with someone", "already have an agent", "already have a lender",
	"too busy", "not interested", "stop contacting", "found someone else",
	"going with another", "too expensive", "rates are too high",
}

// Classify runs the phrase lists against the text. Empty input classifies
// as unknown with no objection.
func (c *KeywordClassifier) Classify(text string) Verdict {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Verdict{Tone: ToneUnknown}
	}

	lower := strings.ToLower(trimmed)

	verdict := Verdict{
		Tone:      ToneNeutral,
		Questions: strings.Count(trimmed, "?"),
	}

	for _, phrase := range objectionPhrases {
		if strings.Contains(lower, phrase) {
			verdict.Objection = true
			break
		}
	}

	for _, marker := range reluctantMarkers {
		if strings.Contains(lower, marker) {
			verdict.Tone = ToneReluctant
			return verdict
		}
	}
	if verdict.Objection {
		verdict.Tone = ToneReluctant
		return verdict
	}

	for _, marker := range enthusiasticMarkers {
		if strings.Contains(lower, marker) {
			verdict.Tone = ToneEnthusiastic
			return verdict
		}
	}

	return verdict
}
