package trigger

import "strings"

// Utterance is one recognized speech segment
type Utterance struct {
	Text    string
	IsFinal bool
}

// Event is emitted once per utterance that contains a trigger word
type Event struct {
	Word          string `json:"word"`
	UtteranceText string `json:"text"`
}

// Match reports the first word of words contained in the utterance text.
//
// Words are tried in the set's sorted order, so when several words occur in the
// same utterance the lexicographically smallest one is reported. Matching is
// plain substring containment on the lower-cased text: "cat" matches
// "category". There is no word-boundary check.
func Match(u Utterance, words WordSet) (Event, bool) {
	if len(words.words) == 0 {
		return Event{}, false
	}
	text := fold(u.Text)
	if text == "" {
		return Event{}, false
	}
	for _, w := range words.words {
		if strings.Contains(text, w) {
			return Event{Word: w, UtteranceText: u.Text}, true
		}
	}
	return Event{}, false
}
