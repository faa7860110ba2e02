package models

import (
	"encoding/json"
	"fmt"
)

// Question is a question/answer pair. On the wire it is a two element array.
type Question struct {
	Question string
	Answer   string
}

func (q Question) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{q.Question, q.Answer})
}

func (q *Question) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("question pair has %d elements", len(pair))
	}
	q.Question, q.Answer = pair[0], pair[1]
	return nil
}

// QuestionPool maps a board letter to its questions.
type QuestionPool map[string][]Question

func (p QuestionPool) Clone() QuestionPool {
	out := make(QuestionPool, len(p))
	for letter, qs := range p {
		out[letter] = append([]Question(nil), qs...)
	}
	return out
}

// Count returns the number of questions across all letters.
func (p QuestionPool) Count() int {
	n := 0
	for _, qs := range p {
		n += len(qs)
	}
	return n
}

// Questions holds the shared reference pool and the session's own additions.
type Questions struct {
	General QuestionPool `json:"general"`
	Session QuestionPool `json:"session"`
}
