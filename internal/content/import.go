package content

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// importSchema validates the shape of a bulk question import before any
// record is constructed. Schema violations reject the whole batch.
const importSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["course_id", "questions"],
  "properties": {
    "course_id": {"type": "string", "minLength": 1},
    "questions": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "text", "type", "level"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "text": {"type": "string", "minLength": 1},
          "type": {"enum": ["MULTIPLE_CHOICE", "SHORT_ANSWER"]},
          "level": {"type": "integer", "minimum": 1, "maximum": 5},
          "topic": {"type": "string"},
          "options": {
            "type": "array",
            "items": {"type": "string"},
            "minItems": 4,
            "maxItems": 4
          },
          "answer": {"type": "string", "pattern": "^[A-Da-d]$"},
          "reference": {"type": "string"},
          "explanation": {"type": "string"}
        }
      }
    }
  }
}`

// importPayload is the JSON shape of a question import document.
type importPayload struct {
	CourseID  string `json:"course_id"`
	Questions []struct {
		ID          string   `json:"id"`
		Text        string   `json:"text"`
		Type        string   `json:"type"`
		Level       int      `json:"level"`
		Topic       string   `json:"topic"`
		Options     []string `json:"options"`
		Answer      string   `json:"answer"`
		Reference   string   `json:"reference"`
		Explanation string   `json:"explanation"`
	} `json:"questions"`
}

// ImportQuestions parses and validates a JSON question import document.
// The batch is all-or-nothing: one malformed record rejects the import.
func ImportQuestions(data []byte) (string, []Question, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(importSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return "", nil, fmt.Errorf("validating import: %w", err)
	}
	if !result.Valid() {
		errs := result.Errors()
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.String())
		}
		return "", nil, fmt.Errorf("invalid import document: %v", msgs)
	}

	var payload importPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", nil, fmt.Errorf("decoding import: %w", err)
	}

	qs := make([]Question, 0, len(payload.Questions))
	for _, raw := range payload.Questions {
		var (
			q    Question
			qerr error
		)
		switch raw.Type {
		case "MULTIPLE_CHOICE":
			q, qerr = NewChoiceQuestion(raw.ID, raw.Text, raw.Level, payload.CourseID, raw.Options, raw.Answer, raw.Explanation)
		case "SHORT_ANSWER":
			q, qerr = NewFreeTextQuestion(raw.ID, raw.Text, raw.Level, payload.CourseID, raw.Reference, raw.Explanation)
		}
		if qerr != nil {
			return "", nil, fmt.Errorf("record %s: %w", raw.ID, qerr)
		}
		q.TopicName = raw.Topic
		qs = append(qs, q)
	}

	return payload.CourseID, qs, nil
}
