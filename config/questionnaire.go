package config

import (
	"SurveyBot/model"
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed questionnaire.yaml
var defaultQuestionnaire []byte

// DefaultQuestionnaire returns the built-in question set and texts.
func DefaultQuestionnaire() (model.Questionnaire, error) {
	var q model.Questionnaire
	if err := decodeStrict(defaultQuestionnaire, &q); err != nil {
		return model.Questionnaire{}, fmt.Errorf("decode built-in questionnaire: %w", err)
	}
	return q, nil
}

// LoadQuestionnaire reads a YAML questionnaire from path. Texts missing from
// the file keep their built-in values; a questions list replaces the built-in
// one entirely. An empty path returns the built-in questionnaire.
func LoadQuestionnaire(path string) (model.Questionnaire, error) {
	q, err := DefaultQuestionnaire()
	if err != nil {
		return model.Questionnaire{}, err
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return q, q.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return model.Questionnaire{}, fmt.Errorf("read questionnaire %s: %w", path, err)
	}
	return ParseQuestionnaire(data, q)
}

// ParseQuestionnaire decodes data over base.
func ParseQuestionnaire(data []byte, base model.Questionnaire) (model.Questionnaire, error) {
	q := base
	q.Questions = nil
	if err := decodeStrict(data, &q); err != nil {
		return model.Questionnaire{}, fmt.Errorf("parse questionnaire: %w", err)
	}
	if q.Questions == nil {
		q.Questions = base.Questions
	}
	if err := q.Validate(); err != nil {
		return model.Questionnaire{}, err
	}
	return q, nil
}

func decodeStrict(data []byte, out *model.Questionnaire) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(out)
}
