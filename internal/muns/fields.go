package muns

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"delified/internal/models"
	"delified/internal/utils"
)

var (
	ErrInvalidMUN     = errors.New("invalid mun")
	ErrInvalidAnswers = errors.New("invalid registration answers")
)

var fieldKeyPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

const maxAnswerLength = 1000

// ValidateFields checks an organizer's custom field definitions.
func ValidateFields(fields []models.CustomField) error {
	seen := make(map[string]bool, len(fields))
	for i, f := range fields {
		switch {
		case !fieldKeyPattern.MatchString(f.Key):
			return fmt.Errorf("%w: custom field %d key %q must match [a-z0-9_]+", ErrInvalidMUN, i, f.Key)
		case seen[f.Key]:
			return fmt.Errorf("%w: duplicate custom field key %q", ErrInvalidMUN, f.Key)
		}
		seen[f.Key] = true

		switch f.Type {
		case models.FieldText, models.FieldNumber, models.FieldEmail, models.FieldCheckbox:
			if len(f.Options) > 0 {
				return fmt.Errorf("%w: only select fields take options (%s)", ErrInvalidMUN, f.Key)
			}
		case models.FieldSelect:
			if len(f.Options) == 0 {
				return fmt.Errorf("%w: select field %s needs at least one option", ErrInvalidMUN, f.Key)
			}
		default:
			return fmt.Errorf("%w: unknown type %q for field %s", ErrInvalidMUN, f.Type, f.Key)
		}
	}
	return nil
}

// ValidateAnswers checks registration answers against the MUN's fields and
// returns them trimmed. Missing optional checkboxes are recorded as "false".
func ValidateAnswers(fields []models.CustomField, answers map[string]string) (map[string]string, error) {
	known := make(map[string]models.CustomField, len(fields))
	for _, f := range fields {
		known[f.Key] = f
	}
	for key := range answers {
		if _, ok := known[key]; !ok {
			return nil, fmt.Errorf("%w: unknown field %q", ErrInvalidAnswers, key)
		}
	}

	out := make(map[string]string, len(fields))
	for _, f := range fields {
		value := answers[f.Key]
		value = strings.TrimSpace(value)
		if value == "" {
			if f.Required {
				return nil, fmt.Errorf("%w: %s is required", ErrInvalidAnswers, labelOf(f))
			}
			if f.Type == models.FieldCheckbox {
				out[f.Key] = "false"
			}
			continue
		}

		if len(value) > maxAnswerLength {
			return nil, fmt.Errorf("%w: %s is too long", ErrInvalidAnswers, labelOf(f))
		}
		if err := checkAnswer(f, value); err != nil {
			return nil, fmt.Errorf("%w: %s %v", ErrInvalidAnswers, labelOf(f), err)
		}
		out[f.Key] = value
	}
	return out, nil
}

func checkAnswer(f models.CustomField, value string) error {
	switch f.Type {
	case models.FieldNumber:
		n, err := strconv.ParseFloat(value, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return errors.New("must be a number")
		}
	case models.FieldEmail:
		if !utils.IsEmail(value) {
			return errors.New("must be a valid email")
		}
	case models.FieldSelect:
		for _, opt := range f.Options {
			if opt == value {
				return nil
			}
		}
		return fmt.Errorf("must be one of %v", f.Options)
	case models.FieldCheckbox:
		if value != "true" && value != "false" {
			return errors.New("must be true or false")
		}
	}
	return nil
}

func labelOf(f models.CustomField) string {
	if f.Label != "" {
		return f.Label
	}
	return f.Key
}
