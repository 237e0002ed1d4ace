package server

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ccxcon/ccxcon/internal/httperr"
	"github.com/ccxcon/ccxcon/server/database"
)

var (
	ErrInvalidJSON      = errors.New("must provide valid JSON")
	ErrNotJSONArray     = errors.New("this field must be a JSON array")
	ErrNotStringOrList  = errors.New("only supports string or list input types")
	ErrRequiredField    = errors.New("this field is required")
	ErrImmutableField   = errors.New("this field cannot be changed")
	ErrInvalidFieldType = errors.New("invalid value")
)

func fieldError(field string, err error) error {
	return httperr.BadRequest(fmt.Errorf("%s: %w", field, err))
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// parseJSONList reads a JSON array of strings, or a string holding one.
func parseJSONList(field string, raw json.RawMessage) (database.Subchapters, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if !json.Valid([]byte(text)) {
			return nil, fieldError(field, ErrInvalidJSON)
		}
		raw = json.RawMessage(text)
	}

	var values []any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fieldError(field, ErrNotJSONArray)
	}
	list := make(database.Subchapters, 0, len(values))
	for _, value := range values {
		s, ok := value.(string)
		if !ok {
			return nil, fieldError(field, ErrNotJSONArray)
		}
		list = append(list, s)
	}
	return list, nil
}

// parseStringOrList reads either a single string or a list of strings.
func parseStringOrList(field string, raw json.RawMessage) ([]string, error) {
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return []string{one}, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, fieldError(field, ErrNotStringOrList)
	}
	return many, nil
}

func optionalString(field string, raw json.RawMessage) (*string, error) {
	if isNull(raw) {
		return nil, nil
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fieldError(field, ErrInvalidFieldType)
	}
	return &value, nil
}

func optionalBool(field string, raw json.RawMessage) (*bool, error) {
	if isNull(raw) {
		return nil, nil
	}
	var value bool
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fieldError(field, ErrInvalidFieldType)
	}
	return &value, nil
}

func optionalInt(field string, raw json.RawMessage) (*int, error) {
	if isNull(raw) {
		return nil, nil
	}
	var value int
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fieldError(field, ErrInvalidFieldType)
	}
	return &value, nil
}

func requireString(field string, value *string) error {
	if value == nil || *value == "" {
		return fieldError(field, ErrRequiredField)
	}
	return nil
}
