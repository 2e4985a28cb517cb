package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringList stores a set of strings as a JSON text column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		if v == "" {
			*l = nil
			return nil
		}
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported type %T for StringList", src)
	}
}

// Contains reports whether the list holds the given value.
func (l StringList) Contains(s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}

// StatusHits maps a status code (as string) to a hit count, stored as a JSON
// text column. String keys keep the column readable and match the shape the
// management API exposes.
type StatusHits map[string]int64

// Value implements driver.Valuer.
func (h StatusHits) Value() (driver.Value, error) {
	if len(h) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (h *StatusHits) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*h = nil
		return nil
	case []byte:
		return json.Unmarshal(v, h)
	case string:
		if v == "" {
			*h = nil
			return nil
		}
		return json.Unmarshal([]byte(v), h)
	default:
		return fmt.Errorf("unsupported type %T for StatusHits", src)
	}
}
