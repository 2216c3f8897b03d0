package model

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// StringList is stored as a native text[] column on PostgreSQL and as a
// JSON array on other dialects.
type StringList []string

// GormDataType names the field kind for schema parsing
func (StringList) GormDataType() string {
	return "stringlist"
}

// GormDBDataType picks the column type per dialect
func (StringList) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

// GormValue encodes the list for the active dialect
func (l StringList) GormValue(ctx context.Context, db *gorm.DB) clause.Expr {
	if db.Dialector.Name() == "postgres" {
		return clause.Expr{SQL: "?", Vars: []interface{}{pq.StringArray(l)}}
	}
	data, _ := json.Marshal([]string(l))
	return clause.Expr{SQL: "?", Vars: []interface{}{string(data)}}
}

// Value implements driver.Valuer for raw queries
func (l StringList) Value() (driver.Value, error) {
	return pq.StringArray(l).Value()
}

// Scan accepts both the PostgreSQL array literal and a JSON array
func (l *StringList) Scan(value interface{}) error {
	var raw string
	switch v := value.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		raw = string(v)
	case string:
		raw = v
	default:
		return fmt.Errorf("unsupported StringList source %T", value)
	}

	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "[") {
		var out []string
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return err
		}
		*l = out
		return nil
	}

	var arr pq.StringArray
	if err := arr.Scan([]byte(raw)); err != nil {
		return err
	}
	*l = StringList(arr)
	return nil
}

// CorrectAnswer holds the accepted answers of a listening question.
// MATCHING questions use Pairs, every other type uses Values.
type CorrectAnswer struct {
	Values []string
	Pairs  map[string]string
}

// IsMapping reports whether the answer is a key/value mapping
func (c CorrectAnswer) IsMapping() bool {
	return c.Pairs != nil
}

// MarshalJSON writes a list or an object
func (c CorrectAnswer) MarshalJSON() ([]byte, error) {
	if c.Pairs != nil {
		return json.Marshal(c.Pairs)
	}
	if c.Values == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.Values)
}

// UnmarshalJSON reads a list, an object, or a bare string
func (c *CorrectAnswer) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case strings.HasPrefix(trimmed, "{"):
		pairs := map[string]string{}
		if err := json.Unmarshal(data, &pairs); err != nil {
			return err
		}
		c.Pairs = pairs
		c.Values = nil
	case strings.HasPrefix(trimmed, "["):
		var values []string
		if err := json.Unmarshal(data, &values); err != nil {
			return err
		}
		c.Values = values
		c.Pairs = nil
	case strings.HasPrefix(trimmed, `"`):
		var single string
		if err := json.Unmarshal(data, &single); err != nil {
			return err
		}
		c.Values = []string{single}
		c.Pairs = nil
	default:
		return errors.New("correct answer must be a list, an object or a string")
	}
	return nil
}

// GormDBDataType stores the answer as JSON
func (CorrectAnswer) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "jsonb"
	}
	return "text"
}

// Value implements driver.Valuer
func (c CorrectAnswer) Value() (driver.Value, error) {
	data, err := c.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner
func (c *CorrectAnswer) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*c = CorrectAnswer{}
		return nil
	case []byte:
		return c.UnmarshalJSON(v)
	case string:
		return c.UnmarshalJSON([]byte(v))
	}
	return fmt.Errorf("unsupported CorrectAnswer source %T", value)
}
