package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// StringArray is a []string kept as a JSON array in a text column so sqlite,
// postgres and mysql share one schema. Rows written as a bare
// comma-separated list are read too.
type StringArray []string

func (a *StringArray) Scan(src any) error {
	var text string
	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		text = string(v)
	case string:
		text = v
	default:
		return fmt.Errorf("database: cannot scan %T into StringArray", src)
	}

	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "[") {
		return json.Unmarshal([]byte(text), (*[]string)(a))
	}

	out := StringArray{}
	for _, part := range strings.Split(text, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*a = out
	return nil
}

// Value never yields NULL; a nil slice is stored as "[]".
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(a))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (StringArray) GormDataType() string {
	return "text"
}
