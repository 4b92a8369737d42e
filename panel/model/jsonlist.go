package model

import (
	"database/sql/driver"
	"fmt"

	"github.com/goccy/go-json"
)

// Int64List / StringList / StringMap：JSON 列（TEXT 存储），SQLite/MySQL 通用。

type Int64List []int64

func (l Int64List) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]int64(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *Int64List) Scan(value any) error {
	return scanJSONList(value, l)
}

type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(value any) error {
	return scanJSONList(value, l)
}

type StringMap map[string]string

func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]string(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *StringMap) Scan(value any) error {
	return scanJSONList(value, m)
}

func scanJSONList(value, dst any) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	default:
		return fmt.Errorf("json list scan: unsupported src type %T", value)
	}
}
