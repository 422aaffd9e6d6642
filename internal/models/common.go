package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSON maps onto a JSONB column. Webhook audit rows use it to keep the
// provider's payload queryable as received, whatever fields enKap adds
// over time.
type JSON map[string]interface{}

// Value implements driver.Valuer
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner. The postgres driver hands JSONB back as
// []byte or string depending on the scan path.
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSON", value)
	}

	var result JSON
	if err := json.Unmarshal(data, &result); err != nil {
		return err
	}
	*j = result
	return nil
}
