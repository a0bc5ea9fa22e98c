package entity

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// DBTimeLayout is fixed width so that text timestamps sort lexically.
const DBTimeLayout = "2006-01-02T15:04:05.000000Z"

// DBTime scans timestamps from drivers that return time.Time (postgres)
// as well as from text columns (sqlite).
type DBTime struct {
	time.Time
}

func (dt DBTime) Value() (driver.Value, error) {
	return dt.Time.UTC(), nil
}

func (dt *DBTime) Scan(value interface{}) error {
	if value == nil {
		dt.Time = time.Time{}
		return nil
	}

	switch v := value.(type) {
	case time.Time:
		dt.Time = v.UTC()
	case string:
		return dt.parse(v)
	case []byte:
		return dt.parse(string(v))
	case int64:
		dt.Time = time.UnixMicro(v).UTC()
	default:
		return fmt.Errorf("cannot scan type %T into DBTime", value)
	}
	return nil
}

func (dt *DBTime) parse(s string) error {
	for _, layout := range []string{DBTimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			dt.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("cannot parse %q as DBTime", s)
}
