package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Date is a point in time that also accepts bare calendar dates
// ("2006-01-02") on input. It always encodes as RFC 3339.
type Date struct {
	time.Time
}

func NewDate(t time.Time) *Date { return &Date{Time: t.UTC()} }

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid date %q", s)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.UTC().Format(time.RFC3339Nano))
}
