package protocol

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// TimePointSec is a chain timestamp in whole seconds since the Unix epoch.
type TimePointSec uint32

// MaxTime marks a comment whose cashout already happened.
const MaxTime TimePointSec = math.MaxUint32

const timeLayout = "2006-01-02T15:04:05"

// FromTime truncates t to whole seconds.
func FromTime(t time.Time) TimePointSec {
	sec := t.Unix()
	switch {
	case sec <= 0:
		return 0
	case sec >= int64(MaxTime):
		return MaxTime
	}
	return TimePointSec(sec)
}

// ParseTime accepts the chain layout ("2006-01-02T15:04:05") or RFC 3339.
func ParseTime(s string) (TimePointSec, error) {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return FromTime(t), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("parse time %q: %w", s, err)
	}
	return FromTime(t), nil
}

// Time converts to a UTC time.Time.
func (t TimePointSec) Time() time.Time {
	return time.Unix(int64(t), 0).UTC()
}

// Unix returns the seconds since the epoch.
func (t TimePointSec) Unix() int64 {
	return int64(t)
}

// Add offsets t by seconds, saturating at MaxTime-1 so that a live cashout
// never collides with the paid-out marker.
func (t TimePointSec) Add(seconds int64) TimePointSec {
	v := int64(t) + seconds
	switch {
	case v < 0:
		return 0
	case v >= int64(MaxTime):
		return MaxTime - 1
	}
	return TimePointSec(v)
}

func (t TimePointSec) String() string {
	return t.Time().Format(timeLayout)
}

func (t TimePointSec) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimePointSec) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Plain seconds are accepted too.
		n, nerr := strconv.ParseUint(string(data), 10, 32)
		if nerr != nil {
			return fmt.Errorf("time must be a string or seconds: %w", err)
		}
		*t = TimePointSec(n)
		return nil
	}
	v, err := ParseTime(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}
