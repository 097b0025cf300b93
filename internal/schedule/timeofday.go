package schedule

import (
	"errors"
	"fmt"
)

// TimeOfDay is minutes since midnight. It renders as a zero-padded
// 24-hour "HH:MM" string, which is also the wire and storage format;
// slot matching everywhere is plain equality on that value.
type TimeOfDay int

var ErrBadTimeOfDay = errors.New("time of day must be HH:MM")

// ParseTimeOfDay parses a strict zero-padded "HH:MM" string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, ErrBadTimeOfDay
	}
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return 0, ErrBadTimeOfDay
		}
	}

	hours := int(s[0]-'0')*10 + int(s[1]-'0')
	minutes := int(s[3]-'0')*10 + int(s[4]-'0')
	if hours > 23 || minutes > 59 {
		return 0, ErrBadTimeOfDay
	}

	return TimeOfDay(hours*60 + minutes), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return ErrBadTimeOfDay
	}
	parsed, err := ParseTimeOfDay(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
