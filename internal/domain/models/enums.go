package models

import (
	"encoding/json"
	"fmt"
)

type namedEnum interface {
	~int
	String() string
}

// unmarshalEnum decodes the textual form of an enum with values 0..n-1.
func unmarshalEnum[T namedEnum](b []byte, dst *T, n int) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if v := T(i); v.String() == s {
			*dst = v
			return nil
		}
	}
	return fmt.Errorf("unknown %T %q", *dst, s)
}

func (s *Session) UnmarshalJSON(b []byte) error { return unmarshalEnum(b, s, int(SessionWeekend)+1) }

func (t *TrendDirection) UnmarshalJSON(b []byte) error { return unmarshalEnum(b, t, int(TrendDown)+1) }

func (v *VolatilityRegime) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, v, int(VolatilityVeryHigh)+1)
}

func (l *VolatilityLevel) UnmarshalJSON(b []byte) error { return unmarshalEnum(b, l, int(LevelExtreme)+1) }

func (s *ComponentState) UnmarshalJSON(b []byte) error { return unmarshalEnum(b, s, int(StateStale)+1) }
