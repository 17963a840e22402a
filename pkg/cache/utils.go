package cache

import (
	"fmt"
	"strings"
)

// Key joins parts with ':' so "state", "NQ" becomes "state:NQ".
func Key(parts ...interface{}) string {
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = fmt.Sprint(p)
	}
	return strings.Join(s, ":")
}
