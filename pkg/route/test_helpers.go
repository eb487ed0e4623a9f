package route

import (
	"fmt"

	"pgregory.net/rapid"
)

// GenerateRoute draws a valid Route of up to six hops.
func GenerateRoute(t *rapid.T, label string) Route {
	hops := rapid.IntRange(0, 6).Draw(t, fmt.Sprintf("%s hops", label))
	r := make(Route, hops)
	for i := range r {
		if rapid.Bool().Draw(t, fmt.Sprintf("%s token %d", label, i)) {
			r[i] = Tok(rapid.StringMatching(`[a-z][a-z0-9_]{0,10}`).Draw(t, fmt.Sprintf("%s hop %d", label, i)))
		} else {
			r[i] = Num(rapid.Uint64().Draw(t, fmt.Sprintf("%s hop %d", label, i)))
		}
	}
	return r
}
