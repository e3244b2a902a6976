package artifact

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

const (
	componentCount  = 4
	extraSeparator  = "_"
	formatSeparator = "."
	stringSeparator = "-"
)

var (
	partSeparator = regexp.MustCompile(`[.\-_]+`)

	// collate.Collator keeps scratch buffers and must not be shared unguarded.
	collatorMu sync.Mutex
	collator   = collate.New(language.English)
)

// Version is a parsed artifact version: major, minor, patch and build, each
// defaulting to the empty string. It is an immutable value.
type Version struct {
	Major string
	Minor string
	Patch string
	Build string

	raw string
}

// ParseVersion splits raw on '.', '-' and '_' into at most four components.
// Parts beyond the fourth are joined with '_' and appended to Build. Any input
// is accepted; malformed versions simply compare as strings.
func ParseVersion(raw string) Version {
	v := Version{raw: raw}
	parts := partSeparator.Split(raw, -1)
	fields := [componentCount]*string{&v.Major, &v.Minor, &v.Patch, &v.Build}
	for i := 0; i < len(parts) && i < componentCount; i++ {
		*fields[i] = parts[i]
	}
	if len(parts) > componentCount {
		v.Build += extraSeparator + strings.Join(parts[componentCount:], extraSeparator)
	}
	return v
}

// Raw returns the unparsed version string.
func (v Version) Raw() string { return v.raw }

// Format joins the non-empty components with dots.
func (v Version) Format() string {
	var out []string
	for _, p := range v.components() {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, formatSeparator)
}

func (v Version) String() string {
	c := v.components()
	return strings.Join(c[:], stringSeparator)
}

// IsZero reports whether v carries no version at all.
func (v Version) IsZero() bool { return v.raw == "" && v.Format() == "" }

func (v Version) components() [componentCount]string {
	return [componentCount]string{v.Major, v.Minor, v.Patch, v.Build}
}

// Compare returns -1, 0 or 1. Components are compared in order; a component is
// compared as a string when either side is empty or non-numeric, numerically
// otherwise. The first non-equal component decides.
func Compare(a, b Version) int {
	ac, bc := a.components(), b.components()
	for i := range ac {
		if r := compareComponent(ac[i], bc[i]); r != 0 {
			return r
		}
	}
	return 0
}

// Less orders versions ascending; handy for sort.Slice.
func Less(a, b Version) bool { return Compare(a, b) < 0 }

func compareComponent(a, b string) int {
	if a != "" && b != "" {
		an, aerr := strconv.ParseUint(a, 10, 64)
		bn, berr := strconv.ParseUint(b, 10, 64)
		if aerr == nil && berr == nil {
			switch {
			case an > bn:
				return 1
			case an < bn:
				return -1
			default:
				return 0
			}
		}
	}
	collatorMu.Lock()
	defer collatorMu.Unlock()
	return collator.CompareString(a, b)
}
