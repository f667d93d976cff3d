package listing

import "fmt"

// Kind identifies one of the portal's content listings.
type Kind string

const (
	KindVOD    Kind = "vod"
	KindSeries Kind = "series"
	KindTV     Kind = "tv"
)

// Kinds returns all listing kinds in display order.
func Kinds() []Kind {
	return []Kind{KindVOD, KindSeries, KindTV}
}

// ParseKind validates a user-supplied listing kind.
func ParseKind(value string) (Kind, error) {
	switch Kind(value) {
	case KindVOD, KindSeries, KindTV:
		return Kind(value), nil
	}
	return "", fmt.Errorf("unknown listing kind %q (expected vod, series, or tv)", value)
}

func (k Kind) String() string { return string(k) }
