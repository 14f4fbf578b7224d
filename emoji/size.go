package emoji

import (
	"fmt"
	"sort"
	"strconv"
)

// Size is the rendition an asset is stored at: a square edge in pixels, or
// SizeFull for the original image.
type Size int

const (
	SizeFull Size = 0
	Size24   Size = 24
	Size36   Size = 36
	Size48   Size = 48
)

// AllSizes lists the supported renditions, smallest first and full last.
var AllSizes = []Size{Size24, Size36, Size48, SizeFull}

// ParseSize accepts "24", "36", "48" and "full".
func ParseSize(s string) (Size, error) {
	if s == "full" {
		return SizeFull, nil
	}
	n, err := strconv.Atoi(s)
	if err == nil {
		switch size := Size(n); size {
		case Size24, Size36, Size48:
			return size, nil
		}
	}
	return 0, fmt.Errorf("%q is not one of 24, 36, 48, full: %w", s, ErrInvalidInput)
}

// String implements fmt.Stringer.
func (s Size) String() string {
	if s == SizeFull {
		return "full"
	}
	return strconv.Itoa(int(s))
}

// MarshalText lets sizes be used as JSON object keys.
func (s Size) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Size) UnmarshalText(b []byte) error {
	size, err := ParseSize(string(b))
	if err != nil {
		return err
	}
	*s = size
	return nil
}

// less orders renditions smallest first, full last.
func (s Size) less(other Size) bool {
	if s == SizeFull {
		return false
	}
	if other == SizeFull {
		return true
	}
	return s < other
}

func sortSizes(sizes []Size) {
	sort.Slice(sizes, func(i, j int) bool {
		return sizes[i].less(sizes[j])
	})
}
