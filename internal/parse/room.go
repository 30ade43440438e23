package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	spaceRe  = regexp.MustCompile(`\s+`)
	wingRe   = regexp.MustCompile(`^([A-Z]+)[\s-]*`)
	dashedRe = regexp.MustCompile(`^(\d+)\s*F?\s*-\s*(\d+)$`)
	packedRe = regexp.MustCompile(`^(\d{3,})$`)
)

// ParsedRoom holds the structured data parsed from a room number.
type ParsedRoom struct {
	Wing  string
	Floor int
	Seq   int
}

// ParseRoomNumber extracts wing, floor and sequence from a room number such
// as "101", "1205", "A-305", "B 12-04" or "3F-12". Packed numbers use the
// last two digits as the sequence.
func ParseRoomNumber(raw string) (ParsedRoom, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = spaceRe.ReplaceAllString(s, " ")
	if s == "" {
		return ParsedRoom{}, fmt.Errorf("empty room number")
	}

	var wing string
	if loc := wingRe.FindStringSubmatchIndex(s); loc != nil {
		wing = s[loc[2]:loc[3]]
		s = strings.TrimSpace(s[loc[1]:])
	}

	if m := dashedRe.FindStringSubmatch(s); m != nil {
		floor, errFloor := strconv.Atoi(m[1])
		seq, errSeq := strconv.Atoi(m[2])
		if errFloor == nil && errSeq == nil {
			return ParsedRoom{Wing: wing, Floor: floor, Seq: seq}, nil
		}
	}

	if m := packedRe.FindStringSubmatch(s); m != nil {
		digits := m[1]
		floor, errFloor := strconv.Atoi(digits[:len(digits)-2])
		seq, errSeq := strconv.Atoi(digits[len(digits)-2:])
		if errFloor == nil && errSeq == nil {
			return ParsedRoom{Wing: wing, Floor: floor, Seq: seq}, nil
		}
	}

	return ParsedRoom{}, fmt.Errorf("unable to parse room number: %q", raw)
}
