package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRoomNumber(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		expected  ParsedRoom
		expectErr bool
	}{
		{
			name:     "Three digits",
			raw:      "101",
			expected: ParsedRoom{Floor: 1, Seq: 1},
		},
		{
			name:     "Four digits",
			raw:      "1205",
			expected: ParsedRoom{Floor: 12, Seq: 5},
		},
		{
			name:     "Wing with dash",
			raw:      "A-305",
			expected: ParsedRoom{Wing: "A", Floor: 3, Seq: 5},
		},
		{
			name:     "Wing and dashed floor",
			raw:      "b 12-04",
			expected: ParsedRoom{Wing: "B", Floor: 12, Seq: 4},
		},
		{
			name:     "Floor marker",
			raw:      "3F-12",
			expected: ParsedRoom{Floor: 3, Seq: 12},
		},
		{
			name:     "Surrounding spaces",
			raw:      "  EAST   210 ",
			expected: ParsedRoom{Wing: "EAST", Floor: 2, Seq: 10},
		},
		{
			name:      "Too short",
			raw:       "12",
			expectErr: true,
		},
		{
			name:      "Letters only",
			raw:       "Penthouse",
			expectErr: true,
		},
		{
			name:      "Empty",
			raw:       "   ",
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := ParseRoomNumber(tc.raw)
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, parsed)
		})
	}
}
