package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeCardinal(t *testing.T) {
	tests := []struct {
		name   string
		format byte
		value  []byte
		want   uint32
		ok     bool
	}{
		{"pid", 32, []byte{0xd2, 0x04, 0x00, 0x00}, 1234, true},
		{"zero is present", 32, []byte{0, 0, 0, 0}, 0, true},
		{"extra bytes ignored", 32, []byte{1, 0, 0, 0, 9, 9, 9, 9}, 1, true},
		{"large", 32, []byte{0xff, 0xff, 0xff, 0x7f}, 0x7fffffff, true},
		{"absent", 0, nil, 0, false},
		{"short", 32, []byte{1, 2}, 0, false},
		{"wrong format", 8, []byte{1, 0, 0, 0}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := decodeCardinal(tt.format, tt.value)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
