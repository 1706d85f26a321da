package msl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNamer(t *testing.T) {
	n := newNamer()
	assert.Equal(t, "color", n.call("color"))
	assert.Equal(t, "color_1", n.call("color"))
	assert.Equal(t, "color_2", n.call("color"))
	assert.Equal(t, "_float", n.call("float"))
	assert.Equal(t, "_unnamed", n.call(""))

	n.reserve("tmp")
	assert.Equal(t, "tmp_1", n.call("tmp"))
}

func TestNamerScope(t *testing.T) {
	global := newNamer()
	global.call("buf")

	local := global.scope()
	assert.Equal(t, "buf_1", local.call("buf"))
	assert.Equal(t, "tmp", local.call("tmp"))

	assert.Equal(t, "tmp", global.call("tmp"), "names taken in a scope stay there")
}

func TestEscape(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"position", "position"},
		{"gl_Position", "gl_Position"},
		{"a.b", "a_b"},
		{"a__b", "a_b"},
		{"0start", "_0start"},
		{"kernel", "_kernel"},
		{"main", "_main"},
		{"_", UnnamedIdentifier},
		{"", UnnamedIdentifier},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Escape(tt.in))
		})
	}
	assert.True(t, IsReserved("threadgroup"))
	assert.False(t, IsReserved("color"))
}

func TestEntryName(t *testing.T) {
	assert.Equal(t, "main0", entryName("main"))
	assert.Equal(t, "vs_main", entryName("vs_main"))
	assert.Equal(t, "_vertex", entryName("vertex"))
}
