package msl

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion(t *testing.T) {
	tests := []struct {
		v, o Version
		want bool
	}{
		{Version2_1, Version2_0, true},
		{Version2_1, Version2_1, true},
		{Version2_1, Version2_2, false},
		{Version3_0, Version2_3, true},
		{Version1_2, Version2_0, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s>=%s", tt.v, tt.o), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.v.AtLeast(tt.o))
		})
	}
	assert.Equal(t, "2.3", Version2_3.String())
}

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	assert.Equal(t, PlatformMacOS, o.Platform)
	assert.Equal(t, Version2_1, o.LangVersion)

	aux := map[AuxBuffer]uint32{
		AuxShaderInput:    22,
		AuxViewMask:       24,
		AuxDispatchBase:   25,
		AuxTessFactor:     26,
		AuxPatchOutput:    27,
		AuxShaderOutput:   28,
		AuxIndirectParams: 29,
	}
	for a, want := range aux {
		assert.Equal(t, want, o.auxIndex(a), a.String())
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Options)
		want   bool
	}{
		{"defaults", func(*Options) {}, true},
		{"argument buffers on 2.1", func(o *Options) { o.UseArgumentBuffers = true }, true},
		{"argument buffers on 1.2", func(o *Options) {
			o.UseArgumentBuffers = true
			o.LangVersion = Version1_2
		}, false},
		{"framebuffer fetch on macOS 2.1", func(o *Options) { o.FramebufferFetchSubpass = true }, false},
		{"framebuffer fetch on iOS", func(o *Options) {
			o.FramebufferFetchSubpass = true
			o.Platform = PlatformIOS
		}, true},
		{"capture and tessellation", func(o *Options) {
			o.CaptureOutputToBuffer = true
			o.VertexForTessellation = true
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultOptions()
			tt.modify(&o)
			err := o.validate()
			if tt.want {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			kind, ok := KindOf(err)
			require.True(t, ok)
			assert.Equal(t, ErrCapabilityMismatch, kind)
		})
	}
}

func TestOptionsRequire(t *testing.T) {
	o := DefaultOptions()
	assert.NoError(t, o.require("subgroups", *tierSubgroups))

	o.Platform = PlatformIOS
	err := o.require("subgroups", *tierSubgroups)
	require.Error(t, err)

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.True(t, e.IsCapabilityMismatch())
	require.NotNil(t, e.MinVersion)
	assert.Equal(t, Version2_2, *e.MinVersion)
	assert.Equal(t, "msl: CapabilityMismatch: subgroups requires MSL 2.2 on iOS", e.Error())
}

func TestErrors(t *testing.T) {
	tests := []struct {
		err  *Error
		kind ErrorKind
		text string
	}{
		{unsupported("geometry shaders"), ErrUnsupportedConstruct, "msl: UnsupportedConstruct: geometry shaders"},
		{invalid("value %d used before it is defined", 7), ErrInvalidModule, "msl: InvalidModule: value 7 used before it is defined"},
		{internal("pass %d", 2), ErrInternal, "msl: Internal: pass 2"},
		{NewError(ErrEntryPointNotFound, "no entry point"), ErrEntryPointNotFound, "msl: EntryPointNotFound: no entry point"},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.err.Kind)
			assert.Equal(t, tt.text, tt.err.Error())
			assert.Equal(t, tt.kind == ErrUnsupportedConstruct, tt.err.IsUnsupportedConstruct())
			assert.Equal(t, tt.kind == ErrInternal, tt.err.IsInternal())

			wrapped := fmt.Errorf("translating: %w", tt.err)
			kind, ok := KindOf(wrapped)
			require.True(t, ok)
			assert.Equal(t, tt.kind, kind)
		})
	}

	_, ok := KindOf(errors.New("plain"))
	assert.False(t, ok)
	assert.Equal(t, "Unknown", ErrorKind(200).String())
}

func TestAuxBufferString(t *testing.T) {
	assert.Equal(t, "spvIn", AuxShaderInput.String())
	assert.Equal(t, "spvTessLevel", AuxTessFactor.String())
	assert.Equal(t, "spvAux", AuxBuffer(99).String())
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    Version
		wantErr bool
	}{
		{in: "2.1", want: Version2_1},
		{in: "3.0", want: Version3_0},
		{in: "2", want: Version2_0},
		{in: "two", wantErr: true},
		{in: "2.x", wantErr: true},
		{in: "300.1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := ParseVersion(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestParsePlatform(t *testing.T) {
	p, err := ParsePlatform("iOS")
	require.NoError(t, err)
	assert.Equal(t, PlatformIOS, p)

	p, err = ParsePlatform("macos")
	require.NoError(t, err)
	assert.Equal(t, PlatformMacOS, p)

	_, err = ParsePlatform("tvos")
	assert.Error(t, err)
}
