package main

import (
	"errors"
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/spvmsl/asm"
	"github.com/gogpu/spvmsl/msl"
)

func TestBindingFlags(t *testing.T) {
	tests := []struct {
		in   string
		want binding
	}{
		{"0:1=texture:3", binding{set: 0, binding: 1, target: msl.ResourceTarget{Texture: msl.Slot(3)}}},
		{"2:0=buffer:5", binding{set: 2, binding: 0, target: msl.ResourceTarget{Buffer: msl.Slot(5)}}},
		{"0:4=texture:1,sampler:2", binding{set: 0, binding: 4, target: msl.ResourceTarget{Texture: msl.Slot(1), Sampler: msl.Slot(2)}}},
		{"push:0=buffer:7", binding{set: msl.PushConstantDescriptorSet, target: msl.ResourceTarget{Buffer: msl.Slot(7)}}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var b bindingFlags
			require.NoError(t, b.Set(tt.in))
			require.Len(t, b, 1)
			assert.Equal(t, tt.want, b[0])
		})
	}
}

func TestBindingFlags_Errors(t *testing.T) {
	for _, in := range []string{"0:1", "0=buffer:1", "x:1=buffer:1", "0:1=buffer", "0:1=image:0", "0:1=buffer:-1"} {
		t.Run(in, func(t *testing.T) {
			var b bindingFlags
			assert.Error(t, b.Set(in))
			assert.Empty(t, b)
		})
	}
}

func TestFormatError(t *testing.T) {
	source := "OpCapability Shader\n%x = OpBogus\n"
	_, err := asm.Parse("test.spvasm", source)
	require.Error(t, err)

	out := formatError(err, source)
	assert.Contains(t, out, "error")
	assert.Contains(t, out, "test.spvasm:2:")
	assert.Contains(t, out, "%x = OpBogus")

	plain := formatError(errors.New("no entry point"), source)
	assert.Contains(t, plain, "no entry point")
}

func setFlags(t *testing.T, values map[string]string) {
	t.Helper()
	for name, value := range values {
		name := name
		f := flag.Lookup(name)
		require.NotNil(t, f, name)
		require.NoError(t, flag.Set(name, value))
		t.Cleanup(func() { _ = flag.Set(name, f.DefValue) })
	}
}

func TestBuildOptions(t *testing.T) {
	module, err := asm.Parse("test.spvasm", `
OpCapability Shader
OpMemoryModel Logical GLSL450
OpEntryPoint Vertex %main "main"
%void = OpTypeVoid
%fn = OpTypeFunction %void
%main = OpFunction %void None %fn
%entry = OpLabel
OpReturn
OpFunctionEnd`)
	require.NoError(t, err)

	t.Run("pipeline flags", func(t *testing.T) {
		setFlags(t, map[string]string{
			"msl":                  "2.3",
			"raw-tess-input":       "true",
			"dispatch-base":        "true",
			"multi-patch":          "true",
			"vertex-for-tess":      "true",
			"capture-output":       "true",
			"draw-parameters":      "true",
			"sample-rate":          "true",
			"patch-control-points": "4",
		})

		opts, err := buildOptions(module)
		require.NoError(t, err)
		o := opts.MSL
		assert.Equal(t, msl.Version{Major: 2, Minor: 3}, o.LangVersion)
		assert.True(t, o.RawBufferTessellationInput)
		assert.True(t, o.DispatchBase)
		assert.True(t, o.MultiPatchWorkgroup)
		assert.True(t, o.VertexForTessellation)
		assert.True(t, o.CaptureOutputToBuffer)
		assert.True(t, o.DrawParameters)
		assert.True(t, o.ForceSampleRateShading)
		assert.Equal(t, uint32(4), o.TessPatchControlPoints)
	})

	t.Run("defaults", func(t *testing.T) {
		opts, err := buildOptions(module)
		require.NoError(t, err)
		o := opts.MSL
		assert.False(t, o.RawBufferTessellationInput)
		assert.False(t, o.MultiPatchWorkgroup)
		assert.False(t, o.CaptureOutputToBuffer)
		assert.Zero(t, o.TessPatchControlPoints)
	})

	t.Run("bad version", func(t *testing.T) {
		setFlags(t, map[string]string{"msl": "bogus"})
		_, err := buildOptions(module)
		assert.Error(t, err)
	})
}
