package spirv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamesRoundTrip(t *testing.T) {
	t.Run("ops", func(t *testing.T) {
		for _, op := range []Op{OpLoad, OpStore, OpAccessChain, OpGroupNonUniformElect, OpAtomicIAdd} {
			got, ok := ParseOp(op.String())
			require.True(t, ok, op.String())
			assert.Equal(t, op, got)
		}
	})
	t.Run("builtins", func(t *testing.T) {
		got, ok := ParseBuiltIn("FragCoord")
		require.True(t, ok)
		assert.Equal(t, BuiltInFragCoord, got)
		assert.Equal(t, "FragCoord", got.String())
	})
	t.Run("decorations", func(t *testing.T) {
		for _, d := range []Decoration{DecorationRowMajor, DecorationArrayStride, DecorationBuiltIn} {
			got, ok := ParseDecoration(d.String())
			require.True(t, ok, d.String())
			assert.Equal(t, d, got)
		}
	})
	t.Run("execution models", func(t *testing.T) {
		got, ok := ParseExecutionModel("GLCompute")
		require.True(t, ok)
		assert.Equal(t, ExecutionModelGLCompute, got)
	})
	t.Run("dims", func(t *testing.T) {
		got, ok := ParseDim("Cube")
		require.True(t, ok)
		assert.Equal(t, DimCube, got)
	})
}

func TestUnknownNames(t *testing.T) {
	_, ok := ParseOp("OpBogus")
	assert.False(t, ok)
	assert.Equal(t, "Op(9999)", Op(9999).String())
	assert.Equal(t, "BuiltIn(4000)", BuiltIn(4000).String())
}

func TestParseEnumWord(t *testing.T) {
	tests := []struct {
		word string
		want uint32
		ok   bool
	}{
		{"Function", uint32(StorageClassFunction), true},
		{"FragCoord", uint32(BuiltInFragCoord), true},
		{"Volatile|Aligned", 3, true},
		{"Aligned|Bogus", 0, false},
		{"Bogus", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.word, func(t *testing.T) {
			got, ok := ParseEnumWord(tt.word)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseGLSLstd450(t *testing.T) {
	v, ok := ParseGLSLstd450("FMix")
	require.True(t, ok)
	assert.Equal(t, uint32(GLSLstd450FMix), v)
	_, ok = ParseGLSLstd450("Frexp")
	assert.False(t, ok)
}

func TestOperandKinds(t *testing.T) {
	tests := []struct {
		name string
		op   Op
		i    int
		want bool
	}{
		{"extract composite", OpCompositeExtract, 0, true},
		{"extract index", OpCompositeExtract, 1, false},
		{"shuffle vectors", OpVectorShuffle, 1, true},
		{"shuffle component", OpVectorShuffle, 2, false},
		{"ext inst set", OpExtInst, 0, true},
		{"ext inst number", OpExtInst, 1, false},
		{"ext inst argument", OpExtInst, 2, true},
		{"load memory access", OpLoad, 1, false},
		{"variable storage class", OpVariable, 0, false},
		{"variable initializer", OpVariable, 1, true},
		{"access chain index", OpAccessChain, 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsIDOperand(tt.op, tt.i))
		})
	}
}

func TestOpClasses(t *testing.T) {
	assert.False(t, HasResult(OpStore))
	assert.True(t, HasResult(OpLoad))
	assert.False(t, HasResultType(OpLabel))
	assert.True(t, HasResultType(OpIAdd))
	assert.True(t, IsTerminator(OpReturn))
	assert.False(t, IsTerminator(OpLoopMerge))
	assert.True(t, IsAtomic(OpAtomicIAdd))
	assert.False(t, IsAtomic(OpLoad))
	assert.True(t, IsGroupNonUniform(OpGroupNonUniformElect))
}
