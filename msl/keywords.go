package msl

import (
	"strings"
)

// UnnamedIdentifier is used for entities without a usable debug name.
const UnnamedIdentifier = "_unnamed"

// reservedKeywords contains C++14 and Metal keywords that cannot be used as
// identifiers, plus the standard library names generated code relies on.
var reservedKeywords = func() map[string]struct{} {
	words := []string{
		// C++
		"alignas", "alignof", "and", "and_eq", "asm", "auto", "bitand", "bitor", "bool",
		"break", "case", "catch", "char", "char16_t", "char32_t", "class", "compl", "const",
		"const_cast", "constexpr", "continue", "decltype", "default", "delete", "do", "double",
		"dynamic_cast", "else", "enum", "explicit", "export", "extern", "false", "float", "for",
		"friend", "goto", "if", "inline", "int", "long", "mutable", "namespace", "new",
		"noexcept", "not", "not_eq", "nullptr", "operator", "or", "or_eq", "private",
		"protected", "public", "register", "reinterpret_cast", "return", "short", "signed",
		"sizeof", "static", "static_assert", "static_cast", "struct", "switch", "template",
		"this", "thread_local", "throw", "true", "try", "typedef", "typeid", "typename",
		"union", "unsigned", "using", "virtual", "void", "volatile", "wchar_t", "while",
		"xor", "xor_eq",
		// Metal
		"kernel", "vertex", "fragment", "compute", "constant", "device", "thread",
		"threadgroup", "threadgroup_imageblock", "ray_data", "object_data", "half", "uchar",
		"ushort", "uint", "ulong", "size_t", "ptrdiff_t", "metal", "sampler", "texture",
		"array", "packed", "atomic", "visible", "stage_in", "patch", "main",
		// Standard library functions emitted by the renderer
		"abs", "all", "any", "as_type", "atan2", "ceil", "clamp", "cos", "cross", "dfdx",
		"dfdy", "discard_fragment", "distance", "dot", "exp", "exp2", "floor", "fmax", "fmin",
		"fmod", "fract", "fwidth", "length", "log", "log2", "max", "min", "mix", "normalize",
		"pow", "reflect", "rint", "round", "rsqrt", "select", "sin", "smoothstep", "sqrt",
		"step", "tan", "transpose", "trunc", "simd_ballot", "simd_broadcast",
		"simd_is_first", "simd_is_helper_thread", "simd_sum", "simd_all", "simd_any",
		"threadgroup_barrier", "mem_flags", "memory_order_relaxed", "in", "out",
		"patchIn", "patchOut", "gl_in", "gl_out",
	}
	out := make(map[string]struct{}, len(words)+64)
	for _, w := range words {
		out[w] = struct{}{}
	}
	for _, base := range []string{"bool", "char", "uchar", "short", "ushort", "int", "uint", "long", "ulong", "half", "float", "double"} {
		for n := 2; n <= 4; n++ {
			out[base+string(rune('0'+n))] = struct{}{}
			out["packed_"+base+string(rune('0'+n))] = struct{}{}
			if base == "half" || base == "float" || base == "double" {
				for c := 2; c <= 4; c++ {
					out[base+string(rune('0'+c))+"x"+string(rune('0'+n))] = struct{}{}
				}
			}
		}
	}
	return out
}()

// IsReserved checks if a name is an MSL reserved keyword.
func IsReserved(name string) bool {
	_, ok := reservedKeywords[name]
	return ok
}

// Escape returns a safe identifier name. Characters that cannot appear in
// an identifier become underscores, runs of underscores are collapsed since
// double underscores are reserved, and reserved or digit-led names get an
// underscore prefix.
func Escape(name string) string {
	if name == "" {
		return UnnamedIdentifier
	}
	var b strings.Builder
	b.Grow(len(name) + 1)
	prevUnderscore := false
	for _, r := range name {
		ok := r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
		if !ok {
			r = '_'
		}
		if r == '_' {
			if prevUnderscore {
				continue
			}
			prevUnderscore = true
		} else {
			prevUnderscore = false
		}
		b.WriteRune(r)
	}
	s := b.String()
	if s == "_" {
		return UnnamedIdentifier
	}
	if s[0] >= '0' && s[0] <= '9' || IsReserved(s) {
		return "_" + s
	}
	return s
}
