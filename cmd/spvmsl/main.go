// Command spvmsl translates SPIR-V assembly to Metal Shading Language.
//
// Usage:
//
//	spvmsl [options] <input.spvasm>
//
// Examples:
//
//	spvmsl shader.spvasm                       # Translate the first entry point
//	spvmsl -entry vs_main -o vs.metal a.spvasm # Pick an entry point
//	spvmsl -platform ios -msl 2.2 shader.spvasm
//	spvmsl -bind 0:1=texture:3 shader.spvasm   # Pin set 0 binding 1 to texture(3)
//	spvmsl -list shader.spvasm                 # List entry points
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/fatih/color"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/gogpu/spvmsl"
	"github.com/gogpu/spvmsl/asm"
	"github.com/gogpu/spvmsl/ir"
	"github.com/gogpu/spvmsl/msl"
	"github.com/gogpu/spvmsl/spirv"
)

var (
	output    = flag.String("o", "", "output file (default: stdout)")
	entry     = flag.String("entry", "", "entry point name (default: first)")
	stage     = flag.String("stage", "", "execution model of the entry point, e.g. Vertex")
	platform  = flag.String("platform", "macos", "target platform: macos or ios")
	langVer   = flag.String("msl", "2.1", "target MSL version")
	argBufs   = flag.Bool("argbuf", false, "group descriptor sets into argument buffers")
	padOut    = flag.Bool("pad-outputs", false, "widen fragment outputs to four components")
	multiview = flag.Bool("multiview", false, "enable multiview rendering")
	emulate   = flag.Bool("emulate-subgroups", false, "emulate subgroups of one invocation")
	fbFetch   = flag.Bool("framebuffer-fetch", false, "read subpass inputs with framebuffer fetch")
	zeroWG    = flag.Bool("zero-workgroup", false, "zero-initialize threadgroup memory")
	pointSize = flag.Bool("point-size", false, "always write a point size from vertex shaders")
	rawTess   = flag.Bool("raw-tess-input", false, "read tessellation evaluation inputs from buffers")
	dispatch  = flag.Bool("dispatch-base", false, "support a non-zero base workgroup in compute dispatches")
	multiPat  = flag.Bool("multi-patch", false, "run several tessellation control patches per threadgroup")
	vertTess  = flag.Bool("vertex-for-tess", false, "compile a vertex stage that feeds tessellation")
	capture   = flag.Bool("capture-output", false, "write vertex outputs to a buffer")
	drawParam = flag.Bool("draw-parameters", false, "enable base vertex and base instance")
	perSample = flag.Bool("sample-rate", false, "force per-sample fragment shading")
	patchCP   = flag.Uint("patch-control-points", 0, "input patch size of tessellation stages (default: output vertices)")
	list      = flag.Bool("list", false, "list entry points and exit")
	showInfo  = flag.Bool("info", false, "print translation info to stderr")
	verbose   = flag.Int("v", 0, "log verbosity")
	version   = flag.Bool("version", false, "print version")
	bindings  bindingFlags
)

const spvmslVersion = "0.1.0-dev"

func init() {
	flag.Var(&bindings, "bind", "pin a resource, set:binding=kind:index[,kind:index] (repeatable)")
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *version {
		fmt.Printf("spvmsl version %s\n", spvmslVersion)
		return
	}
	commonlog.Configure(*verbose, nil)

	args := flag.Args()
	if len(args) < 1 {
		color.New(color.FgRed).Fprintln(os.Stderr, "Error: no input file specified")
		usage()
		os.Exit(1)
	}
	inputPath := args[0]

	source, err := os.ReadFile(inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}

	module, err := asm.Parse(inputPath, string(source))
	if err != nil {
		fmt.Fprint(os.Stderr, formatError(err, string(source)))
		os.Exit(1)
	}

	if *list {
		for _, ep := range module.EntryPoints {
			fmt.Printf("%s\t%s\n", ep.Model, ep.Name)
		}
		return
	}

	opts, err := buildOptions(module)
	if err != nil {
		fail(err)
	}
	pipeline, err := spvmsl.Pipeline(module, opts)
	if err != nil {
		fail(err)
	}
	out, info, err := msl.Compile(module, opts.MSL, pipeline)
	if err != nil {
		fmt.Fprint(os.Stderr, formatError(err, string(source)))
		os.Exit(1)
	}

	if *showInfo {
		printInfo(info)
	}

	if *output != "" {
		if err := os.WriteFile(*output, []byte(out), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
			os.Exit(1)
		}
		color.Green("Translated %s to %s (%s)", inputPath, *output, info.EntryPointName)
		return
	}
	if _, err := os.Stdout.WriteString(out); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		os.Exit(1)
	}
}

func fail(err error) {
	color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func buildOptions(module *ir.Module) (spvmsl.CompileOptions, error) {
	opts := spvmsl.DefaultOptions()
	o := &opts.MSL

	p, err := msl.ParsePlatform(*platform)
	if err != nil {
		return opts, err
	}
	v, err := msl.ParseVersion(*langVer)
	if err != nil {
		return opts, err
	}
	o.Platform = p
	o.LangVersion = v
	o.UseArgumentBuffers = *argBufs
	o.PadFragmentOutputComponents = *padOut
	o.MultiviewEnabled = *multiview
	o.EmulateSubgroups = *emulate
	o.FramebufferFetchSubpass = *fbFetch
	o.ZeroInitializeWorkgroupMemory = *zeroWG
	o.EnablePointSizeBuiltin = *pointSize
	o.RawBufferTessellationInput = *rawTess
	o.DispatchBase = *dispatch
	o.MultiPatchWorkgroup = *multiPat
	o.VertexForTessellation = *vertTess
	o.CaptureOutputToBuffer = *capture
	o.DrawParameters = *drawParam
	o.ForceSampleRateShading = *perSample
	o.TessPatchControlPoints = uint32(*patchCP)

	opts.EntryPoint = *entry
	if *stage != "" {
		model, ok := spirv.ParseExecutionModel(*stage)
		if !ok {
			return opts, fmt.Errorf("unknown stage %q", *stage)
		}
		opts.Stage = model
		opts.HasStage = true
	}

	if len(bindings) > 0 {
		model, ok := selectedStage(module, opts)
		if !ok {
			return opts, errors.New("-bind needs an entry point to attach bindings to")
		}
		opts.Bindings = make(msl.BindingTable, len(bindings))
		for _, b := range bindings {
			key := msl.ResourceKey{Stage: model, DescriptorSet: b.set, Binding: b.binding}
			opts.Bindings[key] = b.target
		}
	}
	return opts, nil
}

// selectedStage returns the execution model of the entry point opts picks.
func selectedStage(module *ir.Module, opts spvmsl.CompileOptions) (spirv.ExecutionModel, bool) {
	if opts.HasStage {
		return opts.Stage, true
	}
	if opts.EntryPoint != "" {
		if ep := module.FindEntryPoint(opts.EntryPoint); ep != nil {
			return ep.Model, true
		}
		return 0, false
	}
	if len(module.EntryPoints) == 0 {
		return 0, false
	}
	return module.EntryPoints[0].Model, true
}

// binding is one -bind flag.
type binding struct {
	set, binding uint32
	target       msl.ResourceTarget
}

type bindingFlags []binding

func (b *bindingFlags) String() string {
	return fmt.Sprintf("%d bindings", len(*b))
}

func (b *bindingFlags) Set(s string) error {
	key, slots, ok := strings.Cut(s, "=")
	if !ok {
		return fmt.Errorf("expected set:binding=kind:index, got %q", s)
	}
	setStr, bindStr, ok := strings.Cut(key, ":")
	if !ok {
		return fmt.Errorf("expected set:binding, got %q", key)
	}
	set, err := parseSet(setStr)
	if err != nil {
		return err
	}
	bnd, err := strconv.ParseUint(bindStr, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid binding %q", bindStr)
	}
	pin := binding{set: set, binding: uint32(bnd)}
	for _, slot := range strings.Split(slots, ",") {
		kind, idxStr, ok := strings.Cut(slot, ":")
		if !ok {
			return fmt.Errorf("expected kind:index, got %q", slot)
		}
		idx, err := strconv.ParseUint(idxStr, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid index %q", idxStr)
		}
		switch kind {
		case "buffer":
			pin.target.Buffer = msl.Slot(uint32(idx))
		case "texture":
			pin.target.Texture = msl.Slot(uint32(idx))
		case "sampler":
			pin.target.Sampler = msl.Slot(uint32(idx))
		default:
			return fmt.Errorf("unknown slot kind %q", kind)
		}
	}
	*b = append(*b, pin)
	return nil
}

// parseSet reads a descriptor set number; "push" names push constants.
func parseSet(s string) (uint32, error) {
	if s == "push" {
		return msl.PushConstantDescriptorSet, nil
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid descriptor set %q", s)
	}
	return uint32(n), nil
}

func printInfo(info msl.TranslationInfo) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(os.Stderr, "%s %s\n", bold("entry point:"), info.EntryPointName)
	fmt.Fprintf(os.Stderr, "%s %v\n", bold("input locations:"), info.InputLocations)
	fmt.Fprintf(os.Stderr, "%s %v\n", bold("output locations:"), info.OutputLocations)
	for id, t := range info.AutomaticResources {
		fmt.Fprintf(os.Stderr, "%s %%%d%s\n", bold("automatic resource:"), id, describeTarget(t))
	}
	if len(info.AuxBuffers) > 0 {
		fmt.Fprintf(os.Stderr, "%s %v\n", bold("auxiliary buffers:"), info.AuxBuffers)
	}
	if info.RasterizationDisabled {
		color.New(color.FgYellow).Fprintln(os.Stderr, "rasterization disabled")
	}
	fmt.Fprintf(os.Stderr, "%s %d\n", bold("passes:"), info.Passes)
}

func describeTarget(t msl.ResourceTarget) string {
	var sb strings.Builder
	if t.Buffer != nil {
		fmt.Fprintf(&sb, " buffer(%d)", *t.Buffer)
	}
	if t.Texture != nil {
		fmt.Fprintf(&sb, " texture(%d)", *t.Texture)
	}
	if t.Sampler != nil {
		fmt.Fprintf(&sb, " sampler(%d)", *t.Sampler)
	}
	return sb.String()
}

// formatError renders err, quoting the offending source line when the
// error carries a position.
func formatError(err error, source string) string {
	red := color.New(color.FgRed).SprintFunc()

	var pos lexer.Position
	message := err.Error()
	var asmErr *asm.Error
	var parseErr participle.Error
	switch {
	case errors.As(err, &asmErr):
		pos, message = asmErr.Pos, asmErr.Message
	case errors.As(err, &parseErr):
		pos, message = parseErr.Position(), parseErr.Message()
	default:
		return fmt.Sprintf("%s: %s\n", red("error"), message)
	}

	lines := strings.Split(source, "\n")
	lineContent := ""
	if pos.Line-1 >= 0 && pos.Line-1 < len(lines) {
		lineContent = lines[pos.Line-1]
	}
	bold := color.New(color.Bold).SprintFunc()
	marker := strings.Repeat(" ", max(0, pos.Column-1)) + "^"
	indent := strings.Repeat(" ", max(3, len(strconv.Itoa(pos.Line))))

	return fmt.Sprintf(
		"%s: %s\n%s┌─ %s:%d:%d\n%s│\n%3d│%s\n%s│%s\n\n",
		red("error"), message,
		indent, pos.Filename, pos.Line, pos.Column,
		indent,
		pos.Line, lineContent,
		indent, bold(marker),
	)
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: spvmsl [options] <input.spvasm>\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  spvmsl shader.spvasm                  Translate to stdout\n")
	fmt.Fprintf(os.Stderr, "  spvmsl -o shader.metal shader.spvasm  Translate to file\n")
	fmt.Fprintf(os.Stderr, "  spvmsl -entry main -stage Fragment a  Pick an entry point\n")
	fmt.Fprintf(os.Stderr, "  spvmsl -bind 0:2=buffer:4 a.spvasm    Pin a resource slot\n")
}
