package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/afero"
	"gopkg.in/alecthomas/kingpin.v2"
)

var cfg struct {
	verbose bool
	inspect inspectParams
	patch   patchParams
	edit    editParams
}

var (
	consoleOutput = os.Stderr
	logger        = log.NewLogfmtLogger(consoleOutput)

	appFs = afero.NewOsFs()
)

func main() {
	ctx := withOutput(context.Background(), os.Stdout)

	app := kingpin.New(filepath.Base(os.Args[0]), "Inspect, disassemble and patch x86 ELF executables.").UsageWriter(os.Stdout)
	app.HelpFlag.Short('h')
	app.Flag("verbose", "Enable verbose logging.").Short('v').Default("false").BoolVar(&cfg.verbose)

	inspectCmd := app.Command("inspect", "Print headers, tables and a disassembly listing.")
	inspectCmd.Arg("file", "ELF file path").Required().StringsVar(&cfg.inspect.files)
	inspectCmd.Flag("section", "Section to disassemble.").Short('s').Default(".text").StringVar(&cfg.inspect.section)
	inspectCmd.Flag("mode", "Decoder mode: 0 follows the file class, 32 or 64 overrides it.").Default("0").IntVar(&cfg.inspect.mode)
	inspectCmd.Flag("no-disasm", "Skip the disassembly listing.").Default("false").BoolVar(&cfg.inspect.noDisasm)
	inspectCmd.Flag("branch-targets", "Annotate relative jumps and calls with their destination.").Default("false").BoolVar(&cfg.inspect.branchTargets)

	patchCmd := app.Command("patch", "Inject a payload and make it the entry point.")
	patchCmd.Arg("file", "ELF file path").Required().StringVar(&cfg.patch.file)
	patchCmd.Arg("payload", "Raw payload bytes file path").Required().StringVar(&cfg.patch.payload)
	patchCmd.Flag("output", "Where to write the patched file, default <file>.patched").Short('o').StringVar(&cfg.patch.output)
	patchCmd.Flag("donor-section", "Section header taken over to describe the payload.").Default(".note.ABI-tag").StringVar(&cfg.patch.donorSection)
	patchCmd.Flag("donor-segment", "Index of the PT_NOTE program header to take over, -1 for the first one.").Default("-1").IntVar(&cfg.patch.donorSegment)

	editCmd := app.Command("edit", "Apply a .patch script of offset addressed byte edits.")
	editCmd.Arg("file", "File path").Required().StringVar(&cfg.edit.file)
	editCmd.Arg("script", "Patch script path").Required().StringVar(&cfg.edit.script)
	editCmd.Flag("output", "Where to write the edited file, default <file>.patched").Short('o').StringVar(&cfg.edit.output)

	// parse command line arguments
	parsedCmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	// enable verbose logging if requested
	if !cfg.verbose {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	switch parsedCmd {
	case inspectCmd.FullCommand():
		os.Exit(checkError(inspect(ctx, &cfg.inspect)))
	case patchCmd.FullCommand():
		os.Exit(checkError(patch(ctx, &cfg.patch)))
	case editCmd.FullCommand():
		os.Exit(checkError(edit(ctx, &cfg.edit)))
	default:
		level.Error(logger).Log("msg", "unknown command", "cmd", parsedCmd)
		os.Exit(1)
	}
}

func checkError(err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(consoleOutput, "error: %v\n", err)
	return 1
}

type contextKey uint8

const (
	contextKeyOutput contextKey = iota
)

func withOutput(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, contextKeyOutput, w)
}

func output(ctx context.Context) io.Writer {
	if w, ok := ctx.Value(contextKeyOutput).(io.Writer); ok {
		return w
	}
	return os.Stdout
}
