// pyaot CLI - lowers Python syntax trees to Zig
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	verbosity := flag.Int("v", 0, "Log verbosity (0 = errors only, 2 = info, 3 = debug)")
	logFile := flag.String("log", "", "Write logs to this file instead of stderr")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pyaot [options] <command> [args]\n\n")
		fmt.Fprintf(os.Stderr, "Lowers JSON dumps of CPython ast modules to Zig source.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nCommands:\n")
		fmt.Fprintf(os.Stderr, "  build [-strict]          Lower the project's entry module and its imports (needs pyaot.toml)\n")
		fmt.Fprintf(os.Stderr, "  gen [-o out.zig] tree    Lower one syntax tree file to Zig\n")
		fmt.Fprintf(os.Stderr, "  deps                     Resolve dependencies and update pyaot.lock\n")
		fmt.Fprintf(os.Stderr, "  lsp                      Serve diagnostics over the language server protocol on stdio\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  pyaot build                   # src/main.json -> zig-out/src/main.zig\n")
		fmt.Fprintf(os.Stderr, "  pyaot gen hello.json          # print Zig on stdout\n")
		fmt.Fprintf(os.Stderr, "  pyaot -v 3 -log lsp.log lsp   # language server with debug logs\n")
	}
	flag.Parse()

	var path *string
	if *logFile != "" {
		path = logFile
	}
	commonlog.Configure(*verbosity, path)

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	args := flag.Args()[1:]
	switch flag.Arg(0) {
	case "build":
		handleBuildCommand(args)
	case "gen":
		handleGenCommand(args)
	case "deps":
		handleDepsCommand(args)
	case "lsp":
		handleLSPCommand(args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", flag.Arg(0))
		flag.Usage()
		os.Exit(2)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
