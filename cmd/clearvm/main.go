package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/clear-lang/clearvm/bytecode"
	"github.com/clear-lang/clearvm/vm"
)

func main() {
	var (
		file        = flag.String("file", "", "Path to a compiled .crb bytecode file")
		trace       = flag.Bool("trace", false, "Log every dispatched instruction to stderr")
		list        = flag.Bool("list", false, "Disassemble the program and exit")
		interactive = flag.Bool("i", false, "Interactive step-debugger TUI")
	)
	flag.Parse()

	if *file == "" && flag.NArg() > 0 {
		*file = flag.Arg(0)
	}
	if *file == "" {
		fmt.Fprintln(os.Stderr, "Usage: clearvm [-trace] <file.crb>")
		fmt.Fprintln(os.Stderr, "       clearvm -list <file.crb>")
		fmt.Fprintln(os.Stderr, "       clearvm -i <file.crb>  (interactive mode)")
		os.Exit(1)
	}

	if *trace {
		cfg := zap.NewDevelopmentConfig()
		cfg.DisableStacktrace = true
		logger, err := cfg.Build()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		vm.SetLogger(logger)
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(*file); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*file, *list); err != nil {
		os.Exit(1)
	}
}

func run(file string, listOnly bool) error {
	blob, err := os.ReadFile(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}

	if listOnly {
		for _, line := range bytecode.DumpConstants(blob) {
			fmt.Println(line)
		}
		listing, ok := bytecode.Disassemble(blob)
		for _, in := range listing {
			fmt.Println(in)
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "Error: instruction stream is malformed")
			return fmt.Errorf("malformed instruction stream")
		}
		return nil
	}

	m := vm.New()
	defer m.Close()

	// Execute writes its own diagnostic to stderr on failure.
	return m.Execute(blob)
}
