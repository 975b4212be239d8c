package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/davecgh/go-spew/spew"

	"msxbasrom/pkg/asm"
	"msxbasrom/pkg/basic"
	"msxbasrom/pkg/compiler"
	"msxbasrom/pkg/kernelsim"
	"msxbasrom/pkg/rom"
	"msxbasrom/pkg/symfile"
	"msxbasrom/pkg/target"
	"msxbasrom/pkg/utils"
)

const runLimit = 50_000_000

func main() {
	inPath := flag.String("in", "", "input BASIC source file path")
	outPath := flag.String("out", "", "output ROM file path (default: input with .rom extension)")
	mega := flag.Bool("mega", false, "segment the program into MegaROM banks")
	optimize := flag.Bool("O", false, "enable peephole optimization (ignored with -mega)")
	symFormat := flag.String("sym", "none", "symbol file format: none, plain or noice")
	symPath := flag.String("symfile", "", "symbol file path (default: output with .sym extension)")
	kernelPath := flag.String("kernel", "", "kernel image placed in the reserved banks")
	listPath := flag.String("list", "", "write a disassembly listing to this path")
	dump := flag.Bool("dump", false, "dump the compile result")
	verbose := flag.Bool("v", false, "print one line per compile phase")
	runProgram := flag.Bool("run", false, "run the compiled ROM on the simulated kernel")
	flag.Parse()

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "nothing to do: provide -in to compile (use cmd/console to run an existing ROM)")
		flag.Usage()
		os.Exit(2)
	}

	format, err := symfile.ParseFormat(*symFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg := target.Default()

	fullPath, _, err := utils.GetPathInfo(*inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad input path %q: %v\n", *inPath, err)
		os.Exit(2)
	}
	source, err := os.ReadFile(fullPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read input file %q: %v\n", *inPath, err)
		os.Exit(1)
	}

	prog, err := basic.ParseSource(string(source))
	if err != nil {
		fmt.Fprintln(os.Stderr, "parse error:", err)
		os.Exit(1)
	}
	if *verbose {
		fmt.Fprintf(os.Stderr, "parsed %d lines\n", len(prog.Lines))
	}

	res, err := compiler.Compile(prog, compiler.Options{Banked: *mega, Optimize: *optimize, Config: cfg})
	if err != nil {
		fmt.Fprintf(os.Stderr, "compilation failed: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		fmt.Fprintf(os.Stderr, "code %d bytes in %d ranges, %d fixups, %d rewrites\n", len(res.Code), len(res.Ranges), len(res.Fixups), res.Rewrites)
		fmt.Fprintf(os.Stderr, "%d banks, RAM footprint %d bytes\n", res.BankCount, res.RAMFootprint)
	}
	if *dump {
		spew.Config.DisableMethods = true
		spew.Config.MaxDepth = 3
		spew.Fdump(os.Stdout, res.Ranges, res.Locations, res.Layout)
	}

	var kernel []byte
	if *kernelPath != "" {
		if kernel, err = os.ReadFile(*kernelPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to read kernel %q: %v\n", *kernelPath, err)
			os.Exit(1)
		}
	}

	output := *outPath
	if output == "" {
		output = utils.SwapExt(*inPath, ".rom")
	}
	n, err := rom.WriteFile(output, cfg.Mapper, kernel, res.Banks)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to write ROM file %q: %v\n", output, err)
		os.Exit(1)
	}
	fmt.Printf("compiled %d banks (%d bytes) -> %s\n", res.BankCount, n, output)

	if format != symfile.None {
		path := *symPath
		if path == "" {
			path = utils.SwapExt(output, ".sym")
		}
		if err := writeSymbols(path, format, res); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write symbol file %q: %v\n", path, err)
			os.Exit(1)
		}
	}

	if *listPath != "" {
		if err := writeListing(*listPath, cfg, res); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write listing %q: %v\n", *listPath, err)
			os.Exit(1)
		}
	}

	if *runProgram {
		if err := runBanks(cfg, res.Banks); err != nil {
			fmt.Fprintf(os.Stderr, "run failed for %q: %v\n", output, err)
			os.Exit(1)
		}
	}
}

func writeSymbols(path string, format symfile.Format, res *compiler.Result) error {
	var entries []symfile.Entry
	for _, loc := range res.Locations {
		if loc.Debug {
			entries = append(entries, symfile.Entry{Name: loc.Name, Bank: loc.Bank, Address: loc.Address})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := symfile.Write(f, format, entries); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeListing(path string, cfg target.Config, res *compiler.Result) error {
	blocks := asm.Blocks(res, cfg.Mapper)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := asm.WriteListing(f, blocks, asm.Names(blocks)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func runBanks(cfg target.Config, banks [][]byte) error {
	m, err := kernelsim.New(cfg, banks)
	if err != nil {
		return err
	}
	runErr := m.Run(runLimit)
	fmt.Print(m.Output())
	if runErr != nil {
		return runErr
	}
	fmt.Printf("run complete: %d steps, %d bank switches, PC=0x%04X bank %d\n", m.CPU.Steps, m.Switches, m.CPU.PC, m.Window())
	return nil
}
