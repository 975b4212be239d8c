package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/davecgh/go-spew/spew"

	"msxbasrom/pkg/asm"
	"msxbasrom/pkg/basic"
	"msxbasrom/pkg/compiler"
	"msxbasrom/pkg/target"
)

const testSource = `10 FOR I=1 TO 3
20 PRINT "HELLO";I
30 NEXT I
40 END
`

func main() {
	mega := flag.Bool("mega", false, "segment into MegaROM banks")
	optimize := flag.Bool("O", false, "enable peephole optimization")
	deep := flag.Bool("spew", false, "dump the full compile result")
	flag.Parse()

	src := testSource
	if flag.NArg() > 0 {
		data, err := os.ReadFile(flag.Arg(0))
		if err != nil {
			fmt.Fprintln(os.Stderr, "read error:", err)
			os.Exit(1)
		}
		src = string(data)
	}

	fmt.Printf("Source:\n%s\n", src)

	tokens, err := basic.Lex(src)
	if err != nil {
		fmt.Fprintln(os.Stderr, "lex error:", err)
		os.Exit(1)
	}

	fmt.Printf("Tokens (%d)\n", len(tokens))
	for _, tok := range tokens {
		fmt.Println(" ", tok)
	}
	fmt.Println()

	prog, err := basic.Parse(tokens, src)
	if err != nil {
		fmt.Fprintln(os.Stderr, "parse error:", err)
		os.Exit(1)
	}

	fmt.Println("Trees")
	for _, ln := range prog.Lines {
		for _, s := range ln.Statements {
			fmt.Printf("  %-6s %s\n", ln.Label, s)
		}
	}
	fmt.Println()

	res, err := compiler.Compile(prog, compiler.Options{Banked: *mega, Optimize: *optimize})
	if err != nil {
		fmt.Fprintln(os.Stderr, "compile error:", err)
		os.Exit(1)
	}

	fmt.Println("Ranges")
	for _, loc := range res.Locations {
		fmt.Printf("  %-20s bank %3d  0x%04X  %5d bytes\n", loc.Name, loc.Bank, loc.Address, loc.Length)
	}
	fmt.Println()
	fmt.Printf("Code: %d bytes, %d fixups, %d rewrites, %d banks\n", len(res.Code), len(res.Fixups), res.Rewrites, res.BankCount)
	fmt.Printf("RAM: 0x%04X..0x%04X (%d bytes)\n\n", res.Layout.VarStart, res.Layout.End, res.RAMFootprint)
	fmt.Print(res.Symbols)
	fmt.Println()

	fmt.Println("Listing")
	blocks := asm.Blocks(res, target.Default().Mapper)
	if err := asm.WriteListing(os.Stdout, blocks, asm.Names(blocks)); err != nil {
		fmt.Fprintln(os.Stderr, "listing error:", err)
		os.Exit(1)
	}

	if *deep {
		cfg := spew.ConfigState{Indent: "  ", DisableMethods: true, MaxDepth: 4}
		cfg.Dump(res.Layout, res.Fixups)
	}
}
