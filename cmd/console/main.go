package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"msxbasrom/pkg/kernelsim"
	"msxbasrom/pkg/rom"
	"msxbasrom/pkg/target"
	"msxbasrom/pkg/utils"
)

func main() {
	limit := flag.Int("limit", 50_000_000, "instruction limit")
	quiet := flag.Bool("q", false, "print only the program output")
	interactive := flag.Bool("i", false, "enter and run BASIC lines interactively")
	flag.Parse()
	if *interactive {
		os.Exit(repl(*limit))
	}
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: console [-limit n] [-q] program.rom | console -i")
		os.Exit(2)
	}

	fullPath, _, err := utils.GetPathInfo(flag.Arg(0))
	if err != nil {
		log.Fatalf("Bad path: %v", err)
	}
	img, err := os.ReadFile(fullPath)
	if err != nil {
		log.Fatalf("Failed to read ROM file: %v", err)
	}

	cfg := target.Default()
	banks, err := rom.Split(cfg.Mapper, img)
	if err != nil {
		log.Fatalf("Bad ROM image: %v", err)
	}
	vm, err := kernelsim.New(cfg, banks)
	if err != nil {
		log.Fatalf("Cannot start: %v", err)
	}
	if !*quiet {
		fmt.Printf("Running %s: %d banks\n", fullPath, len(banks))
	}

	runErr := vm.Run(*limit)
	fmt.Print(vm.Output())
	if runErr != nil {
		log.Fatalf("Run failed: %v", runErr)
	}
	if !*quiet {
		fmt.Printf("Done: %d steps, %d bank switches, PC=0x%04X bank %d\n", vm.CPU.Steps, vm.Switches, vm.CPU.PC, vm.Window())
	}
}
