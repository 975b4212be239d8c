package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/peterh/liner"

	"msxbasrom/pkg/session"
	"msxbasrom/pkg/target"
)

const historyFile = ".msxbasrom_history"

// repl reads numbered lines and commands until BYE or end of input.
func repl(limit int) int {
	fmt.Println("MSX BASIC cartridge console. RUN, LIST, NEW, MEGA, SAVE, LOAD, BYE.")

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigc)
	go func() {
		<-sigc
		ln.Close()
		os.Exit(130)
	}()

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	s := session.New(target.Default())
	s.Limit = limit
	for {
		line, err := ln.Prompt("Ok ")
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			fmt.Println()
			return 0
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		ln.AppendHistory(line)

		quit, err := s.Exec(os.Stdout, line)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		if quit {
			return 0
		}
	}
}
