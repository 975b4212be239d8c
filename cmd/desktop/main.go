package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"golang.org/x/image/font/basicfont"

	"msxbasrom/pkg/basic"
	"msxbasrom/pkg/compiler"
	"msxbasrom/pkg/grid"
	"msxbasrom/pkg/kernelsim"
	"msxbasrom/pkg/rom"
	"msxbasrom/pkg/target"
	"msxbasrom/pkg/utils"
)

const (
	charWidth  = 7
	charHeight = 13
	border     = 16
)

var (
	// SCREEN 0 colours: white text on dark blue.
	background = color.RGBA{0x54, 0x55, 0xED, 0xFF}
	foreground = color.RGBA{0xFF, 0xFF, 0xFF, 0xFF}
)

type Game struct {
	vm     *kernelsim.Machine
	screen *grid.Screen
	face   text.Face

	stepsPerFrame int
	shown         int // bytes of output already on screen
	stopped       bool
}

func newGame(vm *kernelsim.Machine, stepsPerFrame int) *Game {
	return &Game{
		vm:            vm,
		screen:        grid.New(grid.Cols, grid.Rows),
		face:          text.NewGoXFace(basicfont.Face7x13),
		stepsPerFrame: stepsPerFrame,
	}
}

// advance runs one frame's worth of instructions and copies new output to
// the screen. A finished or failed program stays on screen.
func (g *Game) advance() {
	if g.stopped {
		return
	}
	err := g.vm.RunFor(g.stepsPerFrame)
	out := g.vm.Output()
	g.screen.WriteString(out[g.shown:])
	g.shown = len(out)
	switch {
	case err != nil:
		g.screen.WriteString("\n" + err.Error() + "\n")
		g.stopped = true
	case g.vm.Done():
		g.screen.WriteString("\nOk\n")
		g.stopped = true
	}
}

func (g *Game) Update() error {
	if ebiten.IsKeyPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	g.advance()
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(background)
	for y, line := range g.screen.Lines() {
		if line == "" {
			continue
		}
		op := &text.DrawOptions{}
		op.GeoM.Translate(border, float64(border+y*charHeight))
		op.ColorScale.ScaleWithColor(foreground)
		text.Draw(screen, line, g.face, op)
	}
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	cols, rows := g.screen.Size()
	return cols*charWidth + 2*border, rows*charHeight + 2*border
}

// loadBanks reads a cartridge image, or compiles a .bas source file.
func loadBanks(path string, cfg target.Config, banked bool) ([][]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(filepath.Ext(path), ".bas") {
		return rom.Split(cfg.Mapper, data)
	}
	prog, err := basic.ParseSource(string(data))
	if err != nil {
		return nil, err
	}
	res, err := compiler.Compile(prog, compiler.Options{Banked: banked, Optimize: !banked, Config: cfg})
	if err != nil {
		return nil, err
	}
	return res.Banks, nil
}

func main() {
	speed := flag.Int("speed", 20_000, "instructions per frame")
	mega := flag.Bool("mega", false, "compile .bas input into MegaROM banks")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: desktop [-speed n] [-mega] program.rom|program.bas")
		os.Exit(2)
	}

	fullPath, _, err := utils.GetPathInfo(flag.Arg(0))
	if err != nil {
		log.Fatalf("Bad path: %v", err)
	}
	cfg := target.Default()
	banks, err := loadBanks(fullPath, cfg, *mega)
	if err != nil {
		log.Fatalf("Failed to load %s: %v", fullPath, err)
	}
	vm, err := kernelsim.New(cfg, banks)
	if err != nil {
		log.Fatalf("Cannot start: %v", err)
	}

	game := newGame(vm, *speed)
	w, h := game.Layout(0, 0)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSize(2*w, 2*h)
	ebiten.SetWindowTitle("msxbasrom - " + filepath.Base(fullPath))
	if err := ebiten.RunGame(game); err != nil {
		log.Fatal(err)
	}
}
