package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"strings"

	"github.com/OxenFxc/luaaivmp/backend"
	"github.com/OxenFxc/luaaivmp/emitter"
	"github.com/OxenFxc/luaaivmp/feedback"
	"github.com/OxenFxc/luaaivmp/source"
	"github.com/OxenFxc/luaaivmp/vmp"
	"github.com/fatih/color"
	"github.com/urfave/cli"
)

var (
	flagVMP     bool
	flagPack    bool
	flagEncrypt bool
	flagDump    bool
	flagNoColor bool
)

// readSourceFile loads a file from disk into the source.File shape
// the frontend/backend packages expect, splitting out the per-line
// cache feedback's diagnostics render against.
func readSourceFile(path string) (*source.File, error) {
	buf, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	contents := string(buf)
	return &source.File{
		Filename: path,
		Contents: contents,
		Lines:    strings.SplitAfter(contents, "\n"),
	}, nil
}

// compileFile runs the full pipeline — lex, compile, optionally
// disassemble, select an OpCodeStrategy, and emit — for one input
// file. Returns the emitted program text.
func compileFile(inputPath string) (string, error) {
	file, err := readSourceFile(inputPath)
	if err != nil {
		return "", err
	}

	proto, err := backend.Compile(file)
	if err != nil {
		if fe, ok := err.(*feedback.Error); ok {
			return "", fmt.Errorf("%s", fe.Make(!flagNoColor))
		}
		return "", err
	}

	if flagDump {
		fmt.Println(proto.Dump())
	}

	var strategy vmp.OpCodeStrategy = vmp.Identity{}
	if flagVMP {
		strategy = vmp.NewRandomized()
	}

	return emitter.Emit(proto, emitter.Options{
		Strategy: strategy,
		Encrypt:  flagEncrypt,
		Pack:     flagPack,
	}), nil
}

func main() {
	color.NoColor = false

	app := cli.NewApp()
	app.Name = "slc"
	app.Usage = "compile SL source into a self-contained SL program with an embedded bytecode VM"
	app.ArgsUsage = "<input-file> <output-file>"

	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:        "vmp",
			Usage:       "renumber opcodes through a randomized permutation",
			Destination: &flagVMP,
		},
		cli.BoolFlag{
			Name:        "pack",
			Usage:       "minify the emitted program's whitespace and comments",
			Destination: &flagPack,
		},
		cli.BoolFlag{
			Name:        "encrypt",
			Usage:       "XOR-encrypt emitted string constants and instructions",
			Destination: &flagEncrypt,
		},
		cli.BoolFlag{
			Name:        "dump",
			Usage:       "print a disassembly of the compiled bytecode to stdout",
			Destination: &flagDump,
		},
		cli.BoolFlag{
			Name:        "no-color",
			Usage:       "hide colors in error messages",
			Destination: &flagNoColor,
		},
	}

	app.Action = func(c *cli.Context) error {
		if c.NArg() != 2 {
			cli.ShowAppHelp(c)
			return cli.NewExitError("expected exactly two arguments: an input file and an output file", 1)
		}

		color.NoColor = flagNoColor

		input := c.Args().Get(0)
		output := c.Args().Get(1)

		out, err := compileFile(input)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			return cli.NewExitError("", 1)
		}

		if err := ioutil.WriteFile(output, []byte(out), 0644); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			return cli.NewExitError("", 1)
		}

		return nil
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
