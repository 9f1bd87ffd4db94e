package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ironsheep/muret2yolo/internal/config"
	"github.com/ironsheep/muret2yolo/internal/errs"
	"github.com/ironsheep/muret2yolo/internal/imaging"
	"github.com/ironsheep/muret2yolo/internal/logging"
	"github.com/ironsheep/muret2yolo/internal/muret"
	"github.com/ironsheep/muret2yolo/internal/partition"
	"github.com/ironsheep/muret2yolo/internal/server"
	"github.com/ironsheep/muret2yolo/internal/yolo"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const usage = `muret2yolo - convert MuRET training packages into YOLO datasets

Usage: muret2yolo <command> [options]

Commands:
  transcode   Write a YOLO dataset from a package
  inspect     Summarize a package
  fetch       Download every image of a package into the cache
  preview     Draw the labels of one dataset sample into a PNG file
  serve       Run the MCP server on stdin/stdout
  version     Print version information
  help        Print this help message

Run 'muret2yolo <command> -h' for the options of a command.

Environment variables:
  MURET2YOLO_LOG_LEVEL=debug    Enable debug logging
`

func main() {
	// Logs go to stderr; stdout carries reports and the MCP protocol.
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}

// run executes one command and returns the process exit code: 0 on success,
// 2 for usage and configuration errors, 1 for anything else.
func run(ctx context.Context, args []string, stdout io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	if logging.DebugEnabled() {
		log.Printf("muret2yolo %s (built %s, commit %s)", Version, BuildTime, GitCommit)
	}

	var err error
	switch cmd, rest := args[0], args[1:]; cmd {
	case "transcode":
		err = transcode(ctx, rest, stdout)
	case "inspect":
		err = inspect(ctx, rest, stdout)
	case "fetch":
		err = fetch(ctx, rest, stdout)
	case "preview":
		err = preview(rest, stdout)
	case "serve":
		server.Version = Version
		err = server.New().Run(ctx)
	case "--version", "-v", "version":
		fmt.Fprintf(stdout, "muret2yolo %s\n", Version)
		fmt.Fprintf(stdout, "  Build time: %s\n", BuildTime)
		fmt.Fprintf(stdout, "  Git commit: %s\n", GitCommit)
	case "--help", "-h", "help":
		fmt.Fprint(stdout, usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errs.IsInput(err):
		log.Printf("Error: %v", err)
		return 2
	default:
		log.Printf("Error: %v", err)
		return 1
	}
}

// runFlags parses the shared run flags of a command.
func runFlags(name string, args []string, required ...string) (*config.Run, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	flags := config.NewFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, errs.Configf("%v", err)
	}
	if fs.NArg() > 0 {
		return nil, errs.Configf("unexpected arguments %v", fs.Args())
	}
	cfg, err := flags.Run()
	if err != nil {
		return nil, err
	}
	if err := cfg.Require(required...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func transcode(ctx context.Context, args []string, stdout io.Writer) error {
	cfg, err := runFlags("transcode", args, "input", "output")
	if err != nil {
		return err
	}
	pkg, err := muret.Load(ctx, cfg.Input, cfg.LoadOptions())
	if err != nil {
		return err
	}
	tr, err := yolo.New(pkg, cfg.TranscoderOptions(cfg.Acquirer()))
	if err != nil {
		return err
	}
	report, err := tr.Run(ctx, cfg.Output)
	if err != nil {
		return err
	}
	fmt.Fprint(stdout, report.String())
	return nil
}

func inspect(ctx context.Context, args []string, stdout io.Writer) error {
	cfg, err := runFlags("inspect", args, "input")
	if err != nil {
		return err
	}
	pkg, err := muret.Load(ctx, cfg.Input, cfg.LoadOptions())
	if err != nil {
		return err
	}
	return writeJSON(stdout, pkg.Summary())
}

func fetch(ctx context.Context, args []string, stdout io.Writer) error {
	cfg, err := runFlags("fetch", args, "input", "cache")
	if err != nil {
		return err
	}
	pkg, err := muret.Load(ctx, cfg.Input, cfg.LoadOptions())
	if err != nil {
		return err
	}
	report, err := yolo.Fetch(ctx, pkg, cfg.Acquirer(), cfg.ImagesRoot)
	if err != nil {
		return err
	}
	return writeJSON(stdout, report)
}

func preview(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("preview", flag.ContinueOnError)
	dataset := fs.String("dataset", "", "dataset folder")
	split := fs.String("split", partition.Train, "dataset split")
	sample := fs.String("sample", "", "sample name (lists the split when empty)")
	out := fs.String("out", "", "PNG file to write (default <sample>.png)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return errs.Configf("%v", err)
	}
	if *dataset == "" {
		return errs.Configf("dataset is required")
	}

	if *sample == "" {
		names, err := yolo.ListSamples(*dataset, *split)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(stdout, name)
		}
		return nil
	}

	img, objects, err := yolo.Preview(*dataset, *split, *sample, nil)
	if err != nil {
		return err
	}
	path := *out
	if path == "" {
		path = *sample + ".png"
	}
	if err := imaging.SavePNG(path, img); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s: %d objects\n", path, len(objects))
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
