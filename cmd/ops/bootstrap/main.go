// Package main implements the bootstrap CLI tool for the TripWise platform.
//
// This tool prepares a fresh deployment: it initializes the flat-file data
// root, generates the internal secrets the API needs, and can export a .env
// file so a local server starts without hand-assembling configuration.
//
// Usage:
//
//	go run ./cmd/ops/bootstrap init --data-root=./data
//	go run ./cmd/ops/bootstrap validate --data-root=./data
//	go run ./cmd/ops/bootstrap export-env --data-root=./data --out=.env
//
// Subcommands:
//
//	init        Create the data root layout (countries/, users.json,
//	            pending_signups.json). Refuses to overwrite existing
//	            catalog files unless --force is given.
//	validate    Check an existing data root for structural problems:
//	            missing files, unparseable JSON, city records without
//	            names.
//	export-env  Write a .env file with a freshly generated JWT signing
//	            key and development defaults for every required setting.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

// run dispatches the subcommand and returns the process exit code.
func run(args []string, stderr *os.File) int {
	if len(args) < 1 {
		usage(stderr)
		return 1
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	sub := args[0]
	fs := flag.NewFlagSet(sub, flag.ContinueOnError)
	fs.SetOutput(stderr)
	dataRoot := fs.String("data-root", "./data", "Directory holding the flat-file catalog")

	switch sub {
	case "init":
		force := fs.Bool("force", false, "Overwrite existing catalog files")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		if err := initDataRoot(*dataRoot, *force, logger); err != nil {
			logger.Error("init failed", "error", err)
			return 1
		}
		logger.Info("data root initialized", "path", *dataRoot)
		return 0

	case "validate":
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		problems, err := validateDataRoot(*dataRoot)
		if err != nil {
			logger.Error("validate failed", "error", err)
			return 1
		}
		if len(problems) > 0 {
			for _, p := range problems {
				fmt.Fprintf(stderr, "problem: %s\n", p)
			}
			logger.Error("data root has problems", "count", len(problems))
			return 1
		}
		logger.Info("data root is valid", "path", *dataRoot)
		return 0

	case "export-env":
		out := fs.String("out", ".env", "Path for the exported .env file")
		force := fs.Bool("force", false, "Overwrite an existing .env file")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		if err := exportEnvFile(*out, *dataRoot, *force); err != nil {
			logger.Error("export-env failed", "error", err)
			return 1
		}
		logger.Info("environment file written", "path", *out)
		return 0

	default:
		fmt.Fprintf(stderr, "error: unknown subcommand %q\n\n", sub)
		usage(stderr)
		return 1
	}
}

func usage(w *os.File) {
	fmt.Fprintf(w, "TripWise Bootstrap Tool\n\n")
	fmt.Fprintf(w, "Prepares a deployment: data root layout, internal secrets,\n")
	fmt.Fprintf(w, "and local development configuration.\n\n")
	fmt.Fprintf(w, "Usage:\n")
	fmt.Fprintf(w, "  bootstrap init       --data-root=DIR [--force]\n")
	fmt.Fprintf(w, "  bootstrap validate   --data-root=DIR\n")
	fmt.Fprintf(w, "  bootstrap export-env --data-root=DIR [--out=PATH] [--force]\n")
}
