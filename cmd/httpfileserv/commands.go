package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/marmos91/httpfileserv/pkg/config"
	"github.com/marmos91/httpfileserv/pkg/journal"
	"github.com/marmos91/httpfileserv/pkg/listing"
)

// runInit implements the init subcommand.
//
// It writes a commented sample configuration to the default location
// (see config.GetDefaultConfigPath). With -template it also writes the
// built-in listing template to the given path, as a starting point for
// listing.template_path. Existing files are only replaced with -force.
//
// Returns the process exit code.
func runInit(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("init", flag.ContinueOnError)
	flags.SetOutput(stderr)
	force := flags.Bool("force", false, "Overwrite existing files")
	templatePath := flags.String("template", "", "Also write the built-in listing template to this path")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	errColor := color.New(color.FgRed)
	okColor := color.New(color.FgGreen)

	path, err := config.InitConfig(*force)
	if err != nil {
		_, _ = errColor.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	_, _ = okColor.Fprintf(stdout, "Configuration written to %s\n", path)

	if *templatePath != "" {
		if err := writeTemplate(*templatePath, *force); err != nil {
			_, _ = errColor.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		_, _ = okColor.Fprintf(stdout, "Listing template written to %s\n", *templatePath)
	}
	return 0
}

// writeTemplate copies the built-in listing template to path.
func writeTemplate(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("template already exists at %s (use -force to overwrite)", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to check template path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create template directory: %w", err)
	}
	if err := os.WriteFile(path, listing.DefaultTemplate(), 0644); err != nil {
		return fmt.Errorf("failed to write template: %w", err)
	}
	return nil
}

// runJournal implements the journal subcommand: it prints the most recent
// request records, newest first.
//
// The journal is opened with the same settings the server uses, so the
// server must not be running against the same badger directory (badger
// holds an exclusive lock on it). The memory journal lives only inside a
// running server and is refused.
//
// Returns the process exit code.
func runJournal(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("journal", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", "", "Path to config file")
	n := flags.Int("n", 20, "Number of records to print (0 = all)")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	if cfg.Journal.Type == "memory" {
		fmt.Fprintln(stderr, "The memory journal does not outlive the server; nothing to show")
		return 1
	}

	ctx := context.Background()
	j, err := config.CreateJournal(ctx, &cfg.Journal)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to open journal: %v\n", err)
		return 1
	}
	defer j.Close()

	records, err := j.Recent(ctx, *n)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to read journal: %v\n", err)
		return 1
	}

	printRecords(stdout, records, time.Now())
	return 0
}

// printRecords writes one line per record: relative time, peer, method,
// status (colored by class), size, duration and path. now anchors the
// relative times.
func printRecords(w io.Writer, records []journal.Record, now time.Time) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No requests recorded")
		return
	}
	for _, rec := range records {
		status := color.New(color.FgGreen)
		switch {
		case rec.Status >= 500:
			status = color.New(color.FgRed)
		case rec.Status >= 400:
			status = color.New(color.FgYellow)
		}
		fmt.Fprintf(w, "%-16s %-21s %-4s %s %9s %8s %s\n",
			humanize.RelTime(rec.Time, now, "ago", "from now"),
			rec.Remote,
			rec.Method,
			status.Sprint(rec.Status),
			humanize.IBytes(uint64(rec.Bytes)),
			rec.Duration.Round(time.Microsecond),
			rec.Path,
		)
	}
}
