package main

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gitlab.com/tinyland/lab/toolbench/pkg/collector"
	"gitlab.com/tinyland/lab/toolbench/pkg/report"
	"gitlab.com/tinyland/lab/toolbench/pkg/runstate"
	"gitlab.com/tinyland/lab/toolbench/pkg/toolchain"
)

func runStatus(args []string, stdout, stderr io.Writer) error {
	var (
		flags      = newFlagSet("status", stderr)
		configPath = flags.String("config", "", "Path to configuration file")
		dataDir    = flags.String("data-dir", "", "Directory holding the result store")
		tcName     = flags.String("toolchain", "", "Show the records of one toolchain")
	)
	if err := parseFlags(flags, args); err != nil {
		return err
	}
	if *dataDir == "" {
		cfg, err := loadConfig(*configPath)
		if err != nil {
			return err
		}
		*dataDir = cfg.General.DataDir
	}
	if *dataDir == "" {
		return configError("--data-dir is required")
	}

	store, err := collector.Rehydrate(*dataDir, collector.Options{ReadOnly: true})
	if err != nil {
		return err
	}
	defer store.Close()

	report.SetupColor(os.Stdout)
	width := 0
	if report.IsTerminal(os.Stdout) {
		width = report.Width(os.Stdout)
	}

	if *tcName != "" {
		name := toolchain.Named(*tcName).String()
		var records []collector.Record
		for _, r := range store.Records() {
			if r.Toolchain.String() == name {
				records = append(records, r)
			}
		}
		return report.WriteRecords(stdout, width, records)
	}

	runs, err := runstate.ListRuns(*dataDir)
	if err != nil {
		return err
	}
	live, err := runstate.ReadStatus(filepath.Join(*dataDir, statusFile))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		live = nil
	}
	return report.WriteStatus(stdout, width, store.Records(), runs, live)
}
