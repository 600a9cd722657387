package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/chanpool-io/chanpool/internal/affinity"
	"github.com/chanpool-io/chanpool/internal/config"
)

func runValidate(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(out)
	configPath := fs.String("config", "", "Path to configuration file")
	fs.Usage = func() {
		fmt.Fprintln(out, `Usage: chanpoolctl validate -config <file>

Load a pool configuration file, validate it (including compiling every
method's affinity key path), and print the resolved policy table.

Options:`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		fs.Usage()
		return errors.New("missing required -config flag")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "config OK: target=%s maxSize=%d methods=%d\n",
		cfg.Pool.Target, cfg.Pool.MaxSize, len(cfg.Affinity.Methods))

	if len(cfg.Affinity.Methods) == 0 {
		return nil
	}
	w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "METHOD\tCOMMAND\tKEY PATH")
	for _, m := range cfg.Affinity.Methods {
		cmd, err := affinity.ParseCommand(m.Command)
		if err != nil {
			return err
		}
		keyPath := m.KeyPath
		if cmd == affinity.CommandNone {
			keyPath = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", config.NormalizeMethod(m.Method), cmd, keyPath)
	}
	return w.Flush()
}
