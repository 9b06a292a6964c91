// Command cachesim replays a request trace against one or more cache
// policies and writes a dump file per run, mirroring the simulator's own
// batch-comparison CLI.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v4"
	"github.com/vbauerster/mpb/v4/decor"
	"golang.org/x/sync/errgroup"

	"github.com/cachesim/cachesim/internal/policycfg"
	"github.com/cachesim/cachesim/internal/trace"
	"github.com/cachesim/cachesim/internal/xlog"
	"github.com/cachesim/cachesim/policy"
)

func main() {
	app := cli.NewApp()
	app.Name = "cachesim"
	app.Usage = "replay a trace against one or more cache policies"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "trace", Usage: "path to the CSV trace file (optionally .gz/.zst/.lz4)"},
		cli.StringSliceFlag{Name: "policy", Usage: "policy name to run (repeatable)"},
		cli.StringFlag{Name: "config", Usage: "YAML or JSON tunables file (defaults to policycfg.Default())"},
		cli.StringFlag{Name: "outdir", Value: ".", Usage: "directory to write dump files into"},
		cli.Float64Flag{Name: "warmup-frac", Value: 0, Usage: "fraction of the trace (by record count) to treat as warmup"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		xlog.Fatalf("cachesim: %v", err)
	}
	xlog.Flush()
}

func loadConfig(path string) (policycfg.PolicyConfig, error) {
	if path == "" {
		return policycfg.Default(), nil
	}
	switch filepath.Ext(path) {
	case ".json":
		return policycfg.LoadJSON(path)
	default:
		return policycfg.LoadYAML(path)
	}
}

func run(c *cli.Context) error {
	tracePath := c.String("trace")
	if tracePath == "" {
		return cli.NewExitError("missing required -trace", 1)
	}
	names := c.StringSlice("policy")
	if len(names) == 0 {
		return cli.NewExitError("at least one -policy is required", 1)
	}

	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return err
	}

	runID := uuid.New().String()
	engines := make(map[string]policy.Policy, len(names))
	for _, n := range names {
		p, err := newPolicy(n, cfg)
		if err != nil {
			return err
		}
		engines[n] = p
	}

	warmupFrac := c.Float64("warmup-frac")
	total, err := countLines(tracePath)
	if err != nil {
		return err
	}
	warmupCount := int(float64(total) * warmupFrac)

	progress := mpb.New(mpb.WithWidth(64))
	bar := progress.AddBar(int64(total),
		mpb.PrependDecorators(decor.Name(filepath.Base(tracePath))),
		mpb.AppendDecorators(decor.Percentage()))

	r, err := trace.Open(tracePath)
	if err != nil {
		return err
	}
	defer r.Close()

	var n int
	for {
		req, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		warmup := n < warmupCount
		for _, p := range engines {
			p.Process(&req, warmup)
		}
		n++
		bar.Increment()
	}
	progress.Wait()

	if r.Skipped() > 0 {
		xlog.Warningf("%s: skipped %d malformed lines", tracePath, r.Skipped())
	}

	return dumpAll(c.String("outdir"), runID, engines)
}

// countLines pre-scans the trace once so the progress bar has a total;
// cheap relative to the per-record policy work it's measuring.
func countLines(path string) (int, error) {
	r, err := trace.Open(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	n := 0
	for {
		_, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

// dumpAll writes one dump file per policy concurrently; the errgroup waits
// for every write to finish and returns the first error any of them hit.
func dumpAll(outdir, runID string, engines map[string]policy.Policy) error {
	if err := os.MkdirAll(outdir, 0o755); err != nil {
		return err
	}
	var g errgroup.Group
	for name, p := range engines {
		name, p := name, p
		g.Go(func() error {
			path := filepath.Join(outdir, fmt.Sprintf("%s-%s.dump", name, runID))
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			defer f.Close()
			p.DumpStats(f)
			return nil
		})
	}
	return g.Wait()
}
