package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/chronofile/tsdb/pkg/tsdb"
)

func compactCmd() *cli.Command {
	return &cli.Command{
		Name:      "compact",
		Usage:     "Re-encode a day file choosing the narrowest format per series",
		ArgsUsage: "<input.tsdb> <output.tsdb>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 2 {
				return fmt.Errorf("compact: need input and output paths")
			}
			inPath, outPath := cmd.Args().Get(0), cmd.Args().Get(1)
			if _, err := os.Stat(outPath); err == nil {
				return fmt.Errorf("compact: %s already exists", outPath)
			}
			return compactFile(ctx, os.Stdout, inPath, outPath)
		},
	}
}

type compactEvent struct {
	tsMs   int64
	series string
	value  tsdb.Value
}

// compactFile rewrites the input's event stream with per-series formats
// picked from the observed values. The output keeps event order, allocates
// channel ids by first appearance, and is finalized.
func compactFile(ctx context.Context, out io.Writer, inPath, outPath string) error {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return err
	}
	dec, err := tsdb.NewFileDecoder(inPath, data, nil)
	if err != nil {
		return err
	}

	var events []compactEvent
	perSeries := make(map[string][]tsdb.Value)
	for {
		rec, err := dec.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if rec.Kind != tsdb.RecordValue {
			continue
		}
		events = append(events, compactEvent{rec.TimestampMs, rec.Channel.Name, rec.Value})
		perSeries[rec.Channel.Name] = append(perSeries[rec.Channel.Name], rec.Value)
	}
	if len(events) == 0 {
		return fmt.Errorf("compact: %s contains no values", inPath)
	}

	formats := make(map[string]byte, len(perSeries))
	for name, values := range perSeries {
		formatID, err := tsdb.BestFormat(values)
		if err != nil {
			return fmt.Errorf("compact: series %q: %w", name, err)
		}
		formats[name] = formatID
	}

	w, err := tsdb.OpenWriter(outPath)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()
	for _, ev := range events {
		if err := w.Append(ev.series, formats[ev.series], ev.tsMs, ev.value); err != nil {
			return fmt.Errorf("compact: series %q: %w", ev.series, err)
		}
	}
	if err := w.Finalize(); err != nil {
		return err
	}

	st, err := os.Stat(outPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "compacted %s: %d -> %d bytes\n", inPath, len(data), st.Size())
	for name, formatID := range formats {
		fmt.Fprintf(out, "  %s: 0x%02x (%s)\n", name, formatID, formatDescription(formatID))
	}
	return nil
}
