package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/chronofile/tsdb/pkg/tsdb"
)

func dumpCmd() *cli.Command {
	var (
		verbose  bool
		asJSON   bool
		filePath string
	)

	return &cli.Command{
		Name:      "dump",
		Usage:     "Decode a day file and print its channels and events",
		ArgsUsage: "<file.tsdb>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "path to the day file",
				Destination: &filePath,
			},
			&cli.BoolFlag{
				Name:        "verbose",
				Aliases:     []string{"v"},
				Usage:       "annotate each event with its file offset",
				Destination: &verbose,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "machine-readable output",
				Destination: &asJSON,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := filePath
			if path == "" {
				path = cmd.Args().First()
			}
			if path == "" {
				return fmt.Errorf("dump: no input file")
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			dec, err := tsdb.NewFileDecoder(path, data, nil)
			if err != nil {
				return err
			}
			if asJSON {
				return dumpJSON(ctx, os.Stdout, dec)
			}
			return dumpText(ctx, os.Stdout, dec, verbose)
		},
	}
}

type dumpEvent struct {
	Timestamp int64      `json:"timestamp"`
	Series    string     `json:"series"`
	Value     tsdb.Value `json:"value"`
}

type dumpOutput struct {
	Series    map[string]string `json:"series"` // name -> format id, hex
	Events    []dumpEvent       `json:"events"`
	Finalized bool              `json:"finalized"`
}

func dumpJSON(ctx context.Context, w io.Writer, dec *tsdb.Decoder) error {
	out := dumpOutput{Series: make(map[string]string)}
	for {
		rec, err := dec.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		switch rec.Kind {
		case tsdb.RecordChannelDefined:
			out.Series[rec.Channel.Name] = fmt.Sprintf("0x%02x", rec.Channel.FormatID)
		case tsdb.RecordValue:
			out.Events = append(out.Events, dumpEvent{
				Timestamp: rec.TimestampMs,
				Series:    rec.Channel.Name,
				Value:     rec.Value,
			})
		}
	}
	out.Finalized = dec.Finalized()
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func dumpText(ctx context.Context, w io.Writer, dec *tsdb.Decoder, verbose bool) error {
	var (
		defs   []*tsdb.ChannelDef
		events int
		prevTS int64
		haveTS bool
	)
	for {
		offset := dec.Offset()
		rec, err := dec.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		switch rec.Kind {
		case tsdb.RecordChannelDefined:
			defs = append(defs, rec.Channel)
		case tsdb.RecordValue:
			rel := "ABS"
			if haveTS && rec.TimestampMs >= prevTS {
				rel = fmt.Sprintf("+%d", rec.TimestampMs-prevTS)
			}
			prevTS, haveTS = rec.TimestampMs, true
			ts := time.UnixMilli(rec.TimestampMs).UTC().Format("2006-01-02 15:04:05.000")
			if verbose {
				fmt.Fprintf(w, "  [%d] @%08x ts_abs=%d (%s) ts_rel=%s series=%s value=%s\n",
					events, offset, rec.TimestampMs, ts, rel, rec.Channel.Name, rec.Value)
			} else {
				fmt.Fprintf(w, "  [%d] ts_abs=%d (%s) ts_rel=%s series=%s value=%s\n",
					events, rec.TimestampMs, ts, rel, rec.Channel.Name, rec.Value)
			}
			events++
		}
	}

	fmt.Fprintf(w, "TimeSeriesDB dump: series=%d events=%d finalized=%v\n", len(defs), events, dec.Finalized())
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	fmt.Fprintln(w, "Series:")
	for _, def := range defs {
		fmt.Fprintf(w, "  - %s: id=%d format=0x%02x (%s)\n", def.Name, def.ID, def.FormatID, formatDescription(def.FormatID))
	}
	return nil
}

// formatDescription renders a format id the way a reader of the file spec
// would name it.
func formatDescription(formatID byte) string {
	switch formatID {
	case tsdb.FormatFloat:
		return "float"
	case tsdb.FormatDouble:
		return "double (display hint: 0 decimals)"
	case tsdb.FormatStringU8:
		return "UTF-8 string with uint8 length prefix"
	case tsdb.FormatStringU16:
		return "UTF-8 string with uint16 length prefix"
	case tsdb.FormatStringU32:
		return "UTF-8 string with uint32 length prefix"
	case tsdb.FormatStringU64:
		return "UTF-8 string with uint64 length prefix"
	}
	if formatID >= tsdb.FormatDoubleDec1 && formatID <= tsdb.FormatDoubleDec6Plus {
		d := int(formatID) - 1
		if formatID == tsdb.FormatDoubleDec6Plus {
			return "double (display hint: 6+ decimals)"
		}
		return fmt.Sprintf("double (display hint: %d decimals)", d)
	}

	var width int
	signed := true
	switch formatID >> 4 {
	case 0x1:
		width = 8
	case 0x2:
		width = 16
	case 0x3:
		width = 24
	case 0x4:
		width = 32
	case 0x5:
		width = 64
	case 0x9:
		width, signed = 8, false
	case 0xa:
		width, signed = 16, false
	case 0xb:
		width, signed = 24, false
	case 0xc:
		width, signed = 32, false
	case 0xd:
		width, signed = 64, false
	default:
		return "unknown"
	}
	if formatID&0x0f > 3 {
		return "unknown"
	}
	name := fmt.Sprintf("int%d_t", width)
	if !signed {
		name = "u" + name
	}
	if scale := formatID & 0x0f; scale > 0 {
		div := [4]int{1, 10, 100, 1000}[scale]
		return fmt.Sprintf("%s x; value = x / %d.0", name, div)
	}
	return name
}
