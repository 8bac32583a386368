// Command rowbridge is a small operational CLI over the row access layer.
//
// It opens one database (embedded SQLite file, desktop Access file, or a
// SQL Server instance — detected from the location string) and runs one
// subcommand against it:
//
//	rowbridge -db ./data.db tables
//	rowbridge -db ./data.db columns -table people
//	rowbridge -db ./data.db pull -table people -limit 10
//	rowbridge -db ./data.db append -table people -file rows.json
//	rowbridge -db ./data.db collapse -table people -by name
//	rowbridge -db ./data.db drop -table people
//	rowbridge -db ./data.db vacuum
//
// The -config flag points at a YAML file holding defaults (location, log
// level, chunking, metrics); explicit flags win over the file. Pull and
// append results are printed as JSON on stdout so the command composes
// with jq and friends.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"rowbridge/internal/backend"
	_ "rowbridge/internal/backend/access"
	_ "rowbridge/internal/backend/sqlite"
	_ "rowbridge/internal/backend/sqlserver"
	"rowbridge/internal/config"
	"rowbridge/internal/logger"
	"rowbridge/internal/metrics"
	ddmetrics "rowbridge/internal/metrics/datadog"
	"rowbridge/internal/rowstore"
)

func main() {
	var (
		flagDB     = flag.String("db", "", "Database location: file path, server string, or env var name")
		flagConfig = flag.String("config", "", "Optional YAML config file")
		flagCreate = flag.Bool("create", false, "Create a new embedded database if the location does not exist")
	)
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}
	cmd := flag.Arg(0)
	args := flag.Args()[1:]

	cfg := config.Default()
	if *flagConfig != "" {
		var err error
		cfg, err = config.Load(*flagConfig)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	if *flagDB != "" {
		cfg.Location = *flagDB
	}
	if *flagCreate {
		cfg.CreateIfMissing = true
	}
	if cfg.Location == "" {
		fmt.Fprintln(os.Stderr, "no database location: pass -db or set location in the config file")
		os.Exit(2)
	}

	log := logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stderr})

	ctx := context.Background()

	var met metrics.Backend = metrics.Nop{}
	if cfg.Metrics.Enabled {
		flushEvery, _ := time.ParseDuration(cfg.Metrics.FlushEvery)
		dd, err := ddmetrics.NewBackend(ctx, ddmetrics.Options{
			JobName:    cfg.Metrics.JobName,
			Tags:       ddmetrics.ParseTagsCSV(cfg.Metrics.Tags),
			FlushEvery: flushEvery,
		})
		if err != nil {
			log.Errorf("metrics disabled: %v", err)
		} else {
			defer func() { _ = dd.Close() }()
			met = dd
		}
	}

	db, err := rowstore.Open(ctx, cfg.Location, rowstore.Options{
		Backend:         backend.Kind(cfg.Backend),
		CreateIfMissing: cfg.CreateIfMissing,
		ChunkSize:       cfg.ChunkSize,
		RetryAttempts:   cfg.RetryAttempts,
		Logger:          log,
		Metrics:         met,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer db.Close()

	if err := run(ctx, db, cmd, args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, db *rowstore.DB, cmd string, args []string) error {
	switch cmd {
	case "tables":
		names, err := db.Tables(ctx)
		if err != nil {
			return err
		}
		return printJSON(names)

	case "views":
		names, err := db.Views(ctx)
		if err != nil {
			return err
		}
		return printJSON(names)

	case "columns":
		fs := flag.NewFlagSet("columns", flag.ExitOnError)
		table := fs.String("table", "", "Table name")
		_ = fs.Parse(args)
		if *table == "" {
			return fmt.Errorf("columns: -table is required")
		}
		sch, err := db.Columns(ctx, *table)
		if err != nil {
			return err
		}
		out := make(map[string]string, sch.Len())
		for _, c := range sch.Columns() {
			out[c] = string(sch.TypeOf(c))
		}
		return printJSON(out)

	case "pull":
		fs := flag.NewFlagSet("pull", flag.ExitOnError)
		table := fs.String("table", "", "Table name")
		cols := fs.String("columns", "", "Comma-separated column projection")
		where := fs.String("where", "", "Raw SQL condition (trusted; passed through verbatim)")
		limit := fs.Int("limit", 0, "Print at most this many rows (0 = all)")
		_ = fs.Parse(args)
		if *table == "" {
			return fmt.Errorf("pull: -table is required")
		}

		var rows []map[string]any
		var err error
		if *where != "" {
			rows, err = db.PullWhere(ctx, *table, *where, splitCSV(*cols)...)
		} else {
			rows, err = db.Pull(ctx, *table, rowstore.PullOptions{Columns: splitCSV(*cols), Fresh: true})
		}
		if err != nil {
			return err
		}
		if *limit > 0 && len(rows) > *limit {
			rows = rows[:*limit]
		}
		return printJSON(rows)

	case "append":
		fs := flag.NewFlagSet("append", flag.ExitOnError)
		table := fs.String("table", "", "Table name")
		file := fs.String("file", "-", "JSON file holding an array of row objects (- = stdin)")
		create := fs.Bool("create-table", false, "Create the table from the first row if missing")
		safe := fs.Bool("safe", false, "Render values as SQL literals instead of bound parameters")
		dedupe := fs.Bool("dedupe", false, "Skip rows whose key columns already exist")
		_ = fs.Parse(args)
		if *table == "" {
			return fmt.Errorf("append: -table is required")
		}

		rows, err := readRows(*file)
		if err != nil {
			return err
		}
		res, err := db.Append(ctx, *table, rows, rowstore.AppendOptions{
			CreateIfMissing: *create,
			Safe:            *safe,
			DedupeGuard:     *dedupe,
		})
		if err != nil {
			return err
		}
		return printJSON(res)

	case "collapse":
		fs := flag.NewFlagSet("collapse", flag.ExitOnError)
		table := fs.String("table", "", "Table name")
		by := fs.String("by", "", "Comma-separated group columns (empty = whole row)")
		_ = fs.Parse(args)
		if *table == "" {
			return fmt.Errorf("collapse: -table is required")
		}
		removed, err := db.Collapse(ctx, *table, splitCSV(*by)...)
		if err != nil {
			return err
		}
		return printJSON(map[string]int{"removed": removed})

	case "drop":
		fs := flag.NewFlagSet("drop", flag.ExitOnError)
		table := fs.String("table", "", "Table name")
		_ = fs.Parse(args)
		if *table == "" {
			return fmt.Errorf("drop: -table is required")
		}
		return db.DropTable(ctx, *table)

	case "vacuum":
		return db.Vacuum(ctx)

	case "size":
		gb, err := db.Size()
		if err != nil {
			return err
		}
		return printJSON(map[string]float64{"gigabytes": gb})

	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func readRows(file string) ([]map[string]any, error) {
	var data []byte
	var err error
	if file == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse rows: %w (expected a JSON array of objects)", err)
	}
	return rows, nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: rowbridge -db <location> [-config file.yaml] [-create] <command> [flags]

Commands:
  tables               List base tables
  views                List views
  columns  -table T    Show column names and semantic types
  pull     -table T    Read rows as JSON [-columns a,b] [-where cond] [-limit n]
  append   -table T    Insert rows from a JSON array [-file f] [-create-table] [-safe] [-dedupe]
  collapse -table T    Remove duplicate rows [-by a,b]
  drop     -table T    Drop a table
  vacuum               Compact an embedded database file
  size                 Report the database file size
`)
}
