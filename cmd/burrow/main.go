package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cuemby/burrow/pkg/burrow"
	"github.com/cuemby/burrow/pkg/codec"
	"github.com/cuemby/burrow/pkg/jsonimport"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/query"
	"github.com/cuemby/burrow/pkg/schema"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "burrow",
	Short: "Burrow - an embeddable transactional document database engine",
	Long: `Burrow stores typed, indexed objects in a single substrate file per
instance. This CLI opens one instance at a time and runs a single
administrative operation against it: bulk JSON import, ad-hoc queries,
collection sizing, and manual compaction.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("burrow version %s\ncommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("dir", "./burrow-data", "Instance directory")
	rootCmd.PersistentFlags().String("name", "default", "Instance name")
	rootCmd.PersistentFlags().Int32("instance-id", 1, "Instance id")
	rootCmd.PersistentFlags().String("schema", "", "Path to a schema manifest YAML file (required)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.MarkPersistentFlagRequired("schema")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(compactCmd)
	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

// openFromFlags opens the instance named by the root command's persistent
// flags, loading its schema manifest from --schema.
func openFromFlags(cmd *cobra.Command, compact *burrow.CompactCondition) (*burrow.Instance, error) {
	dir, _ := cmd.Flags().GetString("dir")
	name, _ := cmd.Flags().GetString("name")
	id, _ := cmd.Flags().GetInt32("instance-id")
	schemaPath, _ := cmd.Flags().GetString("schema")

	sc, err := schema.LoadYAMLFile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	inst, err := burrow.OpenInstance(id, name, dir, sc, 0, compact)
	if err != nil {
		return nil, fmt.Errorf("open instance: %w", err)
	}
	return inst, nil
}

var importCmd = &cobra.Command{
	Use:   "import COLLECTION",
	Short: "Bulk-load a JSON array of objects into a collection",
	Long: `Reads a top-level JSON array from --file (or stdin when omitted) and
inserts every element into COLLECTION, resolving each element's fields
against the collection's property names. The whole import runs inside
one write transaction: a malformed element aborts everything inserted
so far.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		collName := args[0]
		filePath, _ := cmd.Flags().GetString("file")

		// batchID gives this run's log lines a shared correlation field,
		// the same uuid-per-operation pattern used to stamp created
		// resources elsewhere; here it names the batch, not a stored object.
		batchID := uuid.New().String()
		logger := log.WithComponent("import").With().Str("batch_id", batchID).Logger()

		inst, err := openFromFlags(cmd, nil)
		if err != nil {
			return err
		}
		defer inst.Close(false)

		coll, ok := inst.Collection(collName)
		if !ok {
			return fmt.Errorf("no such collection %q", collName)
		}

		var r = os.Stdin
		if filePath != "" {
			f, err := os.Open(filePath)
			if err != nil {
				return fmt.Errorf("open %s: %w", filePath, err)
			}
			defer f.Close()
			r = f
		}

		txn, err := inst.Begin(true)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		logger.Info().Str("collection", collName).Msg("import started")
		n, err := jsonimport.Import(txn, coll, r)
		if err != nil {
			txn.Abort()
			logger.Error().Err(err).Msg("import aborted")
			return fmt.Errorf("import: %w", err)
		}
		if err := txn.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}

		logger.Info().Int("count", n).Msg("import committed")
		fmt.Printf("imported %d object(s) into %q (batch %s)\n", n, collName, batchID)
		return nil
	},
}

func init() {
	importCmd.Flags().String("file", "", "Path to a JSON array file (defaults to stdin)")
}

var queryCmd = &cobra.Command{
	Use:   "query COLLECTION",
	Short: "Run an ad-hoc equality query against a collection",
	Long: `Matches objects whose named properties equal the given string values
(every --eq is ANDed together), printing one line per matched object.
Numeric and boolean properties are compared after parsing the string
the same way the property's kind requires.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		collName := args[0]
		eqFlags, _ := cmd.Flags().GetStringSlice("eq")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		inst, err := openFromFlags(cmd, nil)
		if err != nil {
			return err
		}
		defer inst.Close(false)

		coll, ok := inst.Collection(collName)
		if !ok {
			return fmt.Errorf("no such collection %q", collName)
		}

		var nodes []*query.FilterNode
		for _, eq := range eqFlags {
			name, raw, ok := strings.Cut(eq, "=")
			if !ok {
				return fmt.Errorf("--eq must be name=value, got %q", eq)
			}
			p, ok := coll.Schema().Property(name)
			if !ok {
				return fmt.Errorf("collection %q has no property %q", collName, name)
			}
			v, err := parseScalar(*p, raw)
			if err != nil {
				return err
			}
			nodes = append(nodes, query.Equal(p.Index, v))
		}

		b := coll.Builder()
		if len(nodes) == 1 {
			b.Filter(nodes[0])
		} else if len(nodes) > 1 {
			b.Filter(query.And(nodes...))
		}
		b.Offset(offset)
		if limit > 0 {
			b.Limit(limit)
		}
		q, err := b.Build()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}

		txn, err := inst.Begin(false)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer txn.Abort()

		cur, err := coll.Cursor(txn, q)
		if err != nil {
			return fmt.Errorf("run query: %w", err)
		}

		n := 0
		for {
			row, ok := cur.Next()
			if !ok {
				break
			}
			fmt.Println(formatRow(row.ID, row.Reader, coll.Schema()))
			n++
		}
		fmt.Printf("%d object(s) matched\n", n)
		return nil
	},
}

func init() {
	queryCmd.Flags().StringSlice("eq", nil, "property=value equality filter, repeatable")
	queryCmd.Flags().Int("limit", 0, "Maximum rows to print (0 means unbounded)")
	queryCmd.Flags().Int("offset", 0, "Rows to skip before printing")
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print per-collection object counts and on-disk sizes",
	RunE: func(cmd *cobra.Command, args []string) error {
		inst, err := openFromFlags(cmd, nil)
		if err != nil {
			return err
		}
		defer inst.Close(false)

		txn, err := inst.Begin(false)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer txn.Abort()

		fmt.Printf("%-24s %10s %14s\n", "COLLECTION", "COUNT", "SIZE (bytes)")
		for _, name := range inst.Collections() {
			coll, _ := inst.Collection(name)
			count, err := coll.Count(txn)
			if err != nil {
				return fmt.Errorf("count %s: %w", name, err)
			}
			size, err := coll.GetSize(txn, true)
			if err != nil {
				return fmt.Errorf("size %s: %w", name, err)
			}
			fmt.Printf("%-24s %10d %14d\n", name, count, size)
		}
		return nil
	},
}

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Force-compact the instance's substrate file",
	Long: `Reopens the instance with a compact predicate that always triggers
when the substrate file is non-empty, hot-copying it into a fresh file
and swapping it into place. Unlike the automatic predicate open_instance
evaluates, this command ignores file size and freelist thresholds.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		inst, err := openFromFlags(cmd, &burrow.CompactCondition{})
		if err != nil {
			return err
		}
		defer inst.Close(false)
		fmt.Println("compaction complete")
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Open the instance and expose Prometheus metrics and health endpoints",
	Long: `Opens the instance like any other subcommand, but instead of running a
single operation keeps it open and serves /metrics, /health, /ready, and
/live over HTTP until interrupted. Registers "substrate" (the instance
opened without error) and "instance" (ready to take transactions) as the
components GetReadiness requires.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		metrics.SetVersion(Version)

		inst, err := openFromFlags(cmd, nil)
		if err != nil {
			metrics.RegisterComponent("substrate", false, err.Error())
			return err
		}
		defer inst.Close(false)

		metrics.RegisterComponent("substrate", true, "open")
		metrics.RegisterComponent("instance", true, "ready")
		metrics.SetCriticalComponents("substrate", "instance")

		http.Handle("/metrics", metrics.Handler())
		http.Handle("/health", metrics.HealthHandler())
		http.Handle("/ready", metrics.ReadyHandler())
		http.Handle("/live", metrics.LivenessHandler())

		logger := log.WithComponent("serve")
		logger.Info().Str("addr", addr).Msg("health and metrics endpoints listening")
		fmt.Printf("metrics endpoint: http://%s/metrics\n", addr)
		fmt.Printf("health endpoints: http://%s/health, http://%s/ready, http://%s/live\n", addr, addr, addr)

		return http.ListenAndServe(addr, nil)
	},
}

func init() {
	serveCmd.Flags().String("addr", "127.0.0.1:9090", "Address to serve metrics and health endpoints on")
}

// parseScalar converts a CLI string argument into the codec.Value a
// property's kind requires.
func parseScalar(p schema.Property, raw string) (codec.Value, error) {
	switch p.Kind {
	case schema.KindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return codec.Value{}, fmt.Errorf("property %q: %w", p.Name, err)
		}
		return codec.BoolValue(b), nil
	case schema.KindByte:
		n, err := strconv.ParseUint(raw, 10, 8)
		if err != nil {
			return codec.Value{}, fmt.Errorf("property %q: %w", p.Name, err)
		}
		return codec.ByteValue(byte(n)), nil
	case schema.KindInt32:
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return codec.Value{}, fmt.Errorf("property %q: %w", p.Name, err)
		}
		return codec.Int32Value(int32(n)), nil
	case schema.KindInt64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return codec.Value{}, fmt.Errorf("property %q: %w", p.Name, err)
		}
		return codec.Int64Value(n), nil
	case schema.KindFloat32:
		n, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return codec.Value{}, fmt.Errorf("property %q: %w", p.Name, err)
		}
		return codec.Float32Value(float32(n)), nil
	case schema.KindFloat64:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return codec.Value{}, fmt.Errorf("property %q: %w", p.Name, err)
		}
		return codec.Float64Value(n), nil
	case schema.KindString:
		return codec.StringValue(raw), nil
	default:
		return codec.Value{}, fmt.Errorf("property %q: kind %s cannot be used in an equality filter", p.Name, p.Kind)
	}
}

// formatRow renders one matched object's scalar properties as a single
// line; list and object properties print only as a placeholder, since
// this is a diagnostic tool, not a data viewer.
func formatRow(id int64, r *codec.Reader, coll *schema.Collection) string {
	var b strings.Builder
	fmt.Fprintf(&b, "id=%d", id)
	for _, p := range coll.Properties {
		b.WriteByte(' ')
		b.WriteString(p.Name)
		b.WriteByte('=')
		switch p.Kind {
		case schema.KindBool:
			v, ok := r.GetBool(p.Index)
			writeScalar(&b, ok, v)
		case schema.KindByte:
			v, ok := r.GetByte(p.Index)
			writeScalar(&b, ok, v)
		case schema.KindInt32:
			v, ok := r.GetInt32(p.Index)
			writeScalar(&b, ok, v)
		case schema.KindInt64:
			v, ok := r.GetInt64(p.Index)
			writeScalar(&b, ok, v)
		case schema.KindFloat32:
			v, ok := r.GetFloat32(p.Index)
			writeScalar(&b, ok, v)
		case schema.KindFloat64:
			v, ok := r.GetFloat64(p.Index)
			writeScalar(&b, ok, v)
		case schema.KindString:
			v, ok := r.GetString(p.Index)
			writeScalar(&b, ok, v)
		default:
			b.WriteString("<unprintable>")
		}
	}
	return b.String()
}

func writeScalar(b *strings.Builder, ok bool, v any) {
	if !ok {
		b.WriteString("null")
		return
	}
	fmt.Fprintf(b, "%v", v)
}
