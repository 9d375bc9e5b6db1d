// Command vecdb is a CLI adapter over pkg/vecdb (SPEC_FULL.md §4.6), not
// part of the core's correctness obligation — grounded on the teacher's
// cmd/sqvect/main.go cobra command tree.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/liliang-cn/vecdb/pkg/distance"
	"github.com/liliang-cn/vecdb/pkg/payload"
	"github.com/liliang-cn/vecdb/pkg/vecdb"
)

var (
	collectionDir string
	dimension     int
	metricFlag    string
	indexKindFlag string
	jsonOutput    bool
)

var rootCmd = &cobra.Command{
	Use:   "vecdb",
	Short: "CLI for an embedded HNSW vector collection",
	Long:  "A command-line interface for creating, populating, and querying a vecdb collection directory.",
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create (or open) a collection directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildConfig()
		if err != nil {
			return err
		}
		db, err := vecdb.Open(collectionDir, cfg)
		if err != nil {
			return fmt.Errorf("open collection: %w", err)
		}
		defer db.Close()
		fmt.Printf("collection ready at %s (dimension=%d metric=%s)\n", collectionDir, dimension, metricFlag)
		return nil
	},
}

var insertCmd = &cobra.Command{
	Use:   "insert <id> <v1,v2,...>",
	Short: "Insert a vector, optionally with a JSON payload",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id: %w", err)
		}
		vec, err := parseVector(args[1])
		if err != nil {
			return err
		}
		payloadJSON, _ := cmd.Flags().GetString("payload")
		p, err := parsePayload(payloadJSON)
		if err != nil {
			return err
		}

		db, err := openExisting()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Insert(id, vec, p); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		fmt.Printf("inserted id %d\n", id)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Tombstone a vector by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id: %w", err)
		}
		db, err := openExisting()
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Delete(id); err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		fmt.Printf("deleted id %d\n", id)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <v1,v2,...>",
	Short: "Run a k-NN search, optionally filtered",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vec, err := parseVector(args[0])
		if err != nil {
			return err
		}
		k, _ := cmd.Flags().GetInt("k")
		filterField, _ := cmd.Flags().GetString("filter-field")
		filterValue, _ := cmd.Flags().GetString("filter-eq")

		db, err := openExisting()
		if err != nil {
			return err
		}
		defer db.Close()

		var filter payload.Filter
		if filterField != "" {
			cond, err := vecdb.NewCondition(filterField, vecdb.OpEq, vecdb.String(filterValue))
			if err != nil {
				return fmt.Errorf("build filter: %w", err)
			}
			filter = cond
		}

		journal, jerr := openQueryJournal()
		start := time.Now()
		results, err := db.Search(vec, k, filter)
		latency := time.Since(start)
		if jerr == nil {
			_ = journal.record(collectionDir, len(vec), k, filter != nil, len(results), latency)
			_ = journal.close()
		}
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}

		if jsonOutput {
			enc, err := json.MarshalIndent(results, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(enc))
			return nil
		}
		for _, r := range results {
			fmt.Printf("%d\t%.6f\n", r.ID, r.Distance)
		}
		return nil
	},
}

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "fsync the write-ahead log",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openExisting()
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Flush(); err != nil {
			return fmt.Errorf("flush: %w", err)
		}
		fmt.Println("flushed")
		return nil
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Write a fresh data.bin snapshot and truncate the WAL",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openExisting()
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Snapshot(); err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		fmt.Println("snapshot written")
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show basic collection statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openExisting()
		if err != nil {
			return err
		}
		defer db.Close()
		fmt.Printf("live vectors: %d\n", db.Len())
		return nil
	},
}

func buildConfig() (vecdb.Config, error) {
	metric, ok := distance.ParseMetric(metricFlag)
	if !ok {
		return vecdb.Config{}, fmt.Errorf("unknown metric %q", metricFlag)
	}
	kind := vecdb.IndexKind(indexKindFlag)
	if kind == "" {
		kind = vecdb.IndexHNSW
	}
	return vecdb.Config{Dimension: dimension, Metric: metric, IndexKind: kind}, nil
}

func openExisting() (*vecdb.DB, error) {
	return vecdb.Open(collectionDir, vecdb.Config{})
}

func parseVector(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	v := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", p, err)
		}
		v[i] = float32(f)
	}
	return v, nil
}

func parsePayload(raw string) (payload.Payload, error) {
	if raw == "" {
		return nil, nil
	}
	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("invalid payload JSON: %w", err)
	}
	return payload.New(fields), nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&collectionDir, "dir", "d", "vecdb-data", "collection directory")
	rootCmd.PersistentFlags().IntVarP(&dimension, "dimension", "n", 0, "vector dimension (create only)")
	rootCmd.PersistentFlags().StringVar(&metricFlag, "metric", "euclidean", "distance metric (create only)")
	rootCmd.PersistentFlags().StringVar(&indexKindFlag, "index", "Hnsw", "index kind: Hnsw or BruteForce (create only)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit JSON output where applicable")

	insertCmd.Flags().String("payload", "", "payload as a JSON object")
	searchCmd.Flags().Int("k", 10, "number of results")
	searchCmd.Flags().String("filter-field", "", "payload field for an eq filter")
	searchCmd.Flags().String("filter-eq", "", "value to match filter-field against")

	rootCmd.AddCommand(createCmd, insertCmd, deleteCmd, searchCmd, flushCmd, snapshotCmd, statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
