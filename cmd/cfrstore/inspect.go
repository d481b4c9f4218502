package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/timpalpant/cfrstore"
)

var (
	dumpPrefix  string
	dumpLimit   int
	checkDelete bool
	statsScan   bool
)

var (
	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Print the number of records in the durable tier",
		Args:  cobra.NoArgs,
		RunE: withDurable(func(cmd *cobra.Command, db cfrstore.DurableStore, args []string) error {
			return runStats(cmd.OutOrStdout(), db, statsScan)
		}),
	}

	getCmd = &cobra.Command{
		Use:   "get <key>",
		Short: "Print the decoded record for a key",
		Args:  cobra.ExactArgs(1),
		RunE: withDurable(func(cmd *cobra.Command, db cfrstore.DurableStore, args []string) error {
			return runGet(cmd.OutOrStdout(), db, args[0])
		}),
	}

	dumpCmd = &cobra.Command{
		Use:   "dump",
		Short: "Print records in key order",
		Args:  cobra.NoArgs,
		RunE: withDurable(func(cmd *cobra.Command, db cfrstore.DurableStore, args []string) error {
			return runDump(cmd.OutOrStdout(), db, dumpPrefix, dumpLimit)
		}),
	}

	compactCmd = &cobra.Command{
		Use:   "compact",
		Short: "Compact the durable tier",
		Args:  cobra.NoArgs,
		RunE: withDurable(func(cmd *cobra.Command, db cfrstore.DurableStore, args []string) error {
			return db.Compact()
		}),
	}

	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Report records that fail to decode",
		Args:  cobra.NoArgs,
		RunE: withDurable(func(cmd *cobra.Command, db cfrstore.DurableStore, args []string) error {
			return runCheck(cmd.OutOrStdout(), db, checkDelete)
		}),
	}
)

func init() {
	statsCmd.Flags().BoolVar(&statsScan, "scan", false, "Scan all records for an exact count and action histogram")
	dumpCmd.Flags().StringVar(&dumpPrefix, "prefix", "", "Only dump keys with this prefix")
	dumpCmd.Flags().IntVar(&dumpLimit, "limit", 0, "Stop after this many records (0 for all)")
	checkCmd.Flags().BoolVar(&checkDelete, "delete", false, "Delete corrupt records")

	rootCmd.AddCommand(statsCmd, getCmd, dumpCmd, compactCmd, checkCmd)
}

type durableRunFunc func(cmd *cobra.Command, db cfrstore.DurableStore, args []string) error

// withDurable opens the durable tier for the duration of fn.
func withDurable(fn durableRunFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		db, err := openDurable()
		if err != nil {
			return err
		}

		err = fn(cmd, db, args)
		if closeErr := db.Close(); err == nil {
			err = closeErr
		}

		return err
	}
}

var errStopScan = errors.New("stop scan")

func runStats(w io.Writer, db cfrstore.DurableStore, scan bool) error {
	n, err := db.Size()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "keys (approx): %d\n", n)
	if !scan {
		return nil
	}

	var total, corrupt, bytes int64
	byActions := make(map[int]int64)
	err = db.Scan("", func(key string, value []byte) error {
		total++
		bytes += int64(len(key) + len(value))
		rec, err := cfrstore.DecodeRecord(value)
		if err != nil {
			corrupt++
			return nil
		}

		byActions[rec.NumActions()]++
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "keys: %d\ncorrupt: %d\nbytes: %d\n", total, corrupt, bytes)
	nActions := make([]int, 0, len(byActions))
	for k := range byActions {
		nActions = append(nActions, k)
	}

	sort.Ints(nActions)
	for _, k := range nActions {
		fmt.Fprintf(w, "actions=%d: %d\n", k, byActions[k])
	}

	return nil
}

// recordView is the printed form of a NodeRecord.
type recordView struct {
	Key             string    `yaml:"key"`
	RegretSum       []float32 `yaml:"regret_sum,flow"`
	CurrentStrategy []float32 `yaml:"current_strategy,flow"`
	StrategySum     []float32 `yaml:"strategy_sum,flow"`
	AverageStrategy []float32 `yaml:"average_strategy,flow"`
}

func newRecordView(key string, rec *cfrstore.NodeRecord) recordView {
	return recordView{
		Key:             key,
		RegretSum:       rec.RegretSum,
		CurrentStrategy: rec.CurrentStrategy,
		StrategySum:     rec.StrategySum,
		AverageStrategy: rec.AverageStrategy,
	}
}

func runGet(w io.Writer, db cfrstore.DurableStore, key string) error {
	buf, ok, err := db.Get(key)
	if err != nil {
		return err
	} else if !ok {
		return errors.Errorf("no record for key %q", key)
	}

	rec, err := cfrstore.DecodeRecord(buf)
	if err != nil {
		return errors.Wrapf(err, "key %q", key)
	}

	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(newRecordView(key, rec))
}

func runDump(w io.Writer, db cfrstore.DurableStore, prefix string, limit int) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()

	n := 0
	err := db.Scan(prefix, func(key string, value []byte) error {
		rec, err := cfrstore.DecodeRecord(value)
		if err != nil {
			glog.Warningf("Skipping %q: %v", key, err)
			return nil
		}

		if err := enc.Encode(newRecordView(key, rec)); err != nil {
			return err
		}

		n++
		if limit > 0 && n >= limit {
			return errStopScan
		}

		return nil
	})

	if errors.Is(err, errStopScan) {
		err = nil
	}

	return err
}

func runCheck(w io.Writer, db cfrstore.DurableStore, deleteCorrupt bool) error {
	var total int
	var corrupt []string
	err := db.Scan("", func(key string, value []byte) error {
		total++
		if _, err := cfrstore.DecodeRecord(value); err != nil {
			fmt.Fprintf(w, "corrupt: %q: %v\n", key, err)
			corrupt = append(corrupt, key)
		}

		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "checked %d records, %d corrupt\n", total, len(corrupt))
	if !deleteCorrupt {
		return nil
	}

	for _, key := range corrupt {
		if err := db.Delete(key); err != nil {
			return errors.Wrapf(err, "delete %q", key)
		}
	}

	fmt.Fprintf(w, "deleted %d corrupt records\n", len(corrupt))
	return nil
}
