package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"runtime"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/timpalpant/cfrstore"
)

// benchParams configure a synthetic training workload.
type benchParams struct {
	Workers     int
	Ops         int
	Keys        uint64
	Actions     int
	ZipfS       float64
	Seed        int64
	MetricsAddr string
}

var (
	bench = benchParams{
		Workers: runtime.GOMAXPROCS(0),
		Ops:     100000,
		Keys:    1 << 16,
		Actions: 3,
		ZipfS:   1.1,
		Seed:    1,
	}

	capacity int
	shards   int
	lockFree bool

	benchCmd = &cobra.Command{
		Use:   "bench",
		Short: "Run synthetic regret updates against a tiered store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := loadParams()
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("capacity") {
				params.Capacity = capacity
			}
			if flags.Changed("shards") {
				params.Shards = shards
			}
			if flags.Changed("lock_free") {
				params.LockFree = lockFree
			}

			return runBench(cmd.Context(), cmd.OutOrStdout(), params, bench)
		},
	}
)

func init() {
	flags := benchCmd.Flags()
	flags.IntVar(&bench.Workers, "workers", bench.Workers, "Number of concurrent workers")
	flags.IntVar(&bench.Ops, "ops", bench.Ops, "Updates per worker")
	flags.Uint64Var(&bench.Keys, "keys", bench.Keys, "Number of distinct keys")
	flags.IntVar(&bench.Actions, "actions", bench.Actions, "Actions per node")
	flags.Float64Var(&bench.ZipfS, "zipf_s", bench.ZipfS, "Zipf skew of key accesses (> 1)")
	flags.Int64Var(&bench.Seed, "seed", bench.Seed, "Random seed")
	flags.StringVar(&bench.MetricsAddr, "metrics_addr", "", "Serve Prometheus metrics on this address while running")
	flags.IntVar(&capacity, "capacity", 0, "Hot tier capacity (overrides --config)")
	flags.IntVar(&shards, "shards", 0, "Hot tier shards (overrides --config)")
	flags.BoolVar(&lockFree, "lock_free", false, "Use lock-free recency lists (overrides --config)")

	rootCmd.AddCommand(benchCmd)
}

func runBench(ctx context.Context, w io.Writer, params cfrstore.Params, bp benchParams) error {
	if err := bp.validate(); err != nil {
		return err
	}

	store, err := cfrstore.Open(params)
	if err != nil {
		return err
	}
	defer store.Close()

	if bp.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(cfrstore.NewCollector(store, "cfr"))
		srv := &http.Server{
			Addr:    bp.MetricsAddr,
			Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		}

		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				glog.Errorf("Metrics server failed: %v", err)
			}
		}()
		defer srv.Close()
		glog.Infof("Serving metrics on %s/metrics", bp.MetricsAddr)
	}

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < bp.Workers; i++ {
		rng := rand.New(rand.NewSource(bp.Seed + int64(i)))
		g.Go(func() error {
			return benchWorker(ctx, store, rng, bp)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	elapsed := time.Since(start)
	if err := store.Flush(); err != nil {
		return err
	}

	nOps := bp.Workers * bp.Ops
	s := store.Stats()
	fmt.Fprintf(w, "ops: %d in %v (%.0f ops/s)\n", nOps, elapsed, float64(nOps)/elapsed.Seconds())
	fmt.Fprintf(w, "hit rate: %.4f\n", store.HitRate())
	fmt.Fprintf(w, "hits: %d\nmisses: %d\nevictions: %d\npromotions: %d\n",
		s.Hits, s.Misses, s.Evictions, s.Promotions)
	fmt.Fprintf(w, "write-backs: %d\nwrite-back errors: %d\ncorrupt: %d\nhot entries: %d\n",
		s.WriteBacks, s.WriteBackErrors, s.CorruptRecords, s.HotEntries)
	return nil
}

func (bp benchParams) validate() error {
	switch {
	case bp.Workers < 1:
		return errors.Errorf("workers must be positive, got %d", bp.Workers)
	case bp.Keys < 1:
		return errors.New("keys must be positive")
	case bp.Actions < 1 || bp.Actions > cfrstore.MaxActions:
		return errors.Errorf("actions must be in [1, %d], got %d", cfrstore.MaxActions, bp.Actions)
	case bp.ZipfS <= 1:
		return errors.Errorf("zipf_s must be greater than 1, got %v", bp.ZipfS)
	}

	return nil
}

// benchWorker performs bp.Ops read-modify-write updates on Zipf-distributed keys.
func benchWorker(ctx context.Context, store cfrstore.Store, rng *rand.Rand, bp benchParams) error {
	zipf := rand.NewZipf(rng, bp.ZipfS, 1, bp.Keys-1)
	regrets := make([]float32, bp.Actions)
	for i := 0; i < bp.Ops; i++ {
		if i%1024 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}

		key := fmt.Sprintf("node/%d", zipf.Uint64())
		rec, ok, err := store.Get(key)
		if err != nil {
			return err
		}

		if ok && rec.NumActions() == bp.Actions {
			rec = rec.Clone()
		} else {
			rec = cfrstore.NewNodeRecord(bp.Actions)
		}

		for j := range regrets {
			regrets[j] = rng.Float32()*2 - 1
		}

		rec.AddRegret(regrets)
		rec.AddStrategyWeight(1)
		rec.UpdateStrategy()
		if err := store.Put(key, rec); err != nil {
			return err
		}
	}

	return nil
}
