/*
@Author: Lzww
@LastEditTime: 2025-10-18 15:01:48
@Description: simulate command, runs devices concurrently against one kernel
@Language: Go 1.23.4
*/

package commands

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	wavelimiter "wave-limiter"
	"wave-limiter/internal/logging"
	"wave-limiter/internal/simdev"
)

type simulateOptions struct {
	kernel     string
	hint       uint
	devices    int
	executions int
	optimal    []uint
	base       time.Duration
	step       time.Duration
	noise      float64
	scale      float64
	simdPerSH  uint
	ciPlus     bool
	seed       int64
	timeout    time.Duration
	dump       bool
	dumpDir    string
	showStats  bool
}

func newSimulateCommand(root *rootOptions) *cobra.Command {
	opts := &simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run wave limiters against simulated devices",
		Long: `Run one kernel on several simulated devices concurrently.

Every device has a bowl shaped execution time profile: fastest at its optimal
waves per SIMD and slower by --step per wave of distance. Optimal values are
assigned to devices round robin from --optimal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("dump") {
				cfg.Dump = opts.dump
			}
			if cmd.Flags().Changed("dump-dir") {
				cfg.DumpDir = opts.dumpDir
			}
			return runSimulate(cmd.Context(), cmd.OutOrStdout(), cfg, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.kernel, "kernel", "sim_kernel", "kernel name, used for trace files")
	f.UintVar(&opts.hint, "hint", 0, "waves per SIMD requested by the kernel metadata")
	f.IntVarP(&opts.devices, "devices", "d", 4, "number of simulated devices")
	f.IntVarP(&opts.executions, "executions", "n", 1000, "executions per device")
	f.UintSliceVar(&opts.optimal, "optimal", []uint{2, 4, 6, 8}, "optimal waves per SIMD of the devices")
	f.DurationVar(&opts.base, "base", time.Millisecond, "execution time at the optimum")
	f.DurationVar(&opts.step, "step", 100*time.Microsecond, "added execution time per wave of distance")
	f.Float64Var(&opts.noise, "noise", 0, "relative execution time noise, 0.1 is ±10%")
	f.Float64Var(&opts.scale, "scale", 0, "wall clock time per simulated time, 0 runs as fast as possible")
	f.UintVar(&opts.simdPerSH, "simd-per-sh", 4, "SIMDs per shader array")
	f.BoolVar(&opts.ciPlus, "ci-plus", true, "hardware generation supports wave limiting")
	f.Int64Var(&opts.seed, "seed", 1, "noise seed, device i uses seed+i")
	f.DurationVar(&opts.timeout, "timeout", 0, "stop the simulation after this long")
	f.BoolVar(&opts.dump, "dump", false, "write trace files")
	f.StringVar(&opts.dumpDir, "dump-dir", "", "trace file directory")
	f.BoolVar(&opts.showStats, "stats", true, "print limiter statistics")

	return cmd
}

func runSimulate(ctx context.Context, out io.Writer, cfg *wavelimiter.Config, opts *simulateOptions) error {
	if opts.devices < 1 {
		return errors.Errorf("at least one device is required, got %d", opts.devices)
	}
	if len(opts.optimal) == 0 {
		return errors.New("--optimal needs at least one value")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	kernel := &simdev.Kernel{KernelName: opts.kernel, Hint: opts.hint}
	mgr, err := wavelimiter.NewManager(kernel, opts.simdPerSH, cfg)
	if err != nil {
		return err
	}
	mgr.Enable(opts.ciPlus)

	timer := simdev.NewTimer(runtime.NumCPU())
	defer timer.Close()

	log := logging.WithField("kernel", opts.kernel)
	log.Infof("simulating %d devices, %d executions each", opts.devices, opts.executions)

	start := time.Now()
	results := make([]simdev.Result, opts.devices)
	errs := make([]error, opts.devices)
	var wg sync.WaitGroup
	for i := 0; i < opts.devices; i++ {
		optimal := opts.optimal[i%len(opts.optimal)]
		q := &simdev.Queue{
			Device: simdev.NewDevice(uint64(i), "sim", opts.simdPerSH, opts.ciPlus),
			Timer:  timer,
			Noise:  opts.noise,
			Scale:  opts.scale,
			Seed:   opts.seed + int64(i),
		}
		profile := simdev.BowlProfile(optimal, opts.base, opts.step)

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = q.Run(ctx, mgr, profile, opts.executions)
		}(i)
	}
	wg.Wait()

	// Close writes the trace files, the stats include them
	mgr.Close()
	log.Infof("simulation finished in %v", time.Since(start))

	printResults(out, cfg, results, opts)
	if opts.showStats {
		printStats(out, cfg.Stats)
	}

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func printResults(out io.Writer, cfg *wavelimiter.Config, results []simdev.Result, opts *simulateOptions) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DEVICE\tOPTIMAL\tBEST\tMOST USED\tSTATE\tEXECUTIONS\tBUSY")
	fmt.Fprintln(w, "------\t-------\t----\t---------\t-----\t----------\t----")

	for i, res := range results {
		optimal := simdev.Optimal(simdev.BowlProfile(opts.optimal[i%len(opts.optimal)], opts.base, opts.step), cfg.MaxWave)
		best, state := "-", "-"
		if res.Limited && res.Snapshot.Enabled {
			best = fmt.Sprint(res.Snapshot.BestWaves)
			state = res.Snapshot.State.String()
		}
		fmt.Fprintf(w, "%v\t%d\t%s\t%d\t%s\t%d\t%v\n",
			res.Device, optimal, best, res.MostUsed(), state, res.Executions, res.Busy)
	}
	w.Flush()
}

func printStats(out io.Writer, stats *wavelimiter.Stats) {
	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	values := stats.ToSlice()
	for i, name := range stats.Header() {
		fmt.Fprintf(w, "%s\t%s\n", name, values[i])
	}
	w.Flush()
}
