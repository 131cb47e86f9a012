package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/ingla/pram/config"
	"github.com/ingla/pram/findmax"
	"github.com/ingla/pram/ingestor"
	"github.com/ingla/pram/iputils"
	"github.com/ingla/pram/keyio"
	"github.com/ingla/pram/matmul"
	"github.com/ingla/pram/output"
	"github.com/ingla/pram/pools"
	"github.com/ingla/pram/radix"
	"github.com/ingla/pram/trace"
	"github.com/ingla/pram/tui"
)

// VerifyBound is the exclusive upper bound of the keys sorted by verify
const VerifyBound = 10000000

// MatMulTolerance is the largest element difference accepted between a
// parallel product and the sequential one
const MatMulTolerance = 1e-9

// OutputConfig holds output formatting configuration
type OutputConfig struct {
	Compact bool
	Plain   bool
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func resolveSeed(seed int64) int64 {
	if seed == 0 {
		return time.Now().UnixNano()
	}
	return seed
}

// generateKeys draws n IPv4 keys from cidr
func generateKeys(cidr string, n int, seed int64) ([]uint64, error) {
	addrs, err := iputils.RandomKeysFromRange(cidr, n, rand.New(rand.NewSource(resolveSeed(seed))))
	if err != nil {
		return nil, fmt.Errorf("generating keys from %s: %w", cidr, err)
	}
	keys := make([]uint64, len(addrs))
	for i, a := range addrs {
		keys[i] = uint64(a)
	}
	return keys, nil
}

// sortKeys runs the configured sort in place
func sortKeys(ctx context.Context, keys []uint64, sc *config.SortConfig, observer radix.Observer) error {
	if sc.Sequential {
		return radix.Sequential(keys, sc.NumDigits)
	}
	return radix.SortContext(ctx, keys, radix.Options{
		NumDigits: sc.NumDigits,
		TeamSize:  config.TeamSize(sc.TeamSize),
		Observer:  observer,
	})
}

// describeSorted fills in the key statistics of a sorted array
func describeSorted(r *output.SortResult, keys []uint64, numDigits int) {
	r.Keys = len(keys)
	r.Sorted = slices.IsSorted(keys)
	if len(keys) > 0 {
		r.MaxKey = keys[len(keys)-1]
	}
	r.BitWidth = radix.BitWidth(r.MaxKey)
	if plan, err := radix.PlanDigits(r.BitWidth, numDigits); err == nil {
		r.Chunks = output.Chunks(plan)
	}
}

// ============================================================================
// SORT
// ============================================================================

// RunSort sorts the keys described by cfg.Sort. If keys is nil they are read
// from cfg.Sort.Input. The sorted keys are written to cfg.Sort.Output if set.
// The returned document is non-nil whenever the sort was attempted.
func RunSort(ctx context.Context, cfg *config.Config, keys []uint64, observer radix.Observer) (*output.JSONOutput, error) {
	start := time.Now()
	sc := cfg.Sort

	format, err := keyio.ParseFormat(sc.Format)
	if err != nil {
		return nil, err
	}

	result := output.NewJSONOutput("sort", start)
	sortResult := &output.SortResult{
		Input:  sc.Input,
		Output: sc.Output,
		Parameters: output.SortParameters{
			NumDigits:  sc.NumDigits,
			TeamSize:   config.TeamSize(sc.TeamSize),
			Sequential: sc.Sequential,
		},
	}
	result.Sort = sortResult

	if keys == nil {
		var stats keyio.Stats
		keys, stats, err = keyio.ReadKeyFile(sc.Input)
		if err != nil {
			return nil, fmt.Errorf("reading keys: %w", err)
		}
		sortResult.SkippedIn = stats.Skipped
		if stats.Skipped > 0 {
			result.AddWarning("skipped_lines", fmt.Sprintf("%d lines of %s are not keys", stats.Skipped, sc.Input), stats.Skipped)
		}
		if sc.Format == "" && stats.AllIPv4 {
			format = keyio.IPv4
		}
	} else {
		sortResult.Input = ""
	}
	sortResult.Keys = len(keys)

	if err := sortKeys(ctx, keys, sc, observer); err != nil {
		result.AddError("sort", err.Error(), 1)
		result.UpdateDuration(start)
		return result, fmt.Errorf("sorting %d keys: %w", len(keys), err)
	}
	describeSorted(sortResult, keys, sc.NumDigits)

	if sc.Output != "" {
		if err := keyio.WriteKeyFile(sc.Output, keys, format); err != nil {
			result.AddError("write_output", err.Error(), 1)
			result.UpdateDuration(start)
			return result, err
		}
	}

	result.UpdateDuration(start)
	return result, nil
}

// ============================================================================
// VERIFY
// ============================================================================

// RunVerify sorts size random keys below VerifyBound and checks that the
// result is the sorted input
func RunVerify(ctx context.Context, sc *config.SortConfig, size int, seed int64) (*output.JSONOutput, error) {
	start := time.Now()
	result := output.NewJSONOutput("verify", start)

	rng := rand.New(rand.NewSource(seed))
	input := make([]uint64, size)
	for i := range input {
		input[i] = uint64(rng.Int63n(VerifyBound))
	}
	got := slices.Clone(input)

	verify := &output.VerifyResult{
		Seed:  seed,
		Keys:  size,
		Bound: VerifyBound,
		Parameters: output.SortParameters{
			NumDigits:  sc.NumDigits,
			TeamSize:   config.TeamSize(sc.TeamSize),
			Sequential: sc.Sequential,
		},
	}
	result.Verify = verify

	if err := sortKeys(ctx, got, sc, nil); err != nil {
		result.AddError("sort", err.Error(), 1)
		result.UpdateDuration(start)
		return result, fmt.Errorf("sorting %d keys: %w", size, err)
	}

	expected := slices.Clone(input)
	slices.Sort(expected)
	verify.Sorted = slices.IsSorted(got)
	verify.Permutation = slices.Equal(got, expected)

	result.UpdateDuration(start)
	if !verify.Sorted || !verify.Permutation {
		result.AddError("verify", "sorted output does not match the input", 1)
		return result, fmt.Errorf("verification failed with seed %d", seed)
	}
	return result, nil
}

// ============================================================================
// MAX
// ============================================================================

// RunMax compares the parallel and the sequential maximum of size random keys
func RunMax(ctx context.Context, size, teamSize int, seed int64) (*output.JSONOutput, error) {
	start := time.Now()
	result := output.NewJSONOutput("max", start)

	rng := rand.New(rand.NewSource(seed))
	keys := make([]uint64, size)
	for i := range keys {
		keys[i] = rng.Uint64()
	}

	seq, err := findmax.Sequential(keys)
	if err != nil {
		return nil, err
	}
	par, err := findmax.Parallel(ctx, keys, teamSize)
	if err != nil {
		result.AddError("max", err.Error(), 1)
		result.UpdateDuration(start)
		return result, err
	}

	result.Max = &output.MaxResult{
		Keys:       size,
		TeamSize:   teamSize,
		Sequential: seq,
		Parallel:   par,
		Agree:      seq == par,
	}
	result.UpdateDuration(start)
	if seq != par {
		return result, fmt.Errorf("parallel max %d differs from sequential max %d", par, seq)
	}
	return result, nil
}

// ============================================================================
// MATMUL
// ============================================================================

type matmulVariant struct {
	name     string
	multiply func(ctx context.Context, a, b matmul.Matrix, teamSize int) (matmul.Matrix, error)
}

var matmulVariants = []matmulVariant{
	{"parallel", matmul.Parallel},
	{"parallel_transposed", matmul.ParallelTransposed},
	{"parallel_transposed2", matmul.ParallelTransposed2},
}

func maxAbsDiff(a, b matmul.Matrix) float64 {
	var d float64
	for i := range a.Data {
		d = math.Max(d, math.Abs(a.Data[i]-b.Data[i]))
	}
	return d
}

// RunMatMul multiplies two random n x n matrices with every parallel variant
// and compares each product to the sequential one
func RunMatMul(ctx context.Context, n, teamSize int, seed int64) (*output.JSONOutput, error) {
	start := time.Now()
	result := output.NewJSONOutput("matmul", start)

	a := matmul.Random(n, seed)
	b := matmul.Random(n, seed+1)
	want, err := matmul.Sequential(a, b)
	if err != nil {
		return nil, err
	}

	mm := &output.MatMulResult{N: n, TeamSize: teamSize}
	result.MatMul = mm

	var failed []string
	for _, v := range matmulVariants {
		got, err := v.multiply(ctx, a, b, teamSize)
		if err != nil {
			result.AddError(v.name, err.Error(), 1)
			failed = append(failed, v.name)
			continue
		}
		diff := maxAbsDiff(got, want)
		agree := diff <= MatMulTolerance
		if !agree {
			failed = append(failed, v.name)
		}
		mm.Variants = append(mm.Variants, output.MatMulVariant{
			Name:        v.name,
			MaxAbsError: diff,
			Agree:       agree,
		})
	}

	result.UpdateDuration(start)
	if len(failed) > 0 {
		return result, fmt.Errorf("variants %v do not match the sequential product", failed)
	}
	return result, nil
}

// ============================================================================
// INSPECT
// ============================================================================

// runInspect sorts with a recorder attached and writes the heatmap
func runInspect(ctx context.Context, cfg *config.Config, rec *trace.Recorder) (*output.JSONOutput, error) {
	result, err := RunSort(ctx, cfg, nil, rec.Observe)
	if result == nil {
		return nil, err
	}
	result.Metadata.Command = "inspect"
	if err != nil {
		return result, err
	}

	passes := rec.Snapshots()
	for _, s := range passes {
		result.Passes = append(result.Passes, output.SummarizePass(s))
	}
	if cfg.Inspect.PlotPath != "" {
		if err := output.PlotCountTable(passes, cfg.Inspect.PlotPath); err != nil {
			result.AddError("plot", err.Error(), 1)
		}
	}
	return result, nil
}

// Inspect sorts cfg.Sort.Input with every pass recorded. With cfg.Inspect.TUI
// the passes are shown live in the terminal UI, otherwise the pass summaries
// are printed.
func Inspect(cfg *config.Config, outputConfig OutputConfig) error {
	ctx, stop := signalContext()
	defer stop()

	rec := trace.NewRecorder(cfg.Sort.NumDigits, cfg.Inspect.TUI)

	if !cfg.Inspect.TUI {
		result, err := runInspect(ctx, cfg, rec)
		if result != nil {
			outputResult(result, outputConfig)
		}
		return err
	}

	app := tui.NewApp(rec, cfg.Sort.Input, cfg.Sort.NumDigits, config.TeamSize(cfg.Sort.TeamSize))
	app.Start(func() (*output.JSONOutput, error) {
		return runInspect(ctx, cfg, rec)
	})
	return app.Run()
}

// ============================================================================
// SERVE
// ============================================================================

// batchSource delivers key batches until it is closed
type batchSource interface {
	NextBatch(ctx context.Context) (ingestor.KeyBatch, error)
}

// Serve sorts every key batch received by a lumberjack v2 listener until the
// process is interrupted
func Serve(cfg *config.Config, outputConfig OutputConfig) {
	ing, err := ingestor.NewTCPIngestor(":"+cfg.Serve.Port, cfg.Serve.ReadTimeout)
	if err != nil {
		log.Fatalf("Error creating ingestor: %v", err)
	}
	defer ing.Close()

	if err := ing.Accept(); err != nil {
		log.Fatalf("Error accepting connections: %v", err)
	}

	initOutput := output.NewJSONOutput("serve", time.Now())
	initOutput.AddWarning("info", fmt.Sprintf("Listening for lumberjack clients on %s", ing.Addr()), 0)
	outputResult(initOutput, outputConfig)

	ctx, stop := signalContext()
	defer stop()

	emit := func(o *output.JSONOutput) { outputResult(o, outputConfig) }
	if err := serveLoop(ctx, ing, cfg, emit); err != nil {
		errOutput := output.NewJSONOutput("serve", time.Now())
		errOutput.AddError("serve", err.Error(), 1)
		outputResult(errOutput, outputConfig)
	}

	shutdownOutput := output.NewJSONOutput("serve", time.Now())
	if ctx.Err() != nil {
		shutdownOutput.AddWarning("info", "Received shutdown signal", 0)
	} else {
		shutdownOutput.AddWarning("info", "Ingestor closed", 0)
	}
	outputResult(shutdownOutput, outputConfig)
}

// serveLoop sorts batches from src and emits one document per batch. It
// returns nil when src is closed or ctx is done.
func serveLoop(ctx context.Context, src batchSource, cfg *config.Config, emit func(*output.JSONOutput)) error {
	format, err := keyio.ParseFormat(cfg.Sort.Format)
	if err != nil {
		return err
	}
	stats := output.ServeStats{Port: cfg.Serve.Port}
	teamSize := config.TeamSize(cfg.Sort.TeamSize)

	for {
		batch, err := src.NextBatch(ctx)
		if err != nil {
			if errors.Is(err, ingestor.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading batch: %w", err)
		}

		loopStart := time.Now()
		jsonOutput := output.NewJSONOutput("serve", loopStart)

		keys := batch.Keys
		if len(keys) > cfg.Serve.BatchMax {
			jsonOutput.AddWarning("batch_truncated",
				fmt.Sprintf("batch of %d keys truncated to %d", len(keys), cfg.Serve.BatchMax),
				len(keys)-cfg.Serve.BatchMax)
			keys = keys[:cfg.Serve.BatchMax]
		}
		if batch.Rejected > 0 {
			jsonOutput.AddWarning("rejected_events", fmt.Sprintf("%d of %d events carried no valid keys", batch.Rejected, batch.Events), batch.Rejected)
		}

		sortStart := time.Now()
		err = radix.SortContext(ctx, keys, radix.Options{NumDigits: cfg.Sort.NumDigits, TeamSize: teamSize})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			jsonOutput.AddError("sort", err.Error(), 1)
			jsonOutput.UpdateDuration(loopStart)
			emit(jsonOutput)
			pools.Pools.ReturnKeySlice(batch.Keys)
			continue
		}

		stats.Batches++
		stats.Keys += len(keys)
		stats.RejectedEvents += batch.Rejected
		stats.LastBatchKeys = len(keys)
		stats.LastSortMS = time.Since(sortStart).Milliseconds()

		if cfg.Serve.Output != "" {
			if err := keyio.WriteKeyFile(cfg.Serve.Output, keys, format); err != nil {
				jsonOutput.AddError("write_output", err.Error(), 1)
			}
		}

		pools.Pools.ReturnKeySlice(batch.Keys)

		snapshot := stats
		jsonOutput.Serve = &snapshot
		jsonOutput.UpdateDuration(loopStart)
		emit(jsonOutput)
	}
}

// ============================================================================
// OUTPUT FUNCTIONS - Unified output handling
// ============================================================================

// outputResult is the unified output function that handles all output formats
func outputResult(jsonOutput *output.JSONOutput, outputConfig OutputConfig) {
	if outputConfig.Plain {
		fmt.Print(jsonOutput.FormatPlain())
		return
	}

	var jsonBytes []byte
	var err error

	if outputConfig.Compact {
		jsonBytes, err = jsonOutput.ToCompactJSON()
	} else {
		jsonBytes, err = jsonOutput.ToJSON()
	}

	if err != nil {
		fmt.Printf(`{"error": "failed to marshal JSON output: %v"}`, err)
		return
	}
	fmt.Println(string(jsonBytes))
}
