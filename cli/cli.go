package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ingla/pram/config"
	"github.com/ingla/pram/iputils"
	"github.com/ingla/pram/radix"
	"github.com/ingla/pram/version"
	cli "github.com/urfave/cli/v2"
)

// parseDate attempts to parse the build date
func parseDate(d string) time.Time {
	t, err := time.Parse(time.RFC3339, d)
	if err != nil {
		return time.Now()
	}
	return t
}

// Shared flag definitions to eliminate duplication
var (
	// Configuration flags
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Path to configuration file (mutually exclusive with other flags)",
	}

	// Sorting flags
	digitsFlag = &cli.IntFlag{
		Name:  "digits",
		Usage: fmt.Sprintf("Number of radix passes (1 to %d); each pass covers at most %d key bits, so full 32-bit keys need at least 2", radix.MaxDigits, radix.MaxDigitBits),
		Value: config.DefaultNumDigits,
	}
	teamFlag = &cli.IntFlag{
		Name:  "team",
		Usage: "Number of workers (0 = one per CPU)",
		Value: 0,
	}
	sequentialFlag = &cli.BoolFlag{
		Name:  "sequential",
		Usage: "Use the single-threaded radix sort with the same digit plan",
		Value: false,
	}

	// Input flags
	inputFlag = &cli.StringFlag{
		Name:  "input",
		Usage: "Path to the key file (one unsigned integer or IPv4 address per line, '#' comments)",
	}
	generateFlag = &cli.IntFlag{
		Name:  "generate",
		Usage: "Sort N random IPv4 keys drawn from --cidr instead of reading --input",
	}
	cidrFlag = &cli.StringFlag{
		Name:  "cidr",
		Usage: "CIDR range for --generate (e.g., '10.0.0.0/8')",
		Value: "0.0.0.0/0",
	}
	seedFlag = &cli.Int64Flag{
		Name:  "seed",
		Usage: "Random seed for generated keys (0 = time based)",
	}
	sizeFlag = &cli.IntFlag{
		Name:  "size",
		Usage: "Number of random keys",
		Value: 1000,
	}

	// Output flags
	outputFlag = &cli.StringFlag{
		Name:  "output",
		Usage: "Path where the sorted keys are written. If not provided, only the summary is printed.",
	}
	formatFlag = &cli.StringFlag{
		Name:  "format",
		Usage: "Output key format: 'decimal' or 'ipv4' (default: ipv4 if every input line was an address)",
	}
	plotPathFlag = &cli.StringFlag{
		Name:  "plotPath",
		Usage: "Path where to save the count table heatmap (e.g., '/path/to/passes.html')",
	}
	tuiFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Launch TUI (Terminal User Interface) pass inspector",
		Value: false,
	}
	compactFlag = &cli.BoolFlag{
		Name:  "compact",
		Usage: "Output compact JSON (no pretty printing)",
		Value: false,
	}
	plainFlag = &cli.BoolFlag{
		Name:  "plain",
		Usage: "Output plain text format for easy readability",
		Value: false,
	}

	// Serve-specific flags
	portFlag = &cli.StringFlag{
		Name:  "port",
		Usage: "Port to listen on for lumberjack v2 clients",
		Value: config.DefaultPort,
	}
	readTimeoutFlag = &cli.DurationFlag{
		Name:  "readTimeout",
		Usage: "Read timeout of client connections",
		Value: config.DefaultReadTimeout,
	}
	batchMaxFlag = &cli.IntFlag{
		Name:  "batchMax",
		Usage: "Maximum number of keys sorted per batch",
		Value: config.DefaultBatchMax,
	}

	// Matmul-specific flags
	matrixSizeFlag = &cli.IntFlag{
		Name:  "n",
		Usage: "Matrix dimension",
		Value: 256,
	}
)

// Shared validation functions
func validateConfigModeFlags(c *cli.Context, allowedFlags []string) error {
	allowed := make(map[string]bool)
	for _, flag := range allowedFlags {
		allowed[flag] = true
	}

	flagsToCheck := []string{
		"digits", "team", "sequential", "input", "generate", "cidr", "seed",
		"output", "format", "plotPath", "tui", "port", "readTimeout", "batchMax",
		"compact", "plain",
	}

	for _, flag := range flagsToCheck {
		if c.IsSet(flag) && !allowed[flag] {
			return fmt.Errorf("when using --config, only %v flags are allowed", allowedFlags)
		}
	}
	return nil
}

func validatePlotPath(plotPath string) error {
	if plotPath != "" {
		plotDir := filepath.Dir(plotPath)
		if plotDir == "." {
			plotDir, _ = os.Getwd()
		}
		if _, err := os.Stat(plotDir); os.IsNotExist(err) {
			return fmt.Errorf("plot directory does not exist: %s", plotDir)
		}
	}
	return nil
}

func validateGenerate(c *cli.Context) error {
	if !c.IsSet("generate") {
		return nil
	}
	if c.IsSet("input") {
		return fmt.Errorf("--input and --generate are mutually exclusive")
	}
	if c.Int("generate") < 1 {
		return fmt.Errorf("--generate must be positive, got %d", c.Int("generate"))
	}
	if !iputils.IsValidCidr(c.String("cidr")) {
		return fmt.Errorf("invalid CIDR range: %s", c.String("cidr"))
	}
	return nil
}

// sortConfigFromFlags builds the same structure a config file would produce
func sortConfigFromFlags(c *cli.Context) *config.Config {
	return &config.Config{
		Sort: &config.SortConfig{
			NumDigits:  c.Int("digits"),
			TeamSize:   c.Int("team"),
			Input:      c.String("input"),
			Output:     c.String("output"),
			Format:     c.String("format"),
			Sequential: c.Bool("sequential"),
		},
		Inspect: &config.InspectConfig{
			PlotPath: c.String("plotPath"),
			TUI:      c.Bool("tui"),
		},
	}
}

// loadConfigMode loads and validates a config file for a command
func loadConfigMode(c *cli.Context, allowed []string, validate func(*config.Config) error) (*config.Config, error) {
	if err := validateConfigModeFlags(c, allowed); err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func outputConfigFrom(c *cli.Context) OutputConfig {
	return OutputConfig{Compact: c.Bool("compact"), Plain: c.Bool("plain")}
}

// Command handler functions to reduce deep nesting

// handleSortCommand processes the sort command
func handleSortCommand(c *cli.Context) error {
	var cfg *config.Config
	var keys []uint64
	var err error

	if c.String("config") != "" {
		cfg, err = loadConfigMode(c, []string{"compact", "plain"}, (*config.Config).ValidateSort)
		if err != nil {
			return err
		}
	} else {
		if err := validateGenerate(c); err != nil {
			return err
		}
		cfg = sortConfigFromFlags(c)
		if c.IsSet("generate") {
			if keys, err = generateKeys(c.String("cidr"), c.Int("generate"), c.Int64("seed")); err != nil {
				return err
			}
			if cfg.Sort.Format == "" {
				cfg.Sort.Format = "ipv4"
			}
			err = cfg.ValidateSortParameters()
		} else {
			err = cfg.ValidateSort()
		}
		if err != nil {
			return err
		}
	}

	ctx, stop := signalContext()
	defer stop()

	result, err := RunSort(ctx, cfg, keys, nil)
	if result != nil {
		outputResult(result, outputConfigFrom(c))
	}
	return err
}

// handleVerifyCommand processes the verify command
func handleVerifyCommand(c *cli.Context) error {
	if c.Int("size") < 0 {
		return fmt.Errorf("--size must not be negative, got %d", c.Int("size"))
	}
	cfg := sortConfigFromFlags(c)
	if err := cfg.ValidateSortParameters(); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	result, err := RunVerify(ctx, cfg.Sort, c.Int("size"), resolveSeed(c.Int64("seed")))
	if result != nil {
		outputResult(result, outputConfigFrom(c))
	}
	return err
}

// handleMaxCommand processes the max command
func handleMaxCommand(c *cli.Context) error {
	if c.Int("size") < 1 {
		return fmt.Errorf("--size must be positive, got %d", c.Int("size"))
	}
	if c.Int("team") < 0 {
		return fmt.Errorf("--team must be 0 (one per CPU) or positive, got %d", c.Int("team"))
	}

	ctx, stop := signalContext()
	defer stop()

	result, err := RunMax(ctx, c.Int("size"), config.TeamSize(c.Int("team")), resolveSeed(c.Int64("seed")))
	if result != nil {
		outputResult(result, outputConfigFrom(c))
	}
	return err
}

// handleMatMulCommand processes the matmul command
func handleMatMulCommand(c *cli.Context) error {
	if c.Int("n") < 1 {
		return fmt.Errorf("--n must be positive, got %d", c.Int("n"))
	}
	if c.Int("team") < 0 {
		return fmt.Errorf("--team must be 0 (one per CPU) or positive, got %d", c.Int("team"))
	}

	ctx, stop := signalContext()
	defer stop()

	result, err := RunMatMul(ctx, c.Int("n"), config.TeamSize(c.Int("team")), resolveSeed(c.Int64("seed")))
	if result != nil {
		outputResult(result, outputConfigFrom(c))
	}
	return err
}

// handleInspectCommand processes the inspect command
func handleInspectCommand(c *cli.Context) error {
	var cfg *config.Config
	var err error

	if c.String("config") != "" {
		cfg, err = loadConfigMode(c, []string{"tui", "compact", "plain"}, func(cfg *config.Config) error {
			if c.Bool("tui") {
				cfg.Inspect.TUI = true
			}
			return cfg.ValidateInspect()
		})
		if err != nil {
			return err
		}
	} else {
		if !c.IsSet("input") {
			return fmt.Errorf("input is required when not using --config")
		}
		cfg = sortConfigFromFlags(c)
		if err := cfg.ValidateInspect(); err != nil {
			return err
		}
	}

	if err := validatePlotPath(cfg.Inspect.PlotPath); err != nil {
		return err
	}

	return Inspect(cfg, outputConfigFrom(c))
}

// handleServeCommand processes the serve command
func handleServeCommand(c *cli.Context) error {
	var cfg *config.Config
	var err error

	if c.String("config") != "" {
		cfg, err = loadConfigMode(c, []string{"compact", "plain"}, (*config.Config).ValidateServe)
		if err != nil {
			return err
		}
	} else {
		cfg = sortConfigFromFlags(c)
		cfg.Serve = &config.ServeConfig{
			Port:        c.String("port"),
			ReadTimeout: c.Duration("readTimeout"),
			BatchMax:    c.Int("batchMax"),
			Output:      c.String("output"),
		}
		cfg.Sort.Output = ""
		if err := cfg.ValidateServe(); err != nil {
			return err
		}
	}

	fmt.Fprintf(os.Stderr, "Serving on port %s\n", cfg.Serve.Port)
	Serve(cfg, outputConfigFrom(c))
	return nil
}

var App = &cli.App{
	Name:     "pram",
	Usage:    "Barrier-synchronized parallel radix sort and friends",
	Version:  version.Version,
	Compiled: parseDate(version.Date),
	Commands: []*cli.Command{
		{
			Name:  "sort",
			Usage: "Sort a key file with the parallel radix sort",
			Flags: []cli.Flag{
				// Configuration
				configFlag,
				// Sorting
				digitsFlag,
				teamFlag,
				sequentialFlag,
				// Input
				inputFlag,
				generateFlag,
				cidrFlag,
				seedFlag,
				// Output
				outputFlag,
				formatFlag,
				compactFlag,
				plainFlag,
			},
			Action: handleSortCommand,
		},
		{
			Name:  "verify",
			Usage: "Sort random keys below 10,000,000 and check the result",
			Flags: []cli.Flag{
				digitsFlag,
				teamFlag,
				sizeFlag,
				seedFlag,
				compactFlag,
				plainFlag,
			},
			Action: handleVerifyCommand,
		},
		{
			Name:  "max",
			Usage: "Compare the parallel and sequential maximum of random keys",
			Flags: []cli.Flag{
				teamFlag,
				sizeFlag,
				seedFlag,
				compactFlag,
				plainFlag,
			},
			Action: handleMaxCommand,
		},
		{
			Name:  "matmul",
			Usage: "Multiply random matrices with every parallel variant and compare",
			Flags: []cli.Flag{
				matrixSizeFlag,
				teamFlag,
				seedFlag,
				compactFlag,
				plainFlag,
			},
			Action: handleMatMulCommand,
		},
		{
			Name:  "inspect",
			Usage: "Sort a key file and show the count table of every pass",
			Flags: []cli.Flag{
				configFlag,
				digitsFlag,
				teamFlag,
				inputFlag,
				plotPathFlag,
				tuiFlag,
				compactFlag,
				plainFlag,
			},
			Action: handleInspectCommand,
		},
		{
			Name:  "serve",
			Usage: "Receive key batches over lumberjack v2 and sort each one",
			Flags: []cli.Flag{
				configFlag,
				portFlag,
				readTimeoutFlag,
				batchMaxFlag,
				digitsFlag,
				teamFlag,
				outputFlag,
				compactFlag,
				plainFlag,
			},
			Action: handleServeCommand,
		},
	},
}
