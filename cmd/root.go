package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roundsim/roundsim/sim/config"
	"github.com/roundsim/roundsim/sim/controller"
	"github.com/roundsim/roundsim/sim/trace"
)

var (
	// CLI flags for the run command
	configPath   string        // Simulation config file
	seed         int64         // Overrides general.seed
	parallelism  int           // Overrides general.parallelism
	schedName    string        // Overrides general.scheduler
	runaheadMin  time.Duration // Overrides general.runahead
	stopTime     time.Duration // Overrides general.stop_time
	logLevel     string        // Log verbosity level
	traceLevel   string        // Round trace verbosity
	traceOutput  string        // Where to write the round trace as YAML
	resultsPath  string        // Where to write the metrics as JSON
	promTextfile string        // Where to write Prometheus metrics in text format
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "roundsim",
	Short: "Parallel deterministic discrete-event network simulator",
}

// runCmd executes the simulation described by --config
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation",
	Run: func(cmd *cobra.Command, args []string) {
		// Set up logging
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		if !trace.IsValidTraceLevel(traceLevel) {
			logrus.Fatalf("Invalid trace level: %s", traceLevel)
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			logrus.Fatalf("unable to load config; %v", err)
		}
		if err := applyOverrides(cmd, cfg); err != nil {
			logrus.Fatalf("invalid flags; %v", err)
		}

		if err := runSimulation(cfg); err != nil {
			logrus.Fatalf("%v", err)
		}
		logrus.Info("Simulation complete.")
	},
}

// validateCmd checks a config file without running it
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a simulation config for errors",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		hosts, err := cfg.ExpandHosts()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d hosts, %d nodes, %d edges)\n",
			configPath, len(hosts), len(cfg.Network.Nodes), len(cfg.Network.Edges))
		return nil
	},
}

// applyOverrides copies every flag the user set explicitly into cfg and
// re-validates it.
func applyOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.General.Seed = seed
	}
	if flags.Changed("parallelism") {
		cfg.General.Parallelism = parallelism
	}
	if flags.Changed("scheduler") {
		cfg.General.Scheduler = schedName
	}
	if flags.Changed("runahead") {
		cfg.General.Runahead = config.Duration(runaheadMin)
	}
	if flags.Changed("stop-time") {
		cfg.General.StopTime = config.Duration(stopTime)
	}
	return cfg.Validate()
}

// runSimulation runs cfg and writes every requested output.
func runSimulation(cfg *config.Config) error {
	reg := prometheus.NewRegistry()
	level := trace.TraceLevel(traceLevel)
	if traceOutput != "" && (level == "" || level == trace.TraceLevelNone) {
		level = trace.TraceLevelRounds
	}

	m, err := controller.NewManager(cfg, controller.Options{
		Registerer: reg,
		Trace:      trace.TraceConfig{Level: level},
	})
	if err != nil {
		return fmt.Errorf("setting up simulation: %w", err)
	}
	metrics, err := m.Run()
	if err != nil {
		return fmt.Errorf("running simulation: %w", err)
	}
	if err := metrics.SaveResults(resultsPath); err != nil {
		return err
	}

	if traceOutput != "" {
		if err := writeTrace(m.Trace(), traceOutput); err != nil {
			return err
		}
	}
	if promTextfile != "" {
		if err := prometheus.WriteToTextfile(promTextfile, reg); err != nil {
			return fmt.Errorf("writing prometheus textfile: %w", err)
		}
		logrus.Infof("prometheus metrics written to %s", promTextfile)
	}
	return nil
}

// traceFile is the YAML document written by --trace-output.
type traceFile struct {
	Summary *trace.TraceSummary    `yaml:"summary"`
	Trace   *trace.SimulationTrace `yaml:"trace"`
}

func writeTrace(st *trace.SimulationTrace, path string) error {
	summary, err := trace.Summarize(st)
	if err != nil {
		return fmt.Errorf("summarizing trace: %w", err)
	}
	data, err := yaml.Marshal(traceFile{Summary: summary, Trace: st})
	if err != nil {
		return fmt.Errorf("marshal trace: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write trace to %s: %w", path, err)
	}
	logrus.Infof("trace with %d rounds written to %s", len(st.Rounds), path)
	return nil
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// addRunFlags registers the run command's flags on c.
func addRunFlags(c *cobra.Command) {
	c.Flags().StringVar(&configPath, "config", "", "Simulation config file (YAML)")
	c.Flags().Int64Var(&seed, "seed", 1, "Seed for every random stream (overrides general.seed)")
	c.Flags().IntVar(&parallelism, "parallelism", 0, "Worker threads, 0 for one per logical processor (overrides general.parallelism)")
	c.Flags().StringVar(&schedName, "scheduler", "thread-per-core", "Scheduler: thread-per-core or thread-per-host (overrides general.scheduler)")
	c.Flags().DurationVar(&runaheadMin, "runahead", 0, "Lower bound on the round width (overrides general.runahead)")
	c.Flags().DurationVar(&stopTime, "stop-time", 0, "Simulated time at which to stop (overrides general.stop_time)")
	c.Flags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	c.Flags().StringVar(&traceLevel, "trace-level", "none", "Round trace level (none, rounds)")
	c.Flags().StringVar(&traceOutput, "trace-output", "", "Write the round trace and its summary as YAML to this file")
	c.Flags().StringVar(&resultsPath, "results-path", "", "Also write the metrics JSON to this file")
	c.Flags().StringVar(&promTextfile, "prom-textfile", "", "Write Prometheus metrics in text format to this file")
}

// init sets up CLI flags and subcommands
func init() {
	addRunFlags(runCmd)
	_ = runCmd.MarkFlagRequired("config")

	validateCmd.Flags().StringVar(&configPath, "config", "", "Simulation config file (YAML)")
	_ = validateCmd.MarkFlagRequired("config")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}
