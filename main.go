package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"pact-verifier/internal/advisor"
	"pact-verifier/internal/checker"
	"pact-verifier/internal/config"
	"pact-verifier/internal/executor"
	"pact-verifier/internal/history"
	"pact-verifier/internal/logger"
	"pact-verifier/internal/metrics"
	"pact-verifier/internal/pact"
	"pact-verifier/internal/parser"
	"pact-verifier/internal/reporter"
	"pact-verifier/internal/types"
)

var version = "dev"

// Exit codes
const (
	exitOK     = 0
	exitFailed = 1
	exitError  = 2
)

// stringList collects a repeatable flag
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return exitError
	}
	switch args[0] {
	case "verify":
		return runVerify(ctx, args[1:], stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "pact-verifier %s\n", version)
		return exitOK
	case "-h", "-help", "--help", "help":
		usage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		usage(stderr)
		return exitError
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  pact-verifier verify -spec <file|url> -pact <file> [-pact <file>...] [options]")
	fmt.Fprintln(w, "  pact-verifier version")
}

type verifyFlags struct {
	spec                 string
	pacts                stringList
	configPath           string
	format               string
	output               string
	additionalProperties string
	workers              int
}

func parseVerifyFlags(args []string, stderr io.Writer) (*verifyFlags, error) {
	f := &verifyFlags{}
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.spec, "spec", "", "Path or URL of the provider OpenAPI/Swagger document")
	fs.Var(&f.pacts, "pact", "Path to a pact file (repeatable)")
	fs.StringVar(&f.configPath, "config", config.DefaultPath, "Path to the configuration file")
	fs.StringVar(&f.format, "format", "", "Report format (json|text)")
	fs.StringVar(&f.output, "output", "", "Report output directory")
	fs.StringVar(&f.additionalProperties, "additional-properties", "", "Policy for schemas without additionalProperties (permissive|strict)")
	fs.IntVar(&f.workers, "workers", 0, "Number of interactions checked in parallel")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if f.spec == "" || len(f.pacts) == 0 {
		fs.Usage()
		return nil, errors.New("-spec and at least one -pact are required")
	}
	if f.workers < 0 {
		return nil, errors.New("-workers must not be negative")
	}
	return f, nil
}

// apply overrides configuration values with flags that were set.
func (f *verifyFlags) apply(cfg *config.Config) error {
	if f.format != "" {
		cfg.Reporting.Format = []string{f.format}
	}
	if f.output != "" {
		cfg.Reporting.OutputDir = f.output
	}
	if f.additionalProperties != "" {
		cfg.Verification.AdditionalProperties = f.additionalProperties
	}
	if f.workers > 0 {
		cfg.Verification.MaxWorkers = f.workers
		cfg.Verification.Concurrent = f.workers > 1
	}
	return cfg.Validate()
}

func runVerify(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags, err := parseVerifyFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return exitError
	}
	if err := flags.apply(cfg); err != nil {
		fmt.Fprintf(stderr, "Invalid configuration: %v\n", err)
		return exitError
	}

	log, err := logger.NewLogger(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Dir:    cfg.Logging.Dir,
		Out:    stderr,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Failed to create logger: %v\n", err)
		return exitError
	}
	defer log.Close()

	v := &verifier{cfg: cfg, log: log.Logger, stdout: stdout, metrics: metrics.New(nil)}
	failed, err := v.verify(ctx, flags.spec, flags.pacts)
	if err != nil {
		log.WithError(err).Error("verification aborted")
		return exitError
	}
	if failed {
		return exitFailed
	}
	return exitOK
}

// verifier runs one verification per pact file against a shared specification.
type verifier struct {
	cfg     *config.Config
	log     *logrus.Logger
	stdout  io.Writer
	metrics *metrics.Metrics
}

func (v *verifier) verify(ctx context.Context, specSource string, pactPaths []string) (bool, error) {
	policy, err := v.cfg.Verification.Policy()
	if err != nil {
		return false, err
	}
	v.log.WithFields(logrus.Fields{
		"additional_properties": policy.String(),
		"concurrent":            v.cfg.Verification.Concurrent,
		"max_workers":           v.cfg.Verification.MaxWorkers,
	}).Info("starting verification")

	spec, err := parser.LoadSpecificationSource(ctx, specSource)
	if err != nil {
		return false, err
	}
	v.log.WithFields(logrus.Fields{
		"title":     spec.Title,
		"version":   spec.Version,
		"endpoints": len(spec.Endpoints),
	}).Info("loaded specification")

	files := make([]*pact.File, 0, len(pactPaths))
	for _, path := range pactPaths {
		file, err := pact.LoadFile(path)
		if err != nil {
			return false, err
		}
		v.log.WithFields(logrus.Fields{
			"pact":         path,
			"interactions": len(file.Interactions),
			"skipped":      file.Skipped,
		}).Info("loaded pact")
		files = append(files, file)
	}

	chk, err := checker.New(spec, checker.Options{AdditionalProperties: policy})
	if err != nil {
		return false, err
	}

	failed := false
	for i, file := range files {
		outputDir := v.cfg.Reporting.OutputDir
		if len(files) > 1 {
			outputDir = filepath.Join(outputDir, fmt.Sprintf("%d_%s", i+1, reportDirName(file)))
		}
		result, err := v.verifyFile(ctx, chk, file, outputDir)
		if err != nil {
			return false, err
		}
		if !result.Success {
			failed = true
		}
	}

	if path := v.cfg.Metrics.Textfile; path != "" {
		if err := v.metrics.WriteTextfile(path); err != nil {
			v.log.WithError(err).Warn("failed to write metrics textfile")
		}
	}
	return failed, nil
}

func (v *verifier) verifyFile(ctx context.Context, chk *checker.Checker, file *pact.File, outputDir string) (*types.VerificationResult, error) {
	runID := uuid.NewString()
	log := v.log.WithFields(logrus.Fields{
		"run_id":   runID,
		"consumer": file.Consumer,
		"provider": file.Provider,
	})

	started := time.Now()
	runner := executor.NewRunner(executor.Config{
		Concurrent: v.cfg.Verification.Concurrent,
		MaxWorkers: v.cfg.Verification.MaxWorkers,
	}, chk, log)
	results, err := runner.Run(ctx, file.Interactions)
	if err != nil {
		return nil, err
	}
	duration := time.Since(started)

	result := reporter.Aggregate(runID, results)
	result.Consumer = file.Consumer
	result.Provider = file.Provider
	log.WithFields(logrus.Fields{
		"success":    result.Success,
		"errors":     result.Summary.Errors,
		"warnings":   result.Summary.Warnings,
		"duration":   duration,
		"violations": len(result.Violations),
	}).Info("verification finished")

	if v.cfg.Advisor.Enabled && !result.Success {
		client, err := advisor.NewClient(v.cfg.Advisor)
		if err != nil {
			log.WithError(err).Warn("advisor disabled")
		} else {
			advisor.Annotate(ctx, client, result, file.Interactions, v.cfg.Advisor.MaxSuggestions, log)
		}
	}

	v.metrics.Observe(result, duration)

	if v.cfg.History.Enabled {
		if err := v.saveHistory(ctx, result, started, duration); err != nil {
			log.WithError(err).Warn("failed to record verification history")
		}
	}

	rep := reporter.NewReporter(reporter.ReportingConfig{
		Format:    v.cfg.Reporting.Format,
		OutputDir: outputDir,
		Detailed:  v.cfg.Reporting.Detailed,
	})
	paths, err := rep.GenerateReport(result)
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		log.WithField("path", p).Info("report written")
	}
	if err := rep.Render(v.stdout, reporter.FormatText, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (v *verifier) saveHistory(ctx context.Context, result *types.VerificationResult, started time.Time, duration time.Duration) error {
	h := v.cfg.History
	store, err := history.Open(ctx, history.Config{
		Driver:   h.Driver,
		Host:     h.Host,
		Port:     h.Port,
		Database: h.Database,
		User:     h.Username,
		Password: h.Password,
		SSLMode:  h.SSLMode,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	return store.SaveRun(ctx, result, started, duration)
}

// reportDirName names the report directory of one pact file.
func reportDirName(file *pact.File) string {
	name := strings.Trim(file.Consumer+"-"+file.Provider, "-")
	if name == "" {
		return "pact"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, name)
}
