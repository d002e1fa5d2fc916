package reporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"pact-verifier/internal/types"
)

// Report formats
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Reporter handles the generation of verification reports
type Reporter struct {
	config ReportingConfig
	now    func() time.Time
}

// ReportingConfig holds the configuration for reporting
type ReportingConfig struct {
	Format    []string
	OutputDir string
	// Detailed adds spec locations, values and constraints to text reports.
	Detailed bool
}

// NewReporter creates a new instance of Reporter
func NewReporter(config ReportingConfig) *Reporter {
	return &Reporter{
		config: config,
		now:    time.Now,
	}
}

// Aggregate merges per-interaction results into a verification result.
// Violations keep interaction order, then the order they were found in, and
// success is false exactly when an error-severity violation exists.
func Aggregate(runID string, results []types.InteractionResult) *types.VerificationResult {
	out := &types.VerificationResult{
		RunID:      runID,
		Violations: []types.Violation{},
		Summary: types.Summary{
			Interactions: len(results),
			ByCode:       map[types.Code]int{},
		},
	}

	for _, r := range results {
		failed := false
		for _, v := range r.Violations {
			out.Violations = append(out.Violations, v)
			out.Summary.ByCode[v.Code]++
			if v.Severity == types.SeverityError {
				out.Summary.Errors++
				failed = true
			} else {
				out.Summary.Warnings++
			}
		}
		if failed {
			out.Summary.FailedInteractions++
		}
	}
	out.Success = out.Summary.Errors == 0
	return out
}

// GenerateReport writes the result in every configured format to the output
// directory and returns the written paths.
func (r *Reporter) GenerateReport(result *types.VerificationResult) ([]string, error) {
	if err := os.MkdirAll(r.config.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	stamp := r.now().Format("20060102_150405")
	var paths []string
	for _, format := range r.config.Format {
		ext := format
		if format == FormatText {
			ext = "txt"
		}
		path := filepath.Join(r.config.OutputDir, fmt.Sprintf("report_%s.%s", stamp, ext))
		if err := r.writeFile(path, format, result); err != nil {
			return paths, fmt.Errorf("failed to generate %s report: %w", format, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (r *Reporter) writeFile(path, format string, result *types.VerificationResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.Render(f, format, result); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Render writes the result to w in the given format.
func (r *Reporter) Render(w io.Writer, format string, result *types.VerificationResult) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, result)
	case FormatText:
		return renderText(w, result, r.config.Detailed)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

func renderJSON(w io.Writer, result *types.VerificationResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

func renderText(w io.Writer, result *types.VerificationResult, detailed bool) error {
	var b strings.Builder

	status := "PASSED"
	if !result.Success {
		status = "FAILED"
	}
	fmt.Fprintf(&b, "Verification %s (run %s)\n", status, result.RunID)
	if result.Consumer != "" || result.Provider != "" {
		fmt.Fprintf(&b, "consumer: %s  provider: %s\n", result.Consumer, result.Provider)
	}
	s := result.Summary
	fmt.Fprintf(&b, "interactions: %d  failed: %d  errors: %d  warnings: %d\n",
		s.Interactions, s.FailedInteractions, s.Errors, s.Warnings)

	for _, v := range result.Violations {
		fmt.Fprintf(&b, "\n[%s] %s %s %q\n", strings.ToUpper(string(v.Severity)), v.Code,
			fmt.Sprintf("interaction[%d]", v.InteractionIndex), v.InteractionDescription)
		fmt.Fprintf(&b, "  %s\n", v.Message)
		fmt.Fprintf(&b, "  at %s\n", v.InteractionLocation)
		if !detailed {
			continue
		}
		if v.SpecLocation != "" {
			fmt.Fprintf(&b, "  spec %s\n", v.SpecLocation)
		}
		if v.Constraint != "" {
			fmt.Fprintf(&b, "  constraint %s\n", v.Constraint)
		}
		if v.Value != nil {
			value, err := json.Marshal(v.Value)
			if err == nil {
				fmt.Fprintf(&b, "  value %s\n", value)
			}
		}
	}

	if len(result.Suggestions) > 0 {
		b.WriteString("\nSuggestions\n")
		for _, sg := range result.Suggestions {
			fmt.Fprintf(&b, "  interaction[%d]: %s\n", sg.InteractionIndex, sg.Text)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
