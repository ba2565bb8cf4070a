package reporting

import (
	"fmt"
	"io"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/searchprobe/internal/observability"
	"github.com/xkilldash9x/searchprobe/internal/scenario"
)

var jsonAPI = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// JSONReporter writes each run as an indented JSON document followed by a newline.
type JSONReporter struct {
	mu     sync.Mutex
	writer io.WriteCloser
	logger *zap.Logger
}

// NewJSONReporter takes ownership of writer.
func NewJSONReporter(writer io.WriteCloser) *JSONReporter {
	return &JSONReporter{writer: writer, logger: observability.Component("json_reporter")}
}

func (r *JSONReporter) Write(report *scenario.RunReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	buf, err := jsonAPI.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if _, err := r.writer.Write(append(buf, '\n')); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	r.logger.Debug("Wrote JSON report.", zap.String("run_id", report.ID), zap.Int("results", len(report.Results)))
	return nil
}

func (r *JSONReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writer.Close(); err != nil {
		return fmt.Errorf("failed to close output writer: %w", err)
	}
	return nil
}
