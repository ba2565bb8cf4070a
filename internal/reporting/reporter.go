// Package reporting writes run reports as JSON or JUnit XML.
package reporting

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xkilldash9x/searchprobe/internal/scenario"
)

// Reporter writes run reports to an output.
type Reporter interface {
	// Write records one run.
	Write(report *scenario.RunReport) error
	// Close finalizes the output and closes any underlying file.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// Formats lists the accepted values of New's format argument.
var Formats = []string{"json", "junit"}

// New creates a reporter for format writing to outputPath. An empty path or
// "stdout" writes to standard output.
func New(format, outputPath string) (Reporter, error) {
	return NewWithStdout(format, outputPath, os.Stdout)
}

// NewWithStdout is New with the standard output replaced by stdout.
func NewWithStdout(format, outputPath string, stdout io.Writer) (Reporter, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case "json", "junit":
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		writer = &nopWriteCloser{stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	if format == "junit" {
		return NewJUnitReporter(writer), nil
	}
	return NewJSONReporter(writer), nil
}
