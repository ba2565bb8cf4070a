package reporting

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/xkilldash9x/searchprobe/internal/observability"
	"github.com/xkilldash9x/searchprobe/internal/scenario"
)

// JUnitReporter collects runs and writes them as one JUnit XML document on
// Close, one testsuite per run.
type JUnitReporter struct {
	mu     sync.Mutex
	writer io.WriteCloser
	logger *zap.Logger
	doc    *etree.Document
	root   *etree.Element

	tests, failures, errors int
	elapsed                 time.Duration
}

// NewJUnitReporter takes ownership of writer.
func NewJUnitReporter(writer io.WriteCloser) *JUnitReporter {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("testsuites")
	root.CreateAttr("name", "searchprobe")
	return &JUnitReporter{
		writer: writer,
		logger: observability.Component("junit_reporter"),
		doc:    doc,
		root:   root,
	}
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func (r *JUnitReporter) Write(report *scenario.RunReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := report.Counts()
	suite := r.root.CreateElement("testsuite")
	suite.CreateAttr("name", "search scenarios")
	suite.CreateAttr("id", report.ID)
	suite.CreateAttr("tests", strconv.Itoa(len(report.Results)))
	suite.CreateAttr("failures", strconv.Itoa(counts[scenario.StatusFailed]))
	suite.CreateAttr("errors", strconv.Itoa(counts[scenario.StatusErrored]))
	suite.CreateAttr("skipped", "0")
	suite.CreateAttr("time", seconds(report.Duration))
	suite.CreateAttr("timestamp", report.StartedAt.UTC().Format(time.RFC3339))

	for _, res := range report.Results {
		tc := suite.CreateElement("testcase")
		tc.CreateAttr("name", res.Scenario)
		tc.CreateAttr("classname", "searchprobe.scenario")
		tc.CreateAttr("time", seconds(res.Duration))

		switch res.Status {
		case scenario.StatusFailed:
			f := tc.CreateElement("failure")
			f.CreateAttr("message", res.Message)
			f.CreateAttr("type", "expectation")
			f.SetText(stepLog(res))
		case scenario.StatusErrored:
			e := tc.CreateElement("error")
			e.CreateAttr("message", res.Message)
			e.CreateAttr("type", "error")
			e.SetText(stepLog(res))
		}
		if res.Screenshot != "" {
			out := tc.CreateElement("system-out")
			out.SetText("[[ATTACHMENT|" + res.Screenshot + "]]")
		}
	}

	r.tests += len(report.Results)
	r.failures += counts[scenario.StatusFailed]
	r.errors += counts[scenario.StatusErrored]
	r.elapsed += report.Duration
	return nil
}

// stepLog lists every step with its outcome, one per line.
func stepLog(res scenario.Result) string {
	var b strings.Builder
	for _, st := range res.Steps {
		fmt.Fprintf(&b, "%-8s %s", st.Status, st.Step)
		if st.Message != "" {
			fmt.Fprintf(&b, ": %s", st.Message)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func (r *JUnitReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.root.CreateAttr("tests", strconv.Itoa(r.tests))
	r.root.CreateAttr("failures", strconv.Itoa(r.failures))
	r.root.CreateAttr("errors", strconv.Itoa(r.errors))
	r.root.CreateAttr("skipped", "0")
	r.root.CreateAttr("time", seconds(r.elapsed))

	r.doc.Indent(2)
	_, writeErr := r.doc.WriteTo(r.writer)
	closeErr := r.writer.Close()
	if writeErr != nil {
		r.logger.Error("Failed to write JUnit report.", zap.Error(writeErr))
		return fmt.Errorf("failed to write JUnit output: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	r.logger.Info("Wrote JUnit report.", zap.Int("tests", r.tests), zap.Int("failures", r.failures), zap.Int("errors", r.errors))
	return nil
}
