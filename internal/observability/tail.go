// File: internal/observability/tail.go
package observability

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hpcloud/tail"
	jsoniter "github.com/json-iterator/go"
)

// FollowOptions configures Follow.
type FollowOptions struct {
	// Follow keeps reading as the file grows (and across lumberjack rotations).
	Follow bool
	// FromStart replays the whole file instead of starting at its end.
	FromStart bool
}

// Follow streams the JSON log file at path to out, one formatted line per entry,
// until ctx is canceled or, without opts.Follow, the end of the file is reached.
func Follow(ctx context.Context, path string, out io.Writer, opts FollowOptions) error {
	cfg := tail.Config{
		Follow:    opts.Follow,
		ReOpen:    opts.Follow,
		MustExist: !opts.Follow,
		Logger:    tail.DiscardingLogger,
	}
	if !opts.FromStart {
		cfg.Location = &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	}

	t, err := tail.TailFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	defer t.Cleanup()
	defer func() { _ = t.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return nil
			}
			if line.Err != nil {
				return fmt.Errorf("failed reading log file: %w", line.Err)
			}
			if _, err := fmt.Fprintln(out, FormatEntry(line.Text)); err != nil {
				return err
			}
		}
	}
}

// FormatEntry renders one JSON log entry as "ts LEVEL logger: msg k=v ...".
// Lines that are not JSON objects are returned unchanged.
func FormatEntry(raw string) string {
	var entry map[string]interface{}
	if err := jsoniter.ConfigFastest.UnmarshalFromString(raw, &entry); err != nil {
		return raw
	}

	pop := func(key string) string {
		v, ok := entry[key]
		if !ok {
			return ""
		}
		delete(entry, key)
		return fmt.Sprint(v)
	}

	var b strings.Builder
	if ts := pop("ts"); ts != "" {
		b.WriteString(ts)
		b.WriteByte(' ')
	}
	b.WriteString(strings.ToUpper(pop("level")))
	if name := pop("logger"); name != "" {
		b.WriteString(" " + name + ":")
	}
	b.WriteString(" " + pop("msg"))
	delete(entry, "stacktrace")

	keys := make([]string, 0, len(entry))
	for k := range entry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry[k])
	}
	return b.String()
}
