package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"dhgen/internal/comfy"
	"dhgen/internal/logging"
)

// progressRenderer shows monitor progress as one rewritten status line on a
// terminal and as sampled log records everywhere else.
type progressRenderer struct {
	out     io.Writer
	tty     bool
	logger  *slog.Logger
	sampler *logging.ProgressSampler

	mu    sync.Mutex
	width int
}

func newProgressRenderer(out io.Writer, logger *slog.Logger) *progressRenderer {
	return &progressRenderer{
		out:     out,
		tty:     isTerminal(out),
		logger:  logger,
		sampler: logging.NewProgressSampler(10),
	}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (r *progressRenderer) update(p comfy.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.tty {
		if !r.sampler.ShouldLog(p.Percent(), p.Node) {
			return
		}
		attrs := []logging.Attr{
			logging.String(logging.FieldJobID, p.JobID),
			logging.String("state", string(p.State)),
			logging.String("strategy", p.Strategy),
			logging.Duration("elapsed", p.Elapsed),
		}
		if p.Node != "" {
			attrs = append(attrs, logging.String("node", p.Node))
		}
		if pct := p.Percent(); pct >= 0 {
			attrs = append(attrs, logging.Float64("percent", pct))
		}
		r.logger.Info("job progress", logging.Args(attrs...)...)
		return
	}

	line := formatProgress(p)
	pad := ""
	if n := r.width - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	fmt.Fprintf(r.out, "\r%s%s", line, pad)
	r.width = len(line)
}

// finish terminates the status line so later output starts on a fresh line.
func (r *progressRenderer) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tty && r.width > 0 {
		fmt.Fprintln(r.out)
		r.width = 0
	}
}

func formatProgress(p comfy.Progress) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", shortJobID(p.JobID), p.State)
	if p.Node != "" {
		fmt.Fprintf(&b, " node %s", p.Node)
	}
	if pct := p.Percent(); pct >= 0 {
		fmt.Fprintf(&b, " %3.0f%%", pct)
	}
	if p.NodesDone > 0 {
		fmt.Fprintf(&b, " (%d nodes done)", p.NodesDone)
	}
	fmt.Fprintf(&b, " %s", p.Elapsed.Truncate(time.Second))
	if p.Strategy == "poll" {
		b.WriteString(" [polling]")
	}
	return b.String()
}

func shortJobID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
