package display

import (
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Progress is a live progress bar shared by all workers of one dataset.
// The underlying bar is internally synchronized. A nil *Progress is a
// valid no-op.
type Progress struct {
	bar *progressbar.ProgressBar
}

// NewProgress returns a bar counting total files, written to w.
func NewProgress(w io.Writer, total int, description string) *Progress {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	return &Progress{bar: bar}
}

// Add advances the bar by n processed files.
func (p *Progress) Add(n int) {
	if p == nil {
		return
	}
	_ = p.bar.Add(n)
}

// Finish completes and clears the bar.
func (p *Progress) Finish() {
	if p == nil {
		return
	}
	_ = p.bar.Finish()
}
