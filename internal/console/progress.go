package console

import (
	"fmt"
	"io"

	"spotisync/internal/reconcile"

	"github.com/cheggaaa/pb/v3"
)

const barTemplate = `{{ string . "prefix" }} {{ bar . }} {{ counters . }} {{ percent . }} | ETA {{ rtime . "%s" }}`

type barProgress struct {
	bar *pb.ProgressBar
}

func (b *barProgress) Increment() { b.bar.Increment() }
func (b *barProgress) Finish()    { b.bar.Finish() }

type noProgress struct{}

func (noProgress) Increment() {}
func (noProgress) Finish()    {}

// NewProgress returns a ProgressFunc drawing a bar on w, or a no-op when
// enabled is false
func NewProgress(w io.Writer, enabled bool) reconcile.ProgressFunc {
	return func(total int, label string) reconcile.Progress {
		if !enabled {
			return noProgress{}
		}
		bar := pb.New(total)
		bar.SetWriter(w)
		bar.SetTemplateString(barTemplate)
		bar.Set("prefix", fmt.Sprintf("%-30s", truncate(label, 30)))
		bar.Start()
		return &barProgress{bar: bar}
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
