package yolo

import (
	"fmt"
	"strings"
	"time"

	"github.com/ironsheep/muret2yolo/internal/partition"
)

// Report summarizes a transcoding run.
type Report struct {
	RunID  string `json:"run_id"`
	Mode   Mode   `json:"mode"`
	Output string `json:"output"`
	// Images is the number of images in the package, Acquired those that
	// could be fetched and converted.
	Images   int            `json:"images"`
	Acquired int            `json:"acquired"`
	Samples  int            `json:"samples"`
	Objects  int            `json:"objects"`
	Splits   map[string]int `json:"splits"`
	Dropped  []Dropped      `json:"dropped,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
	Duration time.Duration  `json:"duration_ns"`
}

func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s (%v): %d/%d images, %d samples, %d objects\n",
		r.RunID, r.Mode, r.Acquired, r.Images, r.Samples, r.Objects)
	fmt.Fprintf(&b, "splits: train=%d validation=%d test=%d\n", r.Splits[partition.Train], r.Splits[partition.Validation], r.Splits[partition.Test])
	for _, d := range r.Dropped {
		name := d.URL
		if d.Sample != "" {
			name += " [" + d.Sample + "]"
		}
		fmt.Fprintf(&b, "dropped %s: %s\n", name, d.Reason)
	}
	return b.String()
}
