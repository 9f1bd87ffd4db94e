package yolo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/muret2yolo/internal/logging"
	"github.com/ironsheep/muret2yolo/internal/partition"
)

// writeOutputs writes the image and label file of every sample into its
// split folders. Writes run concurrently across and within splits.
func (t *Transcoder) writeOutputs(ctx context.Context, layout *Layout, parts partition.Result[*Sample]) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.opts.Workers)
	for _, split := range partition.Names() {
		samples := parts.Get(split)
		logging.Debugf("Writing %d samples to %s", len(samples), split)
		for _, s := range samples {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				return t.writeSample(layout, split, s)
			})
		}
	}
	return g.Wait()
}

func (t *Transcoder) writeSample(layout *Layout, split string, s *Sample) error {
	imagePath := filepath.Join(layout.Images[split], s.Name+"."+t.opts.Encoder.Extension())
	if err := t.opts.Encoder.Save(imagePath, s.Image); err != nil {
		return err
	}
	labelPath := filepath.Join(layout.Labels[split], s.Name+".txt")
	if err := os.WriteFile(labelPath, []byte(s.Labels()), 0o644); err != nil {
		return fmt.Errorf("failed to write labels %s: %w", labelPath, err)
	}
	return nil
}
