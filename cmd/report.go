package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/KevinLaRosa/yorimichi-workers/internal/model"
)

// finishRun prints the run stats and turns an interrupt into a clean exit;
// the runner has already flushed its checkpoint by then.
func finishRun(w io.Writer, pass string, stats *model.Stats, err error) error {
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		zap.L().Info("run interrupted, checkpoint saved", zap.String("pass", pass))
	default:
		return eris.Wrapf(err, "%s run", pass)
	}
	if stats == nil {
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}
