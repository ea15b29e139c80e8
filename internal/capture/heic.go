package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// HEICConverter turns HEIC/HEIF photos into PNG with an external tool.
// Output is cached by content hash so re-capturing the same photo is free.
type HEICConverter struct {
	Converter string // "heif-convert" | "magick" | "sips"
	CacheDir  string
	Runner    Runner
	Logger    *slog.Logger
}

// Convert returns the path of a PNG rendition of in. hashHex names the cache entry.
func (c *HEICConverter) Convert(ctx context.Context, in, hashHex string) (string, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runner := c.Runner
	if runner == nil {
		runner = ExecRunner{Logger: logger}
	}
	if err := os.MkdirAll(c.CacheDir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact cache: %w", err)
	}
	out := filepath.Join(c.CacheDir, hashHex+".png")
	if st, err := os.Stat(out); err == nil && st.Size() > 0 {
		logger.Debug("capture.heic.cache_hit", "path", in, "out", out)
		return out, nil
	}

	var args []string
	switch c.Converter {
	case "heif-convert", "magick":
		args = []string{in, out}
	case "sips":
		args = []string{"-s", "format", "png", in, "--out", out}
	default:
		return "", fmt.Errorf("HEIC not supported: set capture.heic_converter to one of: heif-convert | magick | sips")
	}
	if _, errb, err := runner.Run(ctx, c.Converter, args...); err != nil {
		return "", fmt.Errorf("%s convert failed: %w: %s", c.Converter, err, truncate(string(errb), 512))
	}
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("HEIC conversion produced no output: %w", err)
	}
	logger.Info("capture.heic.converted", "path", in, "out", out, "converter", c.Converter)
	return out, nil
}
