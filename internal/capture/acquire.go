package capture

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/joseph-ayodele/citizen-docs/constants"
	"github.com/joseph-ayodele/citizen-docs/internal/common"
	"github.com/joseph-ayodele/citizen-docs/internal/entity"
)

// DefaultMaxImageBytes caps a single captured image.
const DefaultMaxImageBytes = 20 << 20

// Acquirer obtains a local image for one document side.
type Acquirer struct {
	permissions PermissionChecker
	pickers     map[Source]Picker
	heic        *HEICConverter
	maxBytes    int64
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures an Acquirer.
type Option func(*Acquirer)

func WithPicker(source Source, p Picker) Option {
	return func(a *Acquirer) { a.pickers[source] = p }
}

func WithHEICConverter(c *HEICConverter) Option {
	return func(a *Acquirer) { a.heic = c }
}

func WithMaxBytes(n int64) Option {
	return func(a *Acquirer) {
		if n > 0 {
			a.maxBytes = n
		}
	}
}

func NewAcquirer(perms PermissionChecker, logger *slog.Logger, opts ...Option) *Acquirer {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Acquirer{
		permissions: perms,
		pickers:     map[Source]Picker{},
		maxBytes:    DefaultMaxImageBytes,
		now:         time.Now,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Acquire asks for permission, lets the user pick an image and checks that
// it decodes. ok=false with a nil error is a silent user cancel; a refused
// permission returns ErrPermissionDenied before the picker runs.
func (a *Acquirer) Acquire(ctx context.Context, side constants.Side, source Source) (entity.CapturedImage, bool, error) {
	if a.permissions != nil {
		if err := a.permissions.Request(ctx, source); err != nil {
			a.logger.Warn("capture.permission.denied", "source", source, "side", side, "error", err)
			return entity.CapturedImage{}, false, err
		}
	}
	picker, ok := a.pickers[source]
	if !ok {
		return entity.CapturedImage{}, false, fmt.Errorf("no picker configured for source %q", source)
	}

	path, ok, err := picker.Pick(ctx, side)
	if err != nil {
		return entity.CapturedImage{}, false, err
	}
	if !ok {
		a.logger.Info("capture.cancelled", "source", source, "side", side)
		return entity.CapturedImage{}, false, nil
	}

	img, err := a.inspect(ctx, side, path)
	if err != nil {
		return entity.CapturedImage{}, false, err
	}
	a.logger.Info("capture.acquired",
		"side", side, "source", source, "path", img.Path,
		"bytes", img.Size, "width", img.Width, "height", img.Height,
	)
	return img, true, nil
}

// Inspect validates a file already on disk and returns it as a CapturedImage.
func (a *Acquirer) Inspect(ctx context.Context, side constants.Side, path string) (entity.CapturedImage, error) {
	return a.inspect(ctx, side, path)
}

func (a *Acquirer) inspect(ctx context.Context, side constants.Side, path string) (entity.CapturedImage, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return entity.CapturedImage{}, fmt.Errorf("resolve %s: %w", path, err)
	}
	ext := constants.NormalizeExt(filepath.Ext(abs))
	if !constants.IsAllowedExt(ext) {
		return entity.CapturedImage{}, invalidImage(fmt.Sprintf("%s: unsupported image type %q", filepath.Base(abs), ext), nil)
	}
	st, err := os.Stat(abs)
	if err != nil {
		return entity.CapturedImage{}, accessError("stat", abs, err)
	}
	if st.IsDir() {
		return entity.CapturedImage{}, invalidImage(fmt.Sprintf("%s is a directory", abs), nil)
	}
	if st.Size() == 0 || st.Size() > a.maxBytes {
		return entity.CapturedImage{}, invalidImage(fmt.Sprintf("%s: size %d outside 1..%d bytes", filepath.Base(abs), st.Size(), a.maxBytes), nil)
	}

	sum, err := hashFile(abs)
	if err != nil {
		return entity.CapturedImage{}, err
	}
	hashHex := hex.EncodeToString(sum)

	uploadPath := abs
	if constants.IsHEICExt(ext) {
		if a.heic == nil {
			return entity.CapturedImage{}, invalidImage("HEIC photos need a converter (capture.heic_converter)", nil)
		}
		out, err := a.heic.Convert(ctx, abs, hashHex)
		if err != nil {
			return entity.CapturedImage{}, invalidImage(err.Error(), err)
		}
		uploadPath = out
	}

	w, h, err := imageBounds(uploadPath)
	if err != nil {
		return entity.CapturedImage{}, invalidImage(fmt.Sprintf("%s is not a readable image", filepath.Base(abs)), err)
	}
	upExt := filepath.Ext(uploadPath)
	upStat, err := os.Stat(uploadPath)
	if err != nil {
		return entity.CapturedImage{}, fmt.Errorf("stat %s: %w", uploadPath, err)
	}

	return entity.CapturedImage{
		Side:        side,
		Path:        uploadPath,
		Filename:    string(side) + upExt,
		FileExt:     constants.NormalizeExt(upExt),
		MimeType:    constants.MimeTypeForExt(upExt),
		Size:        upStat.Size(),
		Width:       w,
		Height:      h,
		ContentHash: sum,
		CapturedAt:  a.now(),
	}, nil
}

// accessError reports an unreadable picked file as a refused permission.
func accessError(op, path string, err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return common.NewKindError(common.CodePermissionDenied, common.ErrPermissionDenied,
			fmt.Sprintf("no access to %s", filepath.Base(path)), err)
	}
	return fmt.Errorf("%s %s: %w", op, path, err)
}

func invalidImage(msg string, cause error) error {
	if cause == nil {
		cause = common.ErrInvalidInput
	} else {
		cause = fmt.Errorf("%w: %w", common.ErrInvalidInput, cause)
	}
	return common.NewAppError(common.CodeValidation, msg, cause)
}

func imageBounds(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return 0, 0, fmt.Errorf("empty image")
	}
	return cfg.Width, cfg.Height, nil
}

func hashFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, accessError("open", path, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("hash %s: %w", path, err)
	}
	return h.Sum(nil), nil
}
