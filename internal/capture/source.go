package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/joseph-ayodele/citizen-docs/constants"
	"github.com/joseph-ayodele/citizen-docs/internal/common"
)

// Source is where an image comes from.
type Source string

const (
	SourceCamera  Source = "camera"
	SourceLibrary Source = "library"
)

// ParseSource accepts "camera"/"cam" and "library"/"gallery"/"file".
func ParseSource(s string) (Source, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "camera", "cam":
		return SourceCamera, true
	case "library", "gallery", "file", "":
		return SourceLibrary, true
	}
	return "", false
}

// Picker lets the user choose an image for a side. ok=false with a nil
// error means the user backed out.
type Picker interface {
	Pick(ctx context.Context, side constants.Side) (path string, ok bool, err error)
}

// PermissionChecker asks for access to a source before anything is read.
type PermissionChecker interface {
	Request(ctx context.Context, source Source) error
}

// PathPermissions grants access when the source location can be read.
type PathPermissions struct {
	CameraDir string
}

func (p PathPermissions) Request(_ context.Context, source Source) error {
	if source != SourceCamera {
		return nil
	}
	f, err := os.Open(p.CameraDir)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return common.NewKindError(common.CodePermissionDenied, common.ErrPermissionDenied,
				fmt.Sprintf("no access to camera folder %s", p.CameraDir), err)
		}
		return fmt.Errorf("open camera folder: %w", err)
	}
	return f.Close()
}

// Prompter reads one line of user input.
type Prompter interface {
	Prompt(ctx context.Context, message string) (string, error)
}

// LinePrompter prompts on Out and reads lines from In.
type LinePrompter struct {
	In  *bufio.Reader
	Out io.Writer
}

func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{In: bufio.NewReader(in), Out: out}
}

// Prompt returns io.EOF when input is closed.
func (p *LinePrompter) Prompt(ctx context.Context, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := fmt.Fprint(p.Out, message); err != nil {
		return "", err
	}
	line, err := p.In.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// LibraryPicker asks the user for a file path. An empty answer cancels.
type LibraryPicker struct {
	Prompter Prompter
}

func (l LibraryPicker) Pick(ctx context.Context, side constants.Side) (string, bool, error) {
	answer, err := l.Prompter.Prompt(ctx, fmt.Sprintf("Path to the %s image (empty to cancel): ", side))
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if answer == "" {
		return "", false, nil
	}
	return expandHome(answer), true, nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// CameraPicker waits for the capture device to drop a new image into Dir.
// A file counts once no event has touched it for Settle. Cancelling ctx or
// exceeding Timeout is a user cancel.
type CameraPicker struct {
	Dir     string
	Settle  time.Duration
	Timeout time.Duration
	Logger  *slog.Logger
	// OnReady, when set, runs once the watch is in place.
	OnReady func()
}

func (c *CameraPicker) Pick(ctx context.Context, side constants.Side) (string, bool, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	settle := c.Settle
	if settle <= 0 {
		settle = 300 * time.Millisecond
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return "", false, fmt.Errorf("camera watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(c.Dir); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return "", false, common.NewKindError(common.CodePermissionDenied, common.ErrPermissionDenied,
				fmt.Sprintf("no access to camera folder %s", c.Dir), err)
		}
		return "", false, fmt.Errorf("watch %s: %w", c.Dir, err)
	}
	if c.OnReady != nil {
		c.OnReady()
	}
	logger.Info("capture.camera.waiting", "dir", c.Dir, "side", side)

	var pending string
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("capture.camera.cancelled", "side", side)
			return "", false, nil
		case err, ok := <-w.Errors:
			if !ok {
				return "", false, nil
			}
			logger.Warn("capture.camera.watch_error", "error", err)
		case ev, ok := <-w.Events:
			if !ok {
				return "", false, nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !acceptable(ev.Name) {
				continue
			}
			pending = ev.Name
			timer.Reset(settle)
		case <-timer.C:
			if pending != "" {
				return pending, true, nil
			}
		}
	}
}

func acceptable(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return constants.IsAllowedExt(filepath.Ext(base))
}
