package transcode

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"clipforge/internal/jobqueue"
	"clipforge/internal/logging"
)

var commandContext = exec.CommandContext

// Invoker runs a transform against a source file, producing destPath.
type Invoker interface {
	Run(ctx context.Context, kind jobqueue.Kind, sourcePath string, params Params, destPath string) error
}

// Option configures the ffmpeg invoker.
type Option func(*FFmpeg)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(f *FFmpeg) {
		if binary != "" {
			f.binary = binary
		}
	}
}

// WithTimeout sets the wall-clock ceiling for a single invocation.
func WithTimeout(timeout time.Duration) Option {
	return func(f *FFmpeg) {
		if timeout > 0 {
			f.timeout = timeout
		}
	}
}

// WithEncodeSettings sets the delivery encode parameters.
func WithEncodeSettings(preset string, crf int) Option {
	return func(f *FFmpeg) {
		if preset != "" {
			f.preset = preset
		}
		if crf >= 0 {
			f.crf = crf
		}
	}
}

// WithSubtitleStyle sets the drawtext font file and size.
func WithSubtitleStyle(fontPath string, fontSize int) Option {
	return func(f *FFmpeg) {
		f.fontPath = fontPath
		if fontSize > 0 {
			f.fontSize = fontSize
		}
	}
}

// FFmpeg invokes the ffmpeg command line.
type FFmpeg struct {
	binary   string
	timeout  time.Duration
	preset   string
	crf      int
	fontPath string
	fontSize int
	logger   *slog.Logger
}

// NewFFmpeg constructs an invoker with defaults matching the standard
// delivery encode.
func NewFFmpeg(logger *slog.Logger, opts ...Option) *FFmpeg {
	if logger == nil {
		logger = logging.NewNop()
	}
	invoker := &FFmpeg{
		binary:   "ffmpeg",
		timeout:  30 * time.Minute,
		preset:   "veryfast",
		crf:      23,
		fontSize: 24,
		logger:   logger.With(logging.String(logging.FieldComponent, "transcode")),
	}
	for _, opt := range opts {
		opt(invoker)
	}
	return invoker
}

// Run executes one transform synchronously. Failures come back as *Error
// so callers can decide between retry and permanent failure.
func (f *FFmpeg) Run(ctx context.Context, kind jobqueue.Kind, sourcePath string, params Params, destPath string) error {
	if sourcePath == "" {
		return &Error{Kind: ErrInvalidInvocation, Detail: "source path required"}
	}
	if destPath == "" {
		return &Error{Kind: ErrInvalidInvocation, Detail: "destination path required"}
	}

	args, buildErr := f.buildArgs(kind, sourcePath, params, destPath)
	if buildErr != nil {
		return buildErr
	}

	runCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	cmd := commandContext(runCtx, f.binary, args...) //nolint:gosec
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &Error{Kind: ErrSpawnFailure, Err: err}
	}

	started := time.Now()
	f.logger.Info("starting ffmpeg",
		logging.String(logging.FieldJobKind, string(kind)),
		logging.String("source", sourcePath),
		logging.String("dest", destPath),
	)
	if err := cmd.Start(); err != nil {
		return &Error{Kind: ErrSpawnFailure, Err: err}
	}

	tail := f.streamStderr(stderr)

	waitErr := cmd.Wait()
	if waitErr == nil {
		f.logger.Info("ffmpeg finished",
			logging.String(logging.FieldJobKind, string(kind)),
			logging.String("elapsed", time.Since(started).Round(time.Millisecond).String()),
		)
		return nil
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return &Error{Kind: ErrTimeout, Detail: fmt.Sprintf("killed after %s", f.timeout), Err: waitErr}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &Error{Kind: ErrExitNonZero, Detail: strings.Join(tail, " | "), Err: waitErr}
}

// streamStderr forwards each stderr line to the debug log and keeps the
// last few lines for error reporting.
func (f *FFmpeg) streamStderr(pipe interface{ Read([]byte) (int, error) }) []string {
	const tailSize = 5
	var tail []string
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 512*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		f.logger.Debug("ffmpeg", logging.String("line", line))
		tail = append(tail, line)
		if len(tail) > tailSize {
			tail = tail[1:]
		}
	}
	return tail
}

func (f *FFmpeg) buildArgs(kind jobqueue.Kind, sourcePath string, params Params, destPath string) ([]string, *Error) {
	common := []string{"-hide_banner", "-nostdin", "-y"}

	switch kind {
	case jobqueue.KindTrim:
		trim, ok := params.(TrimParams)
		if !ok {
			return nil, &Error{Kind: ErrInvalidInvocation, Detail: "trim job without trim params"}
		}
		args := append(common,
			"-ss", formatSeconds(trim.Start),
			"-i", sourcePath,
			"-t", formatSeconds(trim.End-trim.Start),
			destPath,
		)
		return args, nil

	case jobqueue.KindSubtitle:
		subtitle, ok := params.(SubtitleParams)
		if !ok {
			return nil, &Error{Kind: ErrInvalidInvocation, Detail: "subtitle job without subtitle params"}
		}
		args := append(common,
			"-i", sourcePath,
			"-vf", f.drawtextFilter(subtitle),
			"-c:v", "libx264",
			"-c:a", "aac",
			destPath,
		)
		return args, nil

	case jobqueue.KindRender:
		args := append(common,
			"-i", sourcePath,
			"-c:v", "libx264",
			"-preset", f.preset,
			"-crf", strconv.Itoa(f.crf),
			"-c:a", "aac",
			destPath,
		)
		return args, nil

	default:
		return nil, &Error{Kind: ErrInvalidInvocation, Detail: fmt.Sprintf("unknown transform kind %q", kind)}
	}
}

// drawtextFilter renders the overlay centered near the bottom edge,
// visible only inside the requested window.
func (f *FFmpeg) drawtextFilter(params SubtitleParams) string {
	var b strings.Builder
	b.WriteString("drawtext=")
	if f.fontPath != "" {
		b.WriteString("fontfile=")
		b.WriteString(f.fontPath)
		b.WriteString(":")
	}
	b.WriteString("text=")
	b.WriteString(sanitizeOverlayText(params.Text))
	b.WriteString(":fontcolor=white:fontsize=")
	b.WriteString(strconv.Itoa(f.fontSize))
	b.WriteString(":x=(w-text_w)/2:y=h-50:enable='between(t,")
	b.WriteString(formatSeconds(params.Start))
	b.WriteString(",")
	b.WriteString(formatSeconds(params.End))
	b.WriteString(")'")
	return b.String()
}

func formatSeconds(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

var _ Invoker = (*FFmpeg)(nil)
