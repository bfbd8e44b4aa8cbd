package api

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
)

var byteUnits = []string{
	"bytes",
	"KiB",
	"MiB",
	"GiB",
}

type LingleCtxParams struct {
	// Logger receives all log messages of operations running with this context
	Logger *zerolog.Logger
	Paths  Paths
	// AssumeYes skips interactive confirmations
	AssumeYes bool
	// Quiet hides progress bars
	Quiet bool
}

type TaskStep struct {
	Description string
	From        float32
	To          float32
}

type (
	lingleKey struct{}
)

// FormatBytes returns the passed bytes as a human readable string
func FormatBytes(bytes float64) string {
	size := 0
	for size < len(byteUnits)-1 {
		if bytes < 1024 {
			break
		}

		bytes /= 1024
		size++
	}

	return fmt.Sprintf("%.2f %s", bytes, byteUnits[size])
}

// WithLingleContext stores the passed parameters in the context which allows it to be used with Log() and PathsFrom()
func WithLingleContext(ctx context.Context, params LingleCtxParams) context.Context {
	return context.WithValue(ctx, lingleKey{}, params)
}

func params(ctx context.Context) (LingleCtxParams, bool) {
	p, ok := ctx.Value(lingleKey{}).(LingleCtxParams)
	return p, ok
}

// Log returns the logger attached to ctx or the global logger if there is none
func Log(ctx context.Context) *zerolog.Logger {
	p, ok := params(ctx)
	if !ok || p.Logger == nil {
		return &log.Logger
	}

	return p.Logger
}

// WithTask returns a context whose logger tags every message with the given task name
func WithTask(ctx context.Context, task string) context.Context {
	p, ok := params(ctx)
	if !ok {
		p = LingleCtxParams{}
	}

	logger := Log(ctx).With().Str("task", task).Logger()
	p.Logger = &logger
	return WithLingleContext(ctx, p)
}

// PathsFrom returns the directory layout of the current user.
// The passed context must have been prepared with WithLingleContext().
func PathsFrom(ctx context.Context) Paths {
	p, ok := params(ctx)
	if !ok {
		panic("Invalid context provided. This is not a LingleContext")
	}

	return p.Paths
}

// AssumeYes reports whether confirmations should be skipped
func AssumeYes(ctx context.Context) bool {
	p, _ := params(ctx)
	return p.AssumeYes
}

// NewProgressBar returns a byte progress bar which stays invisible on CI or when quiet output was requested
func NewProgressBar(ctx context.Context, length int64, desc string) *progressbar.ProgressBar {
	p, _ := params(ctx)
	if p.Quiet || os.Getenv("CI") == "true" {
		return progressbar.NewOptions64(length, progressbar.OptionSetVisibility(false))
	}

	return progressbar.DefaultBytes(length, desc)
}

// NewStepBar returns a progress bar counting install steps. It follows the same visibility rules as NewProgressBar.
func NewStepBar(ctx context.Context, steps int, desc string) *progressbar.ProgressBar {
	p, _ := params(ctx)
	if p.Quiet || os.Getenv("CI") == "true" {
		return progressbar.NewOptions(steps, progressbar.OptionSetVisibility(false))
	}

	return progressbar.NewOptions(steps,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
	)
}

// ProgressCopier copies all available data from input to output while reporting the current progress and speed
// through a progress bar. It returns the speed in bytes / s on success or an error.
func ProgressCopier(ctx context.Context, stepInfo TaskStep, length int64, input io.Reader, output io.Writer) (int, error) {
	pos := 0
	lastPos := 0
	buffer := make([]byte, 32*1024)
	lastUpdate := time.Now()
	interval := time.Millisecond * 300
	tracker := NewSpeedTracker()
	start := time.Now()
	bar := NewProgressBar(ctx, length, stepInfo.Description)

	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		read, err := input.Read(buffer)
		if read > 0 {
			_, wErr := output.Write(buffer[:read])
			if wErr != nil {
				return 0, eris.Wrap(wErr, "failed to write")
			}

			pos += read
			_ = bar.Add(read)
		}

		if err != nil {
			if err == io.EOF {
				_ = bar.Finish()
				passedSecs := int(time.Since(start).Seconds())
				if passedSecs == 0 {
					return pos, nil
				}
				return pos / passedSecs, nil
			}
			return 0, eris.Wrap(err, "failed to read")
		}

		if time.Since(lastUpdate) > interval {
			lastUpdate = time.Now()

			tracker.Track(pos - lastPos)
			lastPos = pos

			bar.Describe(fmt.Sprintf("%s %s/s", stepInfo.Description, FormatBytes(tracker.GetSpeed())))
		}
	}
}
