// Package lglog configures lingle's zerolog output and provides the task printing helpers used by commands.
package lglog

import (
	"io"
	"os"

	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options control where and how log messages are written
type Options struct {
	Level   zerolog.Level
	File    string
	JSON    bool
	Verbose bool
}

// Setup replaces the global logger according to opts. The returned function closes the log file (if any).
func Setup(opts Options) (func() error, error) {
	closer := func() error { return nil }

	var out io.Writer
	if opts.JSON {
		zerolog.ErrorStackMarshaler = func(err error) interface{} {
			return eris.ToJSON(err, true)
		}
		out = os.Stderr
	} else {
		zerolog.ErrorStackMarshaler = func(err error) interface{} {
			return eris.ToString(err, true)
		}
		writer := NewConsoleWriter(os.Stderr)
		writer.NoColor = !isTerminal(os.Stderr)
		writer.Verbose = opts.Verbose
		out = writer
	}
	zerolog.ErrorMarshalFunc = func(err error) interface{} {
		return eris.ToString(err, opts.Verbose)
	}

	zerolog.SetGlobalLevel(opts.Level)
	if opts.File != "" {
		logFile, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return closer, eris.Wrapf(err, "Failed to open log file %s", opts.File)
		}
		closer = logFile.Close

		var fileOut io.Writer = logFile
		if !opts.JSON {
			writer := NewConsoleWriter(logFile)
			writer.NoColor = true
			fileOut = writer
		}

		out = zerolog.MultiLevelWriter(out, fileOut)
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	if opts.Verbose {
		log.Logger = log.Logger.With().Caller().Stack().Logger()
	}

	return closer, nil
}

func PrintTask(msg string) {
	colorstring.Fprintf(os.Stdout, "[blue][bold]==>[default] %s\n", msg)
}

func PrintSubtask(msg string) {
	colorstring.Fprintf(os.Stdout, "[green][bold]  ->[reset] %s\n", msg)
}

func PrintError(msg string) {
	colorstring.Fprintf(os.Stderr, "[red][bold]  ->[reset] %s\n", msg)
}
