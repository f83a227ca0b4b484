package logx

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Debug        bool   `split_words:"true" default:"false"`
	PrettyFormat bool   `split_words:"true" default:"false"`
	File         string `split_words:"true"`
	MaxSizeMB    int    `envconfig:"MAX_SIZE_MB" default:"10"`
	MaxBackups   int    `split_words:"true" default:"3"`
	MaxAgeDays   int    `split_words:"true" default:"28"`

	// Stderr routes console output to stderr. The worker process needs this
	// because its stdout carries JSON-RPC frames.
	Stderr bool `ignored:"true"`
}

var DefaultConfig = &Config{
	Debug:        false,
	PrettyFormat: false,
}

func safe(opts ...Config) *Config {
	if len(opts) == 0 {
		return DefaultConfig
	}
	return &opts[0]
}

// Init replaces the global zerolog logger. The returned closer flushes the
// rotating file sink, if one was configured.
func Init(opts ...Config) io.Closer {
	conf := safe(opts...)

	var console io.Writer = os.Stdout
	if conf.Stderr {
		console = os.Stderr
	}
	if conf.PrettyFormat {
		console = zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.Out = console
		})
	}

	out := console
	var closer io.Closer = nopCloser{}
	if conf.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   conf.File,
			MaxSize:    conf.MaxSizeMB,
			MaxBackups: conf.MaxBackups,
			MaxAge:     conf.MaxAgeDays,
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(console, rotating)
		closer = rotating
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()

	if conf.Debug {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	} else {
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}

	log.Logger = log.Logger.With().Caller().Stack().Logger()
	return closer
}

// Component returns the global logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
