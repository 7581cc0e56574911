package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

const defaultTimestampFormat = "2006-01-02 15:04:05.000"

// Config selects the level, format and destination of the repository logger
type Config struct {
	Level           string `json:"level" yaml:"level" env:"LEVEL"`
	Format          string `json:"format" yaml:"format" env:"FORMAT"` // text or json
	Output          string `json:"output" yaml:"output" env:"OUTPUT"` // stdout, stderr or discard
	ReportCaller    bool   `json:"report_caller" yaml:"report_caller" env:"REPORT_CALLER"`
	TimestampFormat string `json:"timestamp_format" yaml:"timestamp_format" env:"TIMESTAMP_FORMAT"`
}

// DefaultConfig logs text at info level to stderr
func DefaultConfig() Config {
	return Config{
		Level:           "info",
		Format:          "text",
		Output:          "stderr",
		TimestampFormat: defaultTimestampFormat,
	}
}

// Validate checks level, format and output names
func (c Config) Validate() error {
	if _, err := logrus.ParseLevel(levelOrDefault(c.Level)); err != nil {
		return fmt.Errorf("invalid log level %q", c.Level)
	}
	switch strings.ToLower(strings.TrimSpace(c.Format)) {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.Format)
	}
	if _, err := writer(c.Output); err != nil {
		return err
	}
	return nil
}

// New builds a logrus logger from cfg
func New(cfg Config) (*logrus.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, _ := logrus.ParseLevel(levelOrDefault(cfg.Level))
	out, _ := writer(cfg.Output)

	tsFormat := cfg.TimestampFormat
	if tsFormat == "" {
		tsFormat = defaultTimestampFormat
	}

	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(level)
	l.SetReportCaller(cfg.ReportCaller)
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "json") {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: tsFormat})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: tsFormat})
	}
	return l, nil
}

func levelOrDefault(level string) string {
	if strings.TrimSpace(level) == "" {
		return "info"
	}
	return strings.ToLower(strings.TrimSpace(level))
}

func writer(name string) (io.Writer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	case "discard", "none":
		return io.Discard, nil
	default:
		return nil, fmt.Errorf("invalid log output %q", name)
	}
}
