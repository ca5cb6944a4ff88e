// Package log provides logging for devserve.
//
// Messages are logged against an object, normally the path being
// served, which is prefixed to the message.
package log

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/aaronboult/rust-simulation-engine/lib/flags"
)

// Options contains options for controlling the logging
type Options struct {
	Level      string        // DEBUG|INFO|NOTICE|ERROR
	File       string        // Log everything to this file
	MaxSize    int           // Maximum size of the log file in MiB before it's rotated
	MaxBackups int           // Maximum number of old log files to retain
	MaxAge     time.Duration // Maximum duration to retain old log files
	Compress   bool          // Compress rotated log files using gzip
	UseJSONLog bool          // Log in JSON format
}

// DefaultOpt is the default values used for Options
func DefaultOpt() Options {
	return Options{
		Level: "INFO",
	}
}

// Opt is the options for the logger
var Opt = DefaultOpt()

// AddFlags adds the logging flags to the flagSet
func AddFlags(flagSet *pflag.FlagSet) {
	flags.StringVarP(flagSet, &Opt.Level, "log-level", "", Opt.Level, "Log level DEBUG|INFO|NOTICE|ERROR")
	flags.StringVarP(flagSet, &Opt.File, "log-file", "", Opt.File, "Log everything to this file")
	flags.IntVarP(flagSet, &Opt.MaxSize, "log-file-max-size", "", Opt.MaxSize, "Maximum size of the log file in MiB before it's rotated (0 for no rotation)")
	flags.IntVarP(flagSet, &Opt.MaxBackups, "log-file-max-backups", "", Opt.MaxBackups, "Maximum number of old log files to retain")
	flags.DurationVarP(flagSet, &Opt.MaxAge, "log-file-max-age", "", Opt.MaxAge, "Maximum duration to retain old log files")
	flags.BoolVarP(flagSet, &Opt.Compress, "log-file-compress", "", Opt.Compress, "If set, compress rotated log files using gzip")
	flags.BoolVarP(flagSet, &Opt.UseJSONLog, "use-json-log", "", Opt.UseJSONLog, "Use json log format")
}

// InitLogging starts the logging as per the command line flags
func InitLogging() {
	switch Opt.Level {
	case "DEBUG":
		logrus.SetLevel(logrus.DebugLevel)
	case "INFO":
		logrus.SetLevel(logrus.InfoLevel)
	case "NOTICE":
		// NOTICE sits between INFO and ERROR - logrus has no notice
		// level so warn stands in for it
		logrus.SetLevel(logrus.WarnLevel)
	case "ERROR":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		Fatalf(nil, "Unknown --log-level %q", Opt.Level)
	}

	if Opt.UseJSONLog {
		logrus.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006/01/02 15:04:05",
		})
	}

	if Opt.File != "" {
		var w io.Writer
		if Opt.MaxSize == 0 {
			// No log rotation - just open the file as normal
			f, err := os.OpenFile(Opt.File, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0640)
			if err != nil {
				Fatalf(nil, "Failed to open log file: %v", err)
			}
			w = f
		} else {
			w = &lumberjack.Logger{
				Filename:   Opt.File,
				MaxSize:    Opt.MaxSize, // MiB
				MaxBackups: Opt.MaxBackups,
				MaxAge:     int(Opt.MaxAge.Hours() / 24), // Days
				Compress:   Opt.Compress,
				LocalTime:  true,
			}
		}
		logrus.SetOutput(w)
	}
}

// prefix o onto the message if it is set
func render(o interface{}, format string, a []interface{}) string {
	msg := fmt.Sprintf(format, a...)
	if o != nil {
		msg = fmt.Sprintf("%v: %s", o, msg)
	}
	return msg
}

// Debugf writes debug level output for this o about what is happening
func Debugf(o interface{}, format string, a ...interface{}) {
	logrus.Debug(render(o, format, a))
}

// Infof writes info on what is happening for this o
func Infof(o interface{}, format string, a ...interface{}) {
	logrus.Info(render(o, format, a))
}

// Logf writes messages which should normally be seen, e.g. startup
// banners. These are logged at notice level so they show unless the
// log level is ERROR.
func Logf(o interface{}, format string, a ...interface{}) {
	logrus.Warn(render(o, format, a))
}

// Errorf writes error log output for this o
func Errorf(o interface{}, format string, a ...interface{}) {
	logrus.Error(render(o, format, a))
}

// Fatalf writes fatal log output for this o and exits
func Fatalf(o interface{}, format string, a ...interface{}) {
	logrus.Fatal(render(o, format, a))
}
