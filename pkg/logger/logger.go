// Package logger wraps logrus with the colored, leveled console output
// style the rest of this codebase logs through, plus the banner/section
// helpers used by cmd/netcored at startup.
package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// ANSI color codes.
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorWhite  = "\033[37m"
	ColorCyan   = "\033[36m"
	ColorGray   = "\033[90m"
)

// Log levels, kept as the original iota values so SetLevel callers don't
// need to change.
const (
	LevelDebug = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelSuccess
)

var base = logrus.New()

func init() {
	base.SetLevel(logrus.DebugLevel)
	base.SetFormatter(&consoleFormatter{timeFormat: "15:04:05", showTime: true})
}

// consoleFormatter renders one line per entry as
// "[time] [TAG] message", coloring the tag the way the original console
// logger did; logrus.Level alone can't express the SUCCESS/cyan-info
// distinction, so those are carried as the "tag"/"color" entry fields.
type consoleFormatter struct {
	timeFormat string
	showTime   bool
}

func (f *consoleFormatter) Format(e *logrus.Entry) ([]byte, error) {
	tag, _ := e.Data["tag"].(string)
	if tag == "" {
		tag = levelTag(e.Level)
	}
	color, _ := e.Data["color"].(string)
	if color == "" {
		color = levelColor(e.Level)
	}

	var out string
	if f.showTime {
		out += fmt.Sprintf("%s[%s]%s ", ColorGray, e.Time.Format(f.timeFormat), ColorReset)
	}
	out += fmt.Sprintf("%s[%s]%s %s\n", color, tag, ColorReset, e.Message)
	return []byte(out), nil
}

func levelTag(level logrus.Level) string {
	switch level {
	case logrus.DebugLevel:
		return "DEBUG"
	case logrus.WarnLevel:
		return "WARN"
	case logrus.ErrorLevel, logrus.FatalLevel:
		return "ERROR"
	default:
		return "INFO"
	}
}

func levelColor(level logrus.Level) string {
	switch level {
	case logrus.DebugLevel:
		return ColorGray
	case logrus.WarnLevel:
		return ColorYellow
	case logrus.ErrorLevel, logrus.FatalLevel:
		return ColorRed
	default:
		return ColorWhite
	}
}

// SetLevel sets the minimum log level.
func SetLevel(level int) {
	switch level {
	case LevelDebug:
		base.SetLevel(logrus.DebugLevel)
	case LevelWarn:
		base.SetLevel(logrus.WarnLevel)
	case LevelError:
		base.SetLevel(logrus.ErrorLevel)
	default:
		base.SetLevel(logrus.InfoLevel)
	}
}

// SetTimeFormat sets the time format for logs.
func SetTimeFormat(format string) {
	if f, ok := base.Formatter.(*consoleFormatter); ok {
		f.timeFormat = format
	}
}

// ShowTime enables or disables the timestamp prefix.
func ShowTime(show bool) {
	if f, ok := base.Formatter.(*consoleFormatter); ok {
		f.showTime = show
	}
}

// SetOutput redirects where log lines are written; os.Stdout by default.
func SetOutput(w io.Writer) { base.SetOutput(w) }

func Debug(format string, args ...interface{}) { base.Debugf(format, args...) }
func Info(format string, args ...interface{})  { base.Infof(format, args...) }
func Warn(format string, args ...interface{})  { base.Warnf(format, args...) }
func Error(format string, args ...interface{}) { base.Errorf(format, args...) }

// Success logs an informational message tagged and colored as a success.
func Success(format string, args ...interface{}) {
	base.WithField("tag", "SUCCESS").WithField("color", ColorGreen).Infof(format, args...)
}

// InfoCyan logs an informational message in cyan, for highlighting.
func InfoCyan(format string, args ...interface{}) {
	base.WithField("color", ColorCyan).Infof(format, args...)
}

// Fatal logs a fatal error and exits the process.
func Fatal(format string, args ...interface{}) {
	base.Fatalf(format, args...)
}

// Section prints a section header directly to stdout, outside the
// logrus formatter (it isn't a log line, just a banner).
func Section(title string) {
	border := "═══════════════════════════════════════════════════════════"
	fmt.Fprintf(os.Stdout, "\n%s╔%s╗%s\n", ColorCyan, border, ColorReset)
	fmt.Fprintf(os.Stdout, "%s║%s %-57s %s║%s\n", ColorCyan, ColorReset, title, ColorCyan, ColorReset)
	fmt.Fprintf(os.Stdout, "%s╚%s╝%s\n\n", ColorCyan, border, ColorReset)
}

// Banner prints the application banner.
func Banner(title, version string) {
	banner := `
╔═══════════════════════════════════════════════════════════╗
║                                                           ║
║   ███╗   ██╗███████╗████████╗ ██████╗ ██████╗ ██████╗ ███████╗ ║
║   ████╗  ██║██╔════╝╚══██╔══╝██╔════╝██╔═══██╗██╔══██╗██╔════╝ ║
║   ██╔██╗ ██║█████╗     ██║   ██║     ██║   ██║██████╔╝█████╗   ║
║   ██║╚██╗██║██╔══╝     ██║   ██║     ██║   ██║██╔══██╗██╔══╝   ║
║   ██║ ╚████║███████╗   ██║   ╚██████╗╚██████╔╝██║  ██║███████╗ ║
║   ╚═╝  ╚═══╝╚══════╝   ╚═╝    ╚═════╝ ╚═════╝ ╚═╝  ╚═╝╚══════╝ ║
║                                                           ║
║              %s%-37s%s║
║                    %sVersion %-7s%s                      ║
║                                                           ║
╚═══════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, ColorCyan, title, ColorReset, ColorGreen, version, ColorReset)
}
