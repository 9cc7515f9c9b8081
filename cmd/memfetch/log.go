//go:build linux

package main

import (
	"fmt"
	"os"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"memfetch/capture"
	"memfetch/process"
)

// newLogger returns the component logger. Standard output is reserved for
// the manifest when toStdout is set, so logrus is bound to stderr then.
func newLogger(pid process.ProcessID, toStdout, verbose bool) capture.Logger {
	tty := isatty.IsTerminal(os.Stderr.Fd())

	if toStdout {
		l := logrus.New()
		l.Out = os.Stderr
		l.Formatter = &logrus.TextFormatter{DisableColors: !tty}
		l.Level = logrus.InfoLevel
		if verbose {
			l.Level = logrus.DebugLevel
		}
		return l.WithField("pid", int(pid))
	}

	prefix := fmt.Sprintf("memfetch-%d", pid)
	if tty {
		prefix = coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, prefix)
	}
	return &levelLogger{Logger: logger.NewLogger(prefix), verbose: verbose}
}

// levelLogger drops debug lines unless verbose is set.
type levelLogger struct {
	*logger.Logger
	verbose bool
}

func (l *levelLogger) Debugln(args ...interface{}) {
	if l.verbose {
		l.Logger.Debugln(args...)
	}
}
