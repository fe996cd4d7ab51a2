// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package logging provides leveled console logging backed by pterm.
package logging

import (
	"fmt"
	"io"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

// EnableDebug configures the logger to show debug messages
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// Disable silences all log output (used while a TUI owns the terminal)
func Disable() {
	pterm.DefaultLogger.Level = pterm.LogLevelDisabled
}

// SetOutput redirects log output
func SetOutput(w io.Writer) {
	pterm.DefaultLogger.Writer = w
}

// Logger tags every line with the node it belongs to.
// The zero value logs untagged.
type Logger struct {
	node string
}

// New returns a logger tagged with node
func New(node string) Logger {
	return Logger{node: node}
}

// With returns a logger whose tag is extended with sub
func (l Logger) With(sub string) Logger {
	if l.node == "" {
		return Logger{node: sub}
	}
	return Logger{node: l.node + "/" + sub}
}

func (l Logger) args() [][]pterm.LoggerArgument {
	if l.node == "" {
		return nil
	}
	return [][]pterm.LoggerArgument{pterm.DefaultLogger.Args("node", l.node)}
}

// Debugf logs at debug level
func (l Logger) Debugf(format string, args ...interface{}) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...), l.args()...)
}

// Infof logs at info level
func (l Logger) Infof(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...), l.args()...)
}

// Warnf logs at warning level
func (l Logger) Warnf(format string, args ...interface{}) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...), l.args()...)
}

// Errorf logs at error level
func (l Logger) Errorf(format string, args ...interface{}) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...), l.args()...)
}

// Untagged helpers

func Debug(format string, args ...interface{}) { Logger{}.Debugf(format, args...) }
func Info(format string, args ...interface{})  { Logger{}.Infof(format, args...) }
func Warn(format string, args ...interface{})  { Logger{}.Warnf(format, args...) }
func Error(format string, args ...interface{}) { Logger{}.Errorf(format, args...) }
