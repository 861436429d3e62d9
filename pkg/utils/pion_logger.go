/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 */
package utils

import (
	"fmt"

	"github.com/pion/logging"
)

// PionLoggerFactory routes pion's scoped loggers into a utils.Logger.
// pion is chatty at debug, so its messages are capped one level below ours:
// pion Info is logged as Debug.
type PionLoggerFactory struct {
	logger *Logger
}

// NewPionLoggerFactory creates a factory backed by the default logger
func NewPionLoggerFactory() *PionLoggerFactory {
	return &PionLoggerFactory{logger: GetLogger()}
}

// NewPionLoggerFactoryWith creates a factory backed by l
func NewPionLoggerFactoryWith(l *Logger) *PionLoggerFactory {
	return &PionLoggerFactory{logger: l}
}

// NewLogger implements logging.LoggerFactory
func (f *PionLoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &pionLogger{logger: f.logger, scope: scope}
}

type pionLogger struct {
	logger *Logger
	scope  string
}

func (p *pionLogger) emit(level LogLevel, msg string) {
	p.logger.log(level, "[pion/%s] %s", p.scope, msg)
}

func (p *pionLogger) Trace(msg string) {}

func (p *pionLogger) Tracef(format string, args ...any) {}

func (p *pionLogger) Debug(msg string) { p.emit(LogLevelDebug, msg) }

func (p *pionLogger) Debugf(format string, args ...any) {
	if p.logger.Enabled(LogLevelDebug) {
		p.emit(LogLevelDebug, fmt.Sprintf(format, args...))
	}
}

func (p *pionLogger) Info(msg string) { p.emit(LogLevelDebug, msg) }

func (p *pionLogger) Infof(format string, args ...any) {
	if p.logger.Enabled(LogLevelDebug) {
		p.emit(LogLevelDebug, fmt.Sprintf(format, args...))
	}
}

func (p *pionLogger) Warn(msg string) { p.emit(LogLevelWarn, msg) }

func (p *pionLogger) Warnf(format string, args ...any) {
	p.emit(LogLevelWarn, fmt.Sprintf(format, args...))
}

func (p *pionLogger) Error(msg string) { p.emit(LogLevelError, msg) }

func (p *pionLogger) Errorf(format string, args ...any) {
	p.emit(LogLevelError, fmt.Sprintf(format, args...))
}
