// Package nlog is the core's structured logger: a per-process-prefixed,
// leveled, location-filtered writer, grounded on
// original_source/src/logging.c's LAIK_LOG/LAIK_LOG_FILE grammar and
// called the way the teacher's cmn/nlog is (nlog.Infof, nlog.Errorln,
// nlog.Infoln — see xact/xs/tcb.go).
package nlog

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Level orders log severities. Unlike the typical "lower is more severe"
// convention, laik-go keeps the original C library's scheme: a message
// shows when its Level is >= the configured threshold, so named
// severities sit above the numbered trace/debug levels a caller can pass
// to Log directly.
type Level int

const (
	LevelTrace   Level = 1
	LevelDebug   Level = 2
	LevelInfo    Level = 3
	LevelWarning Level = 90
	LevelError   Level = 95
	LevelPanic   Level = 100
)

// PrefixMode controls how much of the line prefix is emitted.
type PrefixMode int

const (
	PrefixNone  PrefixMode = 0
	PrefixShort PrefixMode = 1
	PrefixLong  PrefixMode = 2
)

// Logger is bundled per Instance, replacing the C library's global mutable
// logging state (§9 design note: "bundle into a per-instance logger
// value").
type Logger struct {
	mu sync.Mutex

	minLevel   Level
	prefixMode PrefixMode
	fromLID    int // -1 = no filter
	toLID      int
	locationID int
	initTime   time.Time
	out        io.Writer

	logctr    int
	lastCtr   int
	msgctr    int
}

// New builds a Logger with explicit settings (no environment parsing);
// useful when an Instance's location id is only known after World().
func New(locationID int, minLevel Level, prefixMode PrefixMode) *Logger {
	return &Logger{
		minLevel:   minLevel,
		prefixMode: prefixMode,
		fromLID:    -1,
		toLID:      -1,
		locationID: locationID,
		initTime:   time.Now(),
		out:        os.Stderr,
	}
}

// FromEnv builds a Logger from LAIK_LOG / LAIK_LOG_FILE, replaying
// original_source/src/logging.c's laik_log_init_internal() parsing.
//
// LAIK_LOG grammar: [n|s]<level>[:<fromLID>[-<toLID>]]
func FromEnv(locationID int) (*Logger, error) {
	l := New(locationID, LevelError, PrefixLong)

	str := os.Getenv("LAIK_LOG")
	if str != "" {
		rest := str
		switch {
		case strings.HasPrefix(rest, "n"):
			l.prefixMode = PrefixNone
			rest = rest[1:]
		case strings.HasPrefix(rest, "s"):
			l.prefixMode = PrefixShort
			rest = rest[1:]
		}

		levelPart := rest
		filterPart := ""
		if idx := strings.IndexByte(rest, ':'); idx >= 0 {
			levelPart = rest[:idx]
			filterPart = rest[idx+1:]
		}
		n, err := strconv.Atoi(levelPart)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid LAIK_LOG syntax %q: want [n|s]level[:fromLID[-toLID]]", str)
		}
		l.minLevel = Level(n)

		if filterPart != "" {
			from := filterPart
			to := filterPart
			if idx := strings.IndexByte(filterPart, '-'); idx >= 0 {
				from = filterPart[:idx]
				to = filterPart[idx+1:]
			}
			fromN, err1 := strconv.Atoi(from)
			toN, err2 := strconv.Atoi(to)
			if err1 != nil || err2 != nil {
				return nil, fmt.Errorf("invalid LAIK_LOG location filter %q", filterPart)
			}
			l.fromLID, l.toLID = fromN, toN
		}
	}

	if path := os.Getenv("LAIK_LOG_FILE"); path != "" {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("LAIK_LOG_FILE %q: %w", path, err)
		}
		l.out = f
	}

	return l, nil
}

// SetLocationID updates the location id once World() assigns one; the
// logger may be created before the process knows its rank.
func (l *Logger) SetLocationID(id int) {
	l.mu.Lock()
	l.locationID = id
	l.mu.Unlock()
}

// IncCounter bumps the logical iteration/phase counter used in the
// prefix, mirroring laik_log_inc(); callers bump it once per SwitchTo.
func (l *Logger) IncCounter() {
	l.mu.Lock()
	l.logctr++
	l.mu.Unlock()
}

// Shown reports whether a message at level lvl would be emitted, letting
// callers skip building expensive log arguments (laik_log_shown).
func (l *Logger) Shown(lvl Level) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.shownLocked(lvl)
}

func (l *Logger) shownLocked(lvl Level) bool {
	if lvl < l.minLevel {
		return false
	}
	if l.fromLID >= 0 {
		if l.locationID < l.fromLID || l.locationID > l.toLID {
			return false
		}
	}
	return true
}

// Log writes a formatted message at the given level if it passes the
// level/location filter.
func (l *Logger) Log(lvl Level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.shownLocked(lvl) {
		return
	}
	if l.lastCtr != l.logctr {
		l.msgctr = 0
		l.lastCtr = l.logctr
	}
	l.msgctr++

	msg := fmt.Sprintf(format, args...)
	prefix := l.prefixLocked(lvl)
	for _, line := range strings.Split(msg, "\n") {
		fmt.Fprintf(l.out, "%s%s\n", prefix, line)
		prefix = strings.Repeat(" ", len(prefix))
	}
}

func (l *Logger) prefixLocked(lvl Level) string {
	switch l.prefixMode {
	case PrefixNone:
		return ""
	case PrefixShort:
		return fmt.Sprintf("==L%02d| ", l.locationID)
	default:
		elapsed := time.Since(l.initTime).Seconds()
		name := severityName(lvl)
		if name == "" {
			return fmt.Sprintf("==%04d-L%02d %04d %8.3fs| ", l.logctr, l.locationID, l.msgctr, elapsed)
		}
		return fmt.Sprintf("==%04d-L%02d %04d %8.3fs %-7s| ", l.logctr, l.locationID, l.msgctr, elapsed, name)
	}
}

func severityName(lvl Level) string {
	switch lvl {
	case LevelWarning:
		return "Warning"
	case LevelError:
		return "ERROR"
	case LevelPanic:
		return "PANIC"
	default:
		return ""
	}
}

func (l *Logger) Infof(format string, args ...any)    { l.Log(LevelInfo, format, args...) }
func (l *Logger) Infoln(args ...any)                  { l.Log(LevelInfo, "%s", fmt.Sprintln(args...)[:len(fmt.Sprintln(args...))-1]) }
func (l *Logger) Warningf(format string, args ...any)  { l.Log(LevelWarning, format, args...) }
func (l *Logger) Errorf(format string, args ...any)    { l.Log(LevelError, format, args...) }
func (l *Logger) Errorln(args ...any) {
	s := fmt.Sprintln(args...)
	l.Log(LevelError, "%s", s[:len(s)-1])
}

// Panic logs at LevelPanic (the highest severity; the level threshold
// and the location filter still apply to the log line) and then panics, mirroring
// laik_log(LAIK_LL_Panic, ...) call sites that abort the process (§7:
// UpdateConflict is fatal and aborts after logging).
func (l *Logger) Panic(format string, args ...any) {
	l.Log(LevelPanic, format, args...)
	panic(fmt.Sprintf(format, args...))
}

// Close releases the backing file if LAIK_LOG_FILE redirected output.
func (l *Logger) Close() error {
	if c, ok := l.out.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ---- package-level default, a convenience shim only (§9 design note) ----

var (
	defMu sync.RWMutex
	def   = New(-1, LevelError, PrefixLong)
)

// SetDefault installs l as the package-level default logger.
func SetDefault(l *Logger) {
	defMu.Lock()
	def = l
	defMu.Unlock()
}

// Default returns the current package-level default logger.
func Default() *Logger {
	defMu.RLock()
	defer defMu.RUnlock()
	return def
}

func Infof(format string, args ...any)   { Default().Infof(format, args...) }
func Infoln(args ...any)                 { Default().Infoln(args...) }
func Warningf(format string, args ...any) { Default().Warningf(format, args...) }
func Errorf(format string, args ...any)  { Default().Errorf(format, args...) }
func Errorln(args ...any)                { Default().Errorln(args...) }
