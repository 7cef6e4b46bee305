package utils

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"strconv"
	"strings"

	"alpatrade/pkg/logger"
)

// GoSafe runs the given function in a new goroutine and recovers from any panic.
func GoSafe(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[Panic Recovered] %v", r)
			}
		}()
		fn()
	}()
}

func ToPointer[T any](value T) *T {
	return &value
}

func ShouldContinue(ctx context.Context, log *logger.Logger) bool {
	select {
	case <-ctx.Done():
		pc, _, _, ok := runtime.Caller(1)
		funcName := "unknown"
		if ok {
			if fn := runtime.FuncForPC(pc); fn != nil {
				parts := strings.Split(fn.Name(), "/")
				funcName = parts[len(parts)-1]
			}
		}

		log.Warn("Context cancelled",
			logger.StringField("caller", funcName),
		)
		return false
	default:
		return true
	}
}

// ParseDurationSeconds parses duration strings like "1h", "30m", "7d", "300s"
// or a bare number of seconds.
func ParseDurationSeconds(s string) (int, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	unit := 1
	switch s[len(s)-1] {
	case 'd':
		unit = 86400
		s = s[:len(s)-1]
	case 'h':
		unit = 3600
		s = s[:len(s)-1]
	case 'm':
		unit = 60
		s = s[:len(s)-1]
	case 's':
		s = s[:len(s)-1]
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return n * unit, nil
}

func FormatPercentage(value float64) string {
	return fmt.Sprintf("%+.1f%%", value)
}
