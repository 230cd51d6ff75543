package chat

import (
	"fmt"
	"strconv"
	"strings"
)

// Context length bounds accepted by the interactive surfaces.
const (
	MinContextLength = 512
	MaxContextLength = 8192

	MinTemperature = 0.0
	MaxTemperature = 2.0
)

// ParseTemperature parses a decimal temperature.
func ParseTemperature(s string) (float64, error) {
	t, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid temperature %q: %w", s, err)
	}
	return t, nil
}

// ParseContextLength parses an integer context length.
func ParseContextLength(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid context length %q: %w", s, err)
	}
	return n, nil
}

// ClampTemperature limits t to [MinTemperature, MaxTemperature].
func ClampTemperature(t float64) float64 {
	return min(max(t, MinTemperature), MaxTemperature)
}

// ClampContextLength limits n to [MinContextLength, MaxContextLength].
func ClampContextLength(n int) int {
	return min(max(n, MinContextLength), MaxContextLength)
}

// ValidContextLength reports whether n is within the accepted bounds.
func ValidContextLength(n int) bool {
	return n >= MinContextLength && n <= MaxContextLength
}
