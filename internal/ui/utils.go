package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/forest-guardian/field-indices-cli/internal/indices"
)

// Colors for consistent UI
const (
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorReset  = "\033[0m"
)

var (
	input  = bufio.NewReader(os.Stdin)
	output io.Writer = os.Stdout
)

// PrintWarning displays a warning message with consistent formatting
func PrintWarning(message string) {
	fmt.Fprintf(output, "%s\nWarning:%s\n", ColorYellow, ColorReset)
	fmt.Fprintf(output, "%s%s%s\n", ColorYellow, message, ColorReset)
}

// PrintError displays an error message with consistent formatting
func PrintError(message string) {
	fmt.Fprintf(output, "\n%sError: %s%s\n", ColorRed, message, ColorReset)
}

// PrintSuccess displays a success message with consistent formatting
func PrintSuccess(message string) {
	fmt.Fprintf(output, "\n%s%s%s\n", ColorGreen, message, ColorReset)
}

// PrintInfo displays an info message with consistent formatting
func PrintInfo(message string) {
	fmt.Fprintf(output, "%s%s%s", ColorBlue, message, ColorReset)
}

// ReadString reads a line from stdin with trimming
func ReadString(prompt string) string {
	PrintInfo(prompt)
	line, _ := input.ReadString('\n')
	return strings.TrimSpace(line)
}

// ReadInt reads an integer from stdin with validation
func ReadInt(prompt string, min, max int) (int, error) {
	text := ReadString(prompt)
	value, err := strconv.Atoi(text)
	if err != nil {
		return 0, eris.Errorf("invalid number: %s", text)
	}
	if value < min || value > max {
		return 0, eris.Errorf("value must be between %d and %d", min, max)
	}
	return value, nil
}

// ReadIntDefault returns def when the answer is empty.
func ReadIntDefault(prompt string, def, min, max int) (int, error) {
	text := ReadString(fmt.Sprintf("%s[%d] ", prompt, def))
	if text == "" {
		return def, nil
	}
	value, err := strconv.Atoi(text)
	if err != nil {
		return 0, eris.Errorf("invalid number: %s", text)
	}
	if value < min || value > max {
		return 0, eris.Errorf("value must be between %d and %d", min, max)
	}
	return value, nil
}

// ReadYearRange reads the first and last year, defaulting to start and end.
func ReadYearRange(start, end int) (int, int, error) {
	first, err := ReadIntDefault("Enter the first year: ", start, 2015, 2100)
	if err != nil {
		return 0, 0, err
	}
	last, err := ReadIntDefault("Enter the last year: ", end, first, 2100)
	if err != nil {
		return 0, 0, err
	}
	return first, last, nil
}

// ReadIndexAndStat reads an index and a statistic name.
func ReadIndexAndStat() (indices.Index, indices.Stat, error) {
	idx, err := indices.ParseIndex(ReadString("Enter the index (ndvi, evi, ndwi): "))
	if err != nil {
		return "", "", err
	}
	stat, err := indices.ParseStat(ReadString("Enter the statistic (mean, max, min, amp): "))
	if err != nil {
		return "", "", err
	}
	return idx, stat, nil
}
