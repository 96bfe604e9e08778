package database

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

type Logger interface {
	Print(v ...any)
	Printf(format string, v ...any)
	Println(v ...any)
}

type StdoutLogger struct{}

func (s StdoutLogger) Print(v ...any) {
	fmt.Print(v...)
}

func (s StdoutLogger) Printf(format string, v ...any) {
	fmt.Printf(format, v...)
}

func (s StdoutLogger) Println(v ...any) {
	fmt.Println(v...)
}

var (
	createdFmt = color.New(color.FgGreen, color.Bold).SprintFunc()
	skippedFmt = color.New(color.FgYellow).SprintFunc()
	failedFmt  = color.New(color.FgRed, color.Bold).SprintFunc()
)

// ColorLogger highlights routine status lines. color.NoColor decides whether
// escape sequences are written at all.
type ColorLogger struct{}

func (c ColorLogger) Print(v ...any) {
	fmt.Print(v...)
}

func (c ColorLogger) Printf(format string, v ...any) {
	fmt.Print(colorize(fmt.Sprintf(format, v...)))
}

func (c ColorLogger) Println(v ...any) {
	fmt.Println(colorize(strings.TrimSuffix(fmt.Sprintln(v...), "\n")))
}

func colorize(line string) string {
	switch {
	case strings.HasPrefix(line, "[CREATED]"):
		return createdFmt(line)
	case strings.HasPrefix(line, "[SKIPPED]"):
		return skippedFmt(line)
	case strings.HasPrefix(line, "[FAILED]"), strings.HasPrefix(line, "-- Failed"):
		return failedFmt(line)
	default:
		return line
	}
}

type NullLogger struct{}

func (n NullLogger) Print(v ...any)                 {}
func (n NullLogger) Printf(format string, v ...any) {}
func (n NullLogger) Println(v ...any)               {}

// BufferLogger keeps lines in memory. Used by tests and by callers that want
// the status lines back.
type BufferLogger struct {
	Lines []string
}

func (b *BufferLogger) Print(v ...any) {
	b.Lines = append(b.Lines, fmt.Sprint(v...))
}

func (b *BufferLogger) Printf(format string, v ...any) {
	b.Lines = append(b.Lines, strings.TrimSuffix(fmt.Sprintf(format, v...), "\n"))
}

func (b *BufferLogger) Println(v ...any) {
	b.Lines = append(b.Lines, strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}
