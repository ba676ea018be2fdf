// Package output formats rpmdoctor's console transcript: a run banner and
// one section per probe/repair pass.
package output

import (
	"fmt"
	"strings"
)

const bannerWidth = 60

// Banner prints a prominent section header.
func Banner(title string) {
	line := strings.Repeat("=", bannerWidth)
	fmt.Println()
	fmt.Println(line)
	fmt.Printf("  %s\n", title)
	fmt.Println(line)
	fmt.Println()
}

// Section prints a subsection divider, one per remediation pass.
func Section(title string) {
	fmt.Printf("--- %s ---\n", title)
}

// Field prints a labeled value.
func Field(label, value string) {
	fmt.Printf("%s: %s\n", label, value)
}

// Bullet prints a bulleted item with optional indentation.
func Bullet(indent int, format string, args ...any) {
	prefix := strings.Repeat("  ", indent)
	fmt.Printf("%s- %s\n", prefix, fmt.Sprintf(format, args...))
}

// Success prints a success message.
func Success(format string, args ...any) {
	fmt.Printf("[OK] %s\n", fmt.Sprintf(format, args...))
}

// Warn prints a warning message to stdout.
func Warn(format string, args ...any) {
	fmt.Printf("[WARN] %s\n", fmt.Sprintf(format, args...))
}

// Fail prints a failure message to stdout.
func Fail(format string, args ...any) {
	fmt.Printf("[FAIL] %s\n", fmt.Sprintf(format, args...))
}

// Complete prints a completion message.
func Complete(msg string) {
	fmt.Printf("=== %s ===\n", msg)
}

// FormatBytes returns a human-readable byte size, used when logging disk
// space probe results.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
