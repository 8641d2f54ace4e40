package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Faint(true)
	keyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	blockerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// printJSON pretty-prints any value to stdout.
func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "marshal output:", err)
		return
	}
	fmt.Println(string(data))
}

// field prints one aligned key/value row.
func field(key string, value any) {
	fmt.Printf("  %s %v\n", keyStyle.Render(fmt.Sprintf("%-14s", key+":")), value)
}

func passMark(passed bool) string {
	if passed {
		return okStyle.Render("[OK]")
	}
	return failStyle.Render("[FAIL]")
}
