package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/pterm/pterm"

	"github.com/vinovest/chain"
)

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	successColor = color.New(color.FgGreen)
	infoColor    = color.New(color.FgCyan)
	faintColor   = color.New(color.Faint)
)

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	errorColor.Fprintln(os.Stderr, "✗ "+fmt.Sprintf(format, args...))
}

// PrintSuccess prints a success message.
func PrintSuccess(format string, args ...any) {
	successColor.Println("✓ " + fmt.Sprintf(format, args...))
}

// PrintInfo prints an informational message.
func PrintInfo(format string, args ...any) {
	infoColor.Println(fmt.Sprintf(format, args...))
}

// PrintTable renders t with a header row. NULLs are shown as NULL.
func PrintTable(t *chain.Table) {
	data := pterm.TableData{t.Schema().Names()}
	for _, row := range t.Rows() {
		cells := make([]string, row.Len())
		for i := range cells {
			cells[i] = formatValue(row.Value(i))
		}
		data = append(data, cells)
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(v)
	}
	return fmt.Sprint(v)
}

func printEvent(_ context.Context, ev chain.ExecutionEvent) {
	c := faintColor
	if ev.Kind == chain.EventError || ev.Kind == chain.EventCanceled {
		c = errorColor
	}
	line := fmt.Sprintf("[%s] %s", ev.Kind, ev.Token.Operation())
	if d := ev.Duration(); d > 0 {
		line += " " + d.String()
	}
	if ev.Err != nil {
		line += ": " + ev.Err.Error()
	}
	c.Fprintln(os.Stderr, line)
}
