package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Theme colors.
var (
	colorPrimary = lipgloss.Color("#7C3AED")
	colorMuted   = lipgloss.Color("#6C7086")
	colorGood    = lipgloss.Color("#A6E3A1")
	colorFair    = lipgloss.Color("#F9E2AF")
	colorPoor    = lipgloss.Color("#F38BA8")
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// recallColor grades a recall value.
func recallColor(r float64) lipgloss.Color {
	switch {
	case r >= 0.9:
		return colorGood
	case r >= 0.7:
		return colorFair
	default:
		return colorPoor
	}
}

// renderBench formats benchmark results as a styled table.
func renderBench(p benchParams, results []benchResult) string {
	rows := make([][]string, len(results))
	for i, r := range results {
		rows[i] = []string{
			r.Index,
			strconv.Itoa(r.Vectors),
			fmt.Sprintf("%.3f", r.Recall),
			formatDuration(r.Latency),
			formatDuration(r.Build),
			indexDetail(r),
		}
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorMuted)).
		Headers("INDEX", "VECTORS", fmt.Sprintf("RECALL@%d", p.K), "LATENCY", "BUILD", "DETAIL").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 2 && row >= 0 && row < len(results) {
				return cellStyle.Foreground(recallColor(results[row].Recall))
			}
			return cellStyle
		})

	title := titleStyle.Render("vecdb bench")
	sub := mutedStyle.Render(fmt.Sprintf("n=%d dim=%d k=%d queries=%d clusters=%d seed=%d",
		p.N, p.Dim, p.K, p.Queries, p.Clusters, p.Seed))

	return lipgloss.JoinVertical(lipgloss.Left, title, sub, t.Render())
}

func indexDetail(r benchResult) string {
	switch {
	case r.Stats.Buckets > 0:
		return fmt.Sprintf("%d buckets", r.Stats.Buckets)
	case r.Stats.Centroids > 0:
		return fmt.Sprintf("%d centroids, %d unassigned", r.Stats.Centroids, r.Stats.Unassigned)
	default:
		return "-"
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%.1fµs", float64(d)/float64(time.Microsecond))
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}
