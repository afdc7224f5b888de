// Package tui renders profile data for the terminal.
// Plain streaming output: styled text and progress bars, no full-screen UI.
package tui

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/routelens/routelens/pkg/store"
	"github.com/routelens/routelens/pkg/usage"
)

// Colors
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
)

// LoadProgress returns a store progress callback that draws a bar on w.
// The bar is created on the first call, once the profile count is known.
// It is safe for concurrent use.
func LoadProgress(w io.Writer, description string) func(done, total int) {
	var (
		mu  sync.Mutex
		bar *progressbar.ProgressBar
	)
	return func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		if bar == nil {
			bar = newBar(w, total, description)
		}
		_ = bar.Set(done)
		if done >= total {
			_ = bar.Finish()
		}
	}
}

func newBar(w io.Writer, total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// PrintSnapshot prints the loaded profiles and any load errors.
func PrintSnapshot(w io.Writer, snap *store.Snapshot) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s\n",
		titleStyle.Render("PROFILES"),
		mutedStyle.Render(fmt.Sprintf("(%d found, loaded in %s)", len(snap.Names), formatDuration(snap.Duration))))
	fmt.Fprintln(w)

	for _, name := range snap.Names {
		p, err := snap.Profile(name)
		switch {
		case err != nil:
			fmt.Fprintf(w, "  %s %s %s\n", accentStyle.Render("✗"), name, mutedStyle.Render(snap.Errors.BaseLogs[name]))
		case !p.HasBaseLog():
			fmt.Fprintf(w, "  %s %s %s\n", mutedStyle.Render("·"), name, mutedStyle.Render("no base log"))
		default:
			fmt.Fprintf(w, "  %s %s %s\n", successStyle.Render("✓"), name,
				mutedStyle.Render(fmt.Sprintf("%s events, %d goods, %d areas",
					formatNumber(int64(len(p.Events))), p.Stock.Goods.Len(), p.Stock.Areas.Len())))
		}
	}
	if snap.Errors.Profiles != "" {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  %s %s\n", accentStyle.Render("discovery failed:"), snap.Errors.Profiles)
	}
	fmt.Fprintln(w)
}

// PrintCounts prints per-kind event counts, largest first.
func PrintCounts(w io.Writer, counts map[string]int) {
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool {
		if counts[kinds[i]] != counts[kinds[j]] {
			return counts[kinds[i]] > counts[kinds[j]]
		}
		return kinds[i] < kinds[j]
	})
	for _, k := range kinds {
		fmt.Fprintf(w, "  %-18s %s\n", mutedStyle.Render(k), titleStyle.Render(formatNumber(int64(counts[k]))))
	}
}

// PrintUsage prints summary statistics of both trade modes.
func PrintUsage(w io.Writer, s usage.Series) {
	for _, mode := range []struct {
		name    string
		entries []usage.Entry
	}{{"regular", s.Regular}, {"hub", s.Hub}} {
		st := usage.Summarize(mode.entries)
		fmt.Fprintf(w, "  %-8s %s\n", titleStyle.Render(mode.name),
			mutedStyle.Render(fmt.Sprintf("%d iterations, %.1f ships available, %.1f tasks spawned on average",
				st.Count, st.AvgShips, st.AvgTasks)))
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

func pad(s string, width int) string {
	if n := lipgloss.Width(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
