package ctl

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"imgload/pkg/types"
)

// stateColors colour the state column; terminals without colour support get
// plain text.
var stateColors = map[string]string{
	"placeholder": "#6C7086",
	"thumbnail":   "#89B4FA",
	"loading":     "#F9E2AF",
	"loaded":      "#A6E3A1",
	"failed":      "#F38BA8",
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
)

func stateStyle(state string) lipgloss.Style {
	if c, ok := stateColors[state]; ok {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(c))
	}
	return lipgloss.NewStyle()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printState(cmd *cobra.Command, cfg *Config, st types.ImageState) error {
	if cfg.JSON {
		b, err := json.Marshal(st)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return err
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", st.ID, stateStyle(st.State).Render(st.State))
	return err
}

// printStatus renders a summary block followed by one row per image.
func printStatus(w io.Writer, st types.StatusResponse) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d/%d in flight, %d queued\n", headerStyle.Render("fetches:"), st.Inflight, st.MaxConcurrent, st.Queued)
	fmt.Fprintf(&b, "%s %d/%d entries (%s)\n", headerStyle.Render("cache:  "), st.CacheEntries, st.CacheCapacity, st.EvictionPolicy)
	fmt.Fprintf(&b, "%s %s of %s\n", headerStyle.Render("memory: "), humanBytes(st.MemoryEstimateBytes), humanBytes(st.MemoryThresholdBytes))
	fmt.Fprintf(&b, "%s %g (%s, %d commits)\n", headerStyle.Render("scale:  "), st.Scale, st.Source, st.ScaleCommits)
	if len(st.Images) == 0 {
		b.WriteString(mutedStyle.Render("no images registered"))
		b.WriteByte('\n')
		_, err := io.WriteString(w, b.String())
		return err
	}

	idW := len("ID")
	for _, img := range st.Images {
		if len(img.ID) > idW {
			idW = len(img.ID)
		}
	}
	col := func(width int) lipgloss.Style { return lipgloss.NewStyle().Width(width + 2) }
	b.WriteByte('\n')
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		col(idW).Inherit(headerStyle).Render("ID"),
		col(12).Inherit(headerStyle).Render("STATE"),
		col(8).Inherit(headerStyle).Render("PRIO"),
		col(8).Inherit(headerStyle).Render("VISIBLE"),
		headerStyle.Render("EST"),
	))
	b.WriteByte('\n')
	for _, img := range st.Images {
		visible := "no"
		if img.Visible {
			visible = "yes"
		}
		if img.Queued {
			visible += "*"
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			col(idW).Render(img.ID),
			col(12).Inherit(stateStyle(img.State)).Render(img.State),
			col(8).Render(img.Priority),
			col(8).Render(visible),
			humanBytes(img.EstBytes),
		))
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// humanBytes formats n with binary units.
func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
