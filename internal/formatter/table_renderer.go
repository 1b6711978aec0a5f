package formatter

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/hpc-analysis/internal/calltree"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	hotStyle     = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("1")).Bold(true)
	percentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// TableRenderer draws projections as terminal tables.
type TableRenderer struct {
	// MaxLabelWidth truncates the call path column. Zero keeps full labels.
	MaxLabelWidth int
	// HotThreshold highlights rows whose first ratio column reaches it.
	// Zero disables highlighting.
	HotThreshold float64
}

// NewTableRenderer creates a renderer with the default label width.
func NewTableRenderer() *TableRenderer {
	return &TableRenderer{MaxLabelWidth: 60}
}

// Render writes p to w. Call paths are indented by depth.
func (r *TableRenderer) Render(w io.Writer, p *calltree.Projection) error {
	headers := append([]string{"id", "call path"}, p.Columns...)
	ratioCol := -1
	for i, c := range p.Columns {
		if _, kind, ok := calltree.ParseRatioColumn(c); ok && kind == calltree.RatioOfTotal {
			ratioCol = i
			break
		}
	}

	rows := make([][]string, 0, len(p.Rows))
	hot := make(map[int]bool)
	for i, row := range p.Rows {
		label := strings.Repeat("  ", row.Node.Depth) + row.Node.Label()
		if r.MaxLabelWidth > 0 {
			label = truncateString(label, r.MaxLabelWidth)
		}
		cells := []string{fmt.Sprintf("%d", row.Node.ID), label}
		for j, v := range row.Values {
			cells = append(cells, FormatValue(p.Columns[j], v))
		}
		rows = append(rows, cells)

		if r.HotThreshold > 0 && ratioCol >= 0 && row.Values[ratioCol] != nil && *row.Values[ratioCol] >= r.HotThreshold {
			hot[i] = true
		}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case hot[row]:
				return hotStyle
			default:
				return cellStyle
			}
		})

	_, err := fmt.Fprintln(w, t.String())
	return err
}

// RenderHotPath writes the hot path of base as an indented chain.
func (r *TableRenderer) RenderHotPath(w io.Writer, hot *calltree.Table, base string) error {
	for _, n := range hot.Nodes() {
		ratio := n.Ratios[base]
		line := fmt.Sprintf("%s%s  %s of total, %s of parent",
			strings.Repeat("  ", n.Depth), n.Label(),
			percentStyle.Render(fmt.Sprintf("%.2f%%", ratio.OfTotal*100)),
			fmt.Sprintf("%.2f%%", ratio.OfParent*100))
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
