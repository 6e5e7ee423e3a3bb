package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"storefront/internal/service/order/application"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/port"
)

var (
	accent  = lipgloss.Color("#D97706")
	dim     = lipgloss.Color("#6B7280")
	success = lipgloss.Color("#22C55E")
	danger  = lipgloss.Color("#EF4444")
	warning = lipgloss.Color("#F59E0B")
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	dimStyle   = lipgloss.NewStyle().Foreground(dim)
	failStyle  = lipgloss.NewStyle().Foreground(danger)
	totalStyle = lipgloss.NewStyle().Bold(true)

	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(dim).
			Padding(0, 1).
			Width(18)

	stateColors = map[domain.State]lipgloss.Color{
		domain.StateOrdered:     warning,
		domain.StateProgressing: accent,
		domain.StateCollected:   success,
	}

	boardColumns = []domain.State{domain.StateOrdered, domain.StateProgressing, domain.StateCollected}
)

func stateStyle(s domain.State) lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(stateColors[s])
}

// RenderBoard 按状态分三列显示订单号，列内按订单号升序
func RenderBoard(version uint64, states map[int64]domain.State) string {
	byState := make(map[domain.State][]int64, len(boardColumns))
	for id, s := range states {
		byState[s] = append(byState[s], id)
	}

	columns := make([]string, len(boardColumns))
	for i, s := range boardColumns {
		ids := byState[s]
		sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

		var b strings.Builder
		b.WriteString(stateStyle(s).Render(s.String()))
		b.WriteString("\n")
		if len(ids) == 0 {
			b.WriteString(dimStyle.Render("-"))
		}
		for j, id := range ids {
			if j > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "#%d", id)
		}
		columns[i] = columnStyle.Render(b.String())
	}

	header := titleStyle.Render("Order board") + "  " + dimStyle.Render(fmt.Sprintf("v%d, %d orders", version, len(states)))
	return header + "\n" + lipgloss.JoinHorizontal(lipgloss.Top, columns...) + "\n"
}

// RenderReceipt 显示下单成功后的小票
func RenderReceipt(r *application.Receipt) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Order #%d", r.OrderID)))
	b.WriteString("  ")
	b.WriteString(dimStyle.Render(r.CreatedAt.Format("2006-01-02 15:04:05")))
	b.WriteString("\n")
	for _, l := range r.Lines {
		fmt.Fprintf(&b, "  %-24s %3d x %8s = %9s\n", l.Description, l.Quantity, l.UnitPrice, l.LineTotal)
	}
	b.WriteString(totalStyle.Render(fmt.Sprintf("  %-24s %26s", "Total", r.Total)))
	b.WriteString("\n")
	return b.String()
}

// RenderShortages 显示库存不足的商品
func RenderShortages(shortages []port.Shortage) string {
	var b strings.Builder
	b.WriteString(failStyle.Render("Insufficient stock"))
	b.WriteString("\n")
	for _, s := range shortages {
		fmt.Fprintf(&b, "  product %d: requested %d, available %d\n", s.ProductID, s.Requested, s.Available)
	}
	return b.String()
}
