package uci

import (
	"fmt"
	"sort"

	"github.com/muesli/termenv"
)

// displayMoves prints one line per root child after a search, the
// report_moves surface, most visited first. The most visited child is
// highlighted when stdout supports color.
func (d *driver[P]) displayMoves() {
	infos := d.tree.RootChildInfo()
	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].Visits > infos[j].Visits
	})

	term := termenv.NewOutput(d.out)
	for i, info := range infos {
		line := fmt.Sprintf("%s -> %.2f%% V(%d) P(%.2f%%) S(%s)",
			d.pos.MoveString(info.Move),
			info.Q*100.0,
			info.Visits,
			info.Policy*100.0,
			info.State)
		if i == 0 {
			line = term.String(line).Foreground(term.Color("10")).Bold().String()
		}
		fmt.Fprintln(d.out, line)
	}
}
