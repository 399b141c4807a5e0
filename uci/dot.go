package uci

import (
	"fmt"

	"github.com/awalterschulze/gographviz"
	"k8s.io/klog/v2"

	"github.com/quercus/mcts"
)

// dumpTree prints the first two plies of the search tree as a DOT digraph,
// a debugging aid outside the protocol proper.
func (d *driver[P]) dumpTree() {
	graph := gographviz.NewGraph()
	if err := graph.SetName("search"); err != nil {
		klog.Errorf("tree: %v", err)
		return
	}
	if err := graph.SetDir(true); err != nil {
		klog.Errorf("tree: %v", err)
		return
	}

	root := "root"
	_ = graph.AddNode("search", root, map[string]string{
		"label": fmt.Sprintf("%q", d.pos.FEN()),
		"shape": "box",
	})

	for i, info := range d.tree.RootChildInfo() {
		id := fmt.Sprintf("n%d", i)
		d.addDotNode(graph, root, id, info)

		for j, grand := range d.tree.ChildrenInfo(info.Ptr) {
			d.addDotNode(graph, id, fmt.Sprintf("%s_%d", id, j), grand)
		}
	}

	fmt.Fprintln(d.out, graph.String())
}

func (d *driver[P]) addDotNode(graph *gographviz.Graph, parent, id string, info mcts.ChildInfo) {
	label := fmt.Sprintf("%q", fmt.Sprintf("%s\nQ %.3f V %d %s",
		d.pos.MoveString(info.Move), info.Q, info.Visits, info.State))
	_ = graph.AddNode("search", id, map[string]string{"label": label})
	_ = graph.AddEdge(parent, id, true, nil)
}
