// Package uci implements the UCI/UAI command surface that drives searches:
// one persistent tree, one search at a time, input buffered while searching.
package uci

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"k8s.io/klog/v2"

	"github.com/quercus/game"
	"github.com/quercus/mcts"
	"github.com/quercus/params"
)

const (
	defaultHashMB       = 64
	defaultMoveOverhead = 40 * time.Millisecond
	defaultMaxDepth     = 256
	benchDefaultNodes   = 16384
)

// Config wires one game variant into the dispatcher.
type Config[P game.Position[P]] struct {
	// Name and Author identify the engine.
	Name   string
	Author string
	// Proto is "uci" or "uai"; it chooses the Chess960 option name and the
	// confirmation token.
	Proto string
	// Start returns the variant's starting position.
	Start func() P
	// FromFEN parses the variant's FEN dialect.
	FromFEN func(fen string) (P, error)
	// Eval is the evaluator used for every search.
	Eval game.Evaluator[P]
	// BenchFENs are the positions of the bench command; Start's position
	// is used when empty.
	BenchFENs []string
}

type driver[P game.Position[P]] struct {
	cfg Config[P]
	out io.Writer

	params *params.Params
	tree   *mcts.Tree

	pos     P
	prev    P
	hasPrev bool

	threads      int
	moveOverhead time.Duration
	reportMoves  bool
	chess960     bool
}

// Run reads line-delimited commands from in until quit or end of input.
// A read error is returned; quit and EOF return nil.
func Run[P game.Position[P]](cfg Config[P], in io.Reader, out io.Writer) error {
	d := &driver[P]{
		cfg:          cfg,
		out:          out,
		params:       params.Defaults(),
		tree:         mcts.NewTreeMB(defaultHashMB),
		pos:          cfg.Start(),
		threads:      1,
		moveOverhead: defaultMoveOverhead,
	}

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 1<<20), 1<<20)
		for sc.Scan() {
			lines <- sc.Text()
		}
		readErr <- sc.Err()
		close(lines)
	}()

	var pending []string
	for {
		var line string
		if len(pending) > 0 {
			line, pending = pending[0], pending[1:]
		} else {
			var ok bool
			if line, ok = <-lines; !ok {
				return <-readErr
			}
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "uci", "uai":
			d.preamble(fields[0])
		case "isready":
			fmt.Fprintln(d.out, "readyok")
		case "setoption":
			d.setOption(fields)
		case "position":
			d.position(fields)
		case "go":
			var quit bool
			pending, quit = d.goCommand(fields, lines, pending)
			if quit {
				return nil
			}
		case "ucinewgame", "uainewgame":
			d.tree.Clear()
			d.hasPrev = false
		case "bench":
			d.bench(fields)
		case "tree":
			d.dumpTree()
		case "stop":
			// no search running
		case "quit":
			return nil
		default:
			klog.V(1).Infof("ignoring unknown command %q", fields[0])
		}
	}
}

func (d *driver[P]) preamble(proto string) {
	fmt.Fprintf(d.out, "id name %s\n", d.cfg.Name)
	fmt.Fprintf(d.out, "id author %s\n", d.cfg.Author)
	fmt.Fprintf(d.out, "option name Hash type spin default %d min 1 max 8192\n", defaultHashMB)
	fmt.Fprintln(d.out, "option name Threads type spin default 1 min 1 max 512")
	fmt.Fprintln(d.out, "option name MoveOverhead type spin default 40 min 0 max 5000")
	if proto == "uai" {
		fmt.Fprintln(d.out, "option name uai_Chess960 type check default false")
	} else {
		fmt.Fprintln(d.out, "option name UCI_Chess960 type check default false")
	}
	fmt.Fprintln(d.out, "option name report_moves type button")
	for _, spin := range d.params.Spins() {
		fmt.Fprintf(d.out, "option name %s type spin default %d min %d max %d\n",
			spin.Name, spin.Default, spin.Min, spin.Max)
	}
	fmt.Fprintf(d.out, "%sok\n", proto)
}

func (d *driver[P]) setOption(fields []string) {
	if len(fields) < 3 || fields[1] != "name" {
		klog.Warningf("malformed setoption: %v", fields)
		return
	}

	rest := fields[2:]
	valueAt := -1
	for i, f := range rest {
		if f == "value" {
			valueAt = i
			break
		}
	}

	var name, value string
	if valueAt < 0 {
		name = strings.Join(rest, " ")
	} else {
		name = strings.Join(rest[:valueAt], " ")
		value = strings.Join(rest[valueAt+1:], " ")
	}

	switch name {
	case "report_moves":
		d.reportMoves = !d.reportMoves
		return
	case "UCI_Chess960", "uai_Chess960":
		d.chess960 = strings.EqualFold(value, "true")
		return
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		klog.Warningf("setoption %s: bad value %q", name, value)
		return
	}

	switch name {
	case "Hash":
		if n < 1 {
			n = 1
		}
		d.tree = mcts.NewTreeMB(n)
		d.hasPrev = false
	case "Threads":
		d.threads = max(1, min(n, 512))
	case "MoveOverhead":
		d.moveOverhead = time.Duration(n) * time.Millisecond
	default:
		if err := d.params.SetSpin(name, n); err != nil {
			klog.Warningf("setoption: %v", err)
		}
	}
}

// position parses `position {startpos | fen <...>} [moves <m1> ...]`. A bad
// FEN or an illegal move keeps the previous position.
func (d *driver[P]) position(fields []string) {
	var fenParts, moveList []string
	inMoves := false

	for _, f := range fields[1:] {
		switch f {
		case "fen":
		case "startpos":
			fenParts = nil
		case "moves":
			inMoves = true
		default:
			if inMoves {
				moveList = append(moveList, f)
			} else {
				fenParts = append(fenParts, f)
			}
		}
	}

	pos := d.cfg.Start()
	if len(fenParts) > 0 {
		parsed, err := d.cfg.FromFEN(strings.Join(fenParts, " "))
		if err != nil {
			klog.Warningf("position: %v", err)
			return
		}
		pos = parsed
	}

	for _, text := range moveList {
		mv, err := pos.ParseMove(text)
		if err != nil {
			klog.Warningf("position: %v", err)
			return
		}
		pos.Make(mv)
	}

	d.pos = pos
}

// goCommand parses limits, runs the search on a background goroutine, and
// keeps serving stop/isready from the input stream. Unrecognized lines are
// returned for the main loop to process after the search.
func (d *driver[P]) goCommand(fields []string, lines <-chan string, pending []string) (buffered []string, quit bool) {
	limits := d.parseGo(fields)

	mcts.TryUseSubtree(d.tree, d.pos, d.prev, d.hasPrev)

	var abort atomic.Bool
	searcher := mcts.NewSearcher(d.tree, d.pos.Clone(), d.params, d.cfg.Eval, &abort, d.out)

	type result struct {
		mov game.Move
	}
	done := make(chan result, 1)
	go func() {
		var nodes int64
		mov, _ := searcher.Search(d.threads, limits, true, &nodes)
		done <- result{mov: mov}
	}()

	finish := func(r result) {
		if r.mov == game.NullMove {
			fmt.Fprintln(d.out, "bestmove (none)")
		} else {
			fmt.Fprintf(d.out, "bestmove %s\n", d.pos.MoveString(r.mov))
		}
		if d.reportMoves {
			d.displayMoves()
		}
		d.prev = d.pos.Clone()
		d.hasPrev = true
	}

	// a search with no node or time cap only ends on an explicit abort
	bounded := limits.MaxNodes > 0 || limits.MaxTime > 0

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				if !bounded {
					abort.Store(true)
				}
				finish(<-done)
				// end of input: buffered lines still run, then the main
				// loop sees the closed channel and returns
				return pending, false
			}
			switch strings.TrimSpace(line) {
			case "stop":
				abort.Store(true)
			case "isready":
				fmt.Fprintln(d.out, "readyok")
			case "quit":
				// a capped search finishes its script in order; only an
				// open-ended one must be torn down right here
				if !bounded {
					abort.Store(true)
					finish(<-done)
					return pending, true
				}
				pending = append(pending, line)
			default:
				pending = append(pending, line)
			}
		case r := <-done:
			finish(r)
			return pending, false
		}
	}
}

// parseGo reads the go arguments; malformed tokens are skipped and defaults
// apply.
func (d *driver[P]) parseGo(fields []string) mcts.Limits {
	limits := mcts.Limits{MaxDepth: defaultMaxDepth}

	var times, incs [2]time.Duration
	var haveTime [2]bool
	movesToGo := 0
	var moveTime time.Duration

	mode := ""
	for _, f := range fields[1:] {
		switch f {
		case "nodes", "movetime", "depth", "wtime", "btime", "winc", "binc", "movestogo":
			mode = f
		case "infinite":
			mode = ""
		default:
			n, err := strconv.ParseInt(f, 10, 64)
			if err != nil {
				klog.V(1).Infof("go: ignoring token %q", f)
				mode = ""
				continue
			}
			if n < 0 {
				n = 0
			}
			switch mode {
			case "nodes":
				limits.MaxNodes = n
			case "movetime":
				moveTime = time.Duration(n) * time.Millisecond
			case "depth":
				limits.MaxDepth = int(n)
			case "wtime":
				times[0], haveTime[0] = time.Duration(n)*time.Millisecond, true
			case "btime":
				times[1], haveTime[1] = time.Duration(n)*time.Millisecond, true
			case "winc":
				incs[0] = time.Duration(n) * time.Millisecond
			case "binc":
				incs[1] = time.Duration(n) * time.Millisecond
			case "movestogo":
				movesToGo = int(n)
			}
		}
	}

	stm := d.pos.SideToMove()
	if haveTime[stm] {
		opt, hard := mcts.TimeBudget(d.params, times[stm], incs[stm], movesToGo, d.moveOverhead)
		limits.OptTime = opt
		limits.MaxTime = hard
	}

	if moveTime > 0 {
		moveTime -= d.moveOverhead
		if moveTime < time.Millisecond {
			moveTime = time.Millisecond
		}
		if limits.MaxTime == 0 || moveTime < limits.MaxTime {
			limits.MaxTime = moveTime
		}
	}

	return limits
}

// bench clears the tree and runs a fixed-node search on each bench position,
// reporting the aggregate speed.
func (d *driver[P]) bench(fields []string) {
	nodes := int64(benchDefaultNodes)
	if len(fields) > 1 {
		if n, err := strconv.ParseInt(fields[1], 10, 64); err == nil && n > 0 {
			nodes = n
		}
	}

	fens := d.cfg.BenchFENs
	if len(fens) == 0 {
		fens = []string{d.cfg.Start().FEN()}
	}

	var total int64
	start := time.Now()

	for _, fen := range fens {
		pos, err := d.cfg.FromFEN(fen)
		if err != nil {
			klog.Warningf("bench: %v", err)
			continue
		}
		d.tree.Clear()
		var abort atomic.Bool
		searcher := mcts.NewSearcher(d.tree, pos, d.params, d.cfg.Eval, &abort, io.Discard)
		searcher.Search(d.threads, mcts.Limits{MaxNodes: nodes, MaxDepth: defaultMaxDepth}, false, &total)
	}

	elapsed := time.Since(start)
	fmt.Fprintf(d.out, "bench: %d nodes %.0f nps\n", total, float64(total)/elapsed.Seconds())

	d.tree.Clear()
	d.hasPrev = false
}
