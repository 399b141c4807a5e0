package main

import (
	"flag"
	"fmt"
	"os"
	"runtime/pprof"

	"k8s.io/klog/v2"

	"github.com/quercus/game/ataxx"
	"github.com/quercus/game/chess"
	"github.com/quercus/uci"
)

var (
	gameName   = flag.String("game", "chess", "game variant to play: chess or ataxx")
	cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			klog.Fatalf("cpuprofile: %v", err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	var err error
	switch *gameName {
	case "chess":
		err = uci.Run(uci.Config[*chess.Board]{
			Name:    "quercus",
			Author:  "the quercus authors",
			Proto:   "uci",
			Start:   chess.Start,
			FromFEN: chess.FromFEN,
			Eval:    chess.NewScorer(),
			BenchFENs: []string{
				"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
				"r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 4 3",
				"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1",
			},
		}, os.Stdin, os.Stdout)
	case "ataxx":
		err = uci.Run(uci.Config[*ataxx.Board]{
			Name:    "quercus-ataxx",
			Author:  "the quercus authors",
			Proto:   "uai",
			Start:   ataxx.Start,
			FromFEN: ataxx.FromFEN,
			Eval:    ataxx.NewScorer(),
			BenchFENs: []string{
				ataxx.StartPos,
				"x5o/7/2-1-2/7/2-1-2/7/o5x x 0 1",
			},
		}, os.Stdin, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "unknown game %q\n", *gameName)
		os.Exit(2)
	}

	if err != nil {
		klog.Errorf("stdin: %v", err)
		os.Exit(1)
	}
}
