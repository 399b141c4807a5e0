package chess

import (
	"github.com/chewxy/math32"
	notnil "github.com/notnil/chess"

	"github.com/quercus/game"
)

// Scorer is a hand-rolled linear evaluator: material plus a tempo bonus for
// value, capture/promotion/center heuristics for policy. Stateless and safe
// for concurrent use.
type Scorer struct {
	// PieceValues in centipawns, indexed by notnil's PieceType.
	PieceValues [7]float32
	// Tempo is the side to move's bonus in centipawns.
	Tempo float32
	// Sigmoid scale from centipawns to win probability.
	Scale float32

	// Policy logit weights.
	CaptureWeight float32
	PromoBonus    float32
	CenterBonus   float32
}

// NewScorer returns the default evaluator.
func NewScorer() *Scorer {
	s := &Scorer{
		Tempo:         20,
		Scale:         250,
		CaptureWeight: 1.2,
		PromoBonus:    1.0,
		CenterBonus:   0.3,
	}
	s.PieceValues[notnil.Queen] = 900
	s.PieceValues[notnil.Rook] = 500
	s.PieceValues[notnil.Bishop] = 330
	s.PieceValues[notnil.Knight] = 320
	s.PieceValues[notnil.Pawn] = 100
	return s
}

// Value is the side to move's win probability from the material balance.
func (s *Scorer) Value(pos *Board) float32 {
	board := pos.pos.Board()
	var cp float32
	for sq := notnil.Square(0); sq < 64; sq++ {
		p := board.Piece(sq)
		if p == notnil.NoPiece {
			continue
		}
		if p.Color() == notnil.White {
			cp += s.PieceValues[p.Type()]
		} else {
			cp -= s.PieceValues[p.Type()]
		}
	}
	if pos.pos.Turn() == notnil.Black {
		cp = -cp
	}
	cp += s.Tempo
	return 1.0 / (1.0 + math32.Exp(-cp/s.Scale))
}

var centerSquares = map[notnil.Square]bool{
	notnil.D4: true, notnil.E4: true, notnil.D5: true, notnil.E5: true,
}

// PolicyLogits scores each move by captured material, promotion and central
// destinations.
func (s *Scorer) PolicyLogits(pos *Board, moves []game.Move, out []float32) {
	board := pos.pos.Board()
	for i, mv := range moves {
		var logit float32
		if victim := board.Piece(to(mv)); victim != notnil.NoPiece {
			logit += s.CaptureWeight + s.PieceValues[victim.Type()]/500
		}
		if promo(mv) != notnil.NoPieceType {
			logit += s.PromoBonus
		}
		if centerSquares[to(mv)] {
			logit += s.CenterBonus
		}
		out[i] = logit
	}
}

var _ game.Evaluator[*Board] = (*Scorer)(nil)
