package ataxx

import (
	"github.com/chewxy/math32"

	"github.com/quercus/game"
)

// Scorer is a hand-rolled linear evaluator over material and capture
// counts. It is stateless and safe for concurrent use.
type Scorer struct {
	// MaterialScale converts the piece-count difference into win
	// probability via a sigmoid.
	MaterialScale float32
	// CaptureWeight and SingleBonus shape the policy logits.
	CaptureWeight float32
	SingleBonus   float32
}

// NewScorer returns the default evaluator.
func NewScorer() *Scorer {
	return &Scorer{
		MaterialScale: 6.0,
		CaptureWeight: 0.8,
		SingleBonus:   0.4,
	}
}

// Value is the side to move's win probability from the material balance.
func (s *Scorer) Value(pos *Board) float32 {
	m := float32(pos.Material())
	return 1.0 / (1.0 + math32.Exp(-m/s.MaterialScale))
}

// PolicyLogits scores each move by the stones it would flip, with a bonus
// for growing moves over jumps.
func (s *Scorer) PolicyLogits(pos *Board, moves []game.Move, out []float32) {
	opps := pos.opps()
	for i, mv := range moves {
		m := Move(mv)
		if m.IsPass() {
			out[i] = 0
			continue
		}
		logit := s.CaptureWeight * float32(popcount(singles(m.To())&opps))
		if m.IsSingle() {
			logit += s.SingleBonus
		}
		out[i] = logit
	}
}

var _ game.Evaluator[*Board] = (*Scorer)(nil)
