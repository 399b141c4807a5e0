package ataxx

import (
	"math/bits"

	"github.com/pkg/errors"

	"github.com/quercus/game"
)

// passSquare marks the absent half of a move encoding: a single move has no
// origin, a pass has neither origin nor destination.
const passSquare = 63

// Move is an Ataxx move packed as from | to<<8. Singles carry passSquare as
// their origin.
type Move uint16

// Single returns a one-step clone move to a square.
func Single(to uint8) Move { return Move(passSquare) | Move(to)<<8 }

// Double returns a two-step jump move.
func Double(from, to uint8) Move { return Move(from) | Move(to)<<8 }

// Pass returns the pass move, played when the side to move has no other move.
func Pass() Move { return Move(passSquare) | Move(passSquare)<<8 }

func (m Move) From() int      { return int(m & 0xFF) }
func (m Move) To() int        { return int(m >> 8) }
func (m Move) IsSingle() bool { return m.From() == passSquare && !m.IsPass() }
func (m Move) IsPass() bool   { return m.To() == passSquare }

// String renders the move in UAI form: destination square for singles,
// origin+destination for doubles, 0000 for a pass.
func (m Move) String() string {
	if m.IsPass() {
		return "0000"
	}
	var buf []byte
	if !m.IsSingle() {
		buf = appendSquare(buf, m.From())
	}
	return string(appendSquare(buf, m.To()))
}

func appendSquare(buf []byte, sq int) []byte {
	return append(buf, byte('a'+sq%7), byte('1'+sq/7))
}

const (
	allSquares uint64 = 0x1_ffff_ffff_ffff
	notRight   uint64 = 0xfdfb_f7ef_dfbf
	notLeft    uint64 = 0x1_fbf7_efdf_bf7e
)

// expand returns the one-step neighbourhood of a bitboard, clipped to the
// 7x7 board.
func expand(bb uint64) uint64 {
	right := (bb & notRight) << 1
	left := (bb & notLeft) >> 1
	bb2 := bb | right | left

	up := (bb2 << 7) & allSquares
	down := bb2 >> 7

	return right | left | up | down
}

func inverse(bb uint64) uint64 { return ^bb & allSquares }

var (
	singleTargets [49]uint64
	doubleTargets [49]uint64
	zvals         [2][49]uint64
)

func init() {
	for sq := 0; sq < 49; sq++ {
		bb := uint64(1) << sq
		ring1 := expand(bb)
		singleTargets[sq] = ring1
		doubleTargets[sq] = expand(ring1) & inverse(ring1)
	}

	seed := uint64(180_620_142)
	for side := 0; side < 2; side++ {
		for sq := 0; sq < 49; sq++ {
			seed = xorshift(seed)
			zvals[side][sq] = seed
		}
	}
}

func xorshift(seed uint64) uint64 {
	seed ^= seed << 13
	seed ^= seed >> 7
	seed ^= seed << 17
	return seed
}

func singles(sq int) uint64 { return singleTargets[sq] }
func doubles(sq int) uint64 { return doubleTargets[sq] }

func popcount(bb uint64) int { return bits.OnesCount64(bb) }
func trailing(bb uint64) int { return bits.TrailingZeros64(bb) }

// AppendLegalMoves appends every legal move: single clones to empty
// neighbours, double jumps, and a pass when the side to move is blocked in.
// A decided game has no moves.
func (b *Board) AppendLegalMoves(dst []game.Move) []game.Move {
	if b.GameState().IsTerminal() {
		return dst
	}

	nocc := inverse(b.Occ())
	boys := b.boys()
	n := len(dst)

	single := expand(boys) & nocc
	for single > 0 {
		dst = append(dst, game.Move(Single(uint8(trailing(single)))))
		single &= single - 1
	}

	for boys > 0 {
		from := trailing(boys)
		boys &= boys - 1

		jumps := doubles(from) & nocc
		for jumps > 0 {
			dst = append(dst, game.Move(Double(uint8(from), uint8(trailing(jumps)))))
			jumps &= jumps - 1
		}
	}

	if len(dst) == n {
		dst = append(dst, game.Move(Pass()))
	}
	return dst
}

// MoveString renders a move in UAI text.
func (b *Board) MoveString(mv game.Move) string { return Move(mv).String() }

// ParseMove finds the legal move with the given UAI text.
func (b *Board) ParseMove(s string) (game.Move, error) {
	for _, mv := range b.AppendLegalMoves(nil) {
		if Move(mv).String() == s {
			return mv, nil
		}
	}
	return game.NullMove, errors.Errorf("ataxx: no legal move %q", s)
}
