// Package chess adapts github.com/notnil/chess to the search's position
// contract: packed 16-bit moves, terminal classification with the fifty-move
// rule, and a 64-bit position hash.
package chess

import (
	"strconv"
	"strings"

	notnil "github.com/notnil/chess"
	"github.com/pkg/errors"

	"github.com/quercus/game"
)

// Move packing: bits 0-5 origin square, 6-11 destination square, 12-15 the
// promotion piece type (notnil's PieceType numbering).
const (
	moveToShift    = 6
	movePromoShift = 12
	squareMask     = 0x3F
)

func pack(m *notnil.Move) game.Move {
	return game.Move(uint16(m.S1()) |
		uint16(m.S2())<<moveToShift |
		uint16(m.Promo())<<movePromoShift)
}

func from(mv game.Move) notnil.Square { return notnil.Square(mv & squareMask) }
func to(mv game.Move) notnil.Square   { return notnil.Square(mv >> moveToShift & squareMask) }
func promo(mv game.Move) notnil.PieceType {
	return notnil.PieceType(mv >> movePromoShift)
}

var promoLetters = map[notnil.PieceType]string{
	notnil.Queen:  "q",
	notnil.Rook:   "r",
	notnil.Bishop: "b",
	notnil.Knight: "n",
}

// Board is a chess position. The wrapped notnil position is immutable; Make
// swaps in the updated one, so copies of Board are cheap and independent.
type Board struct {
	pos *notnil.Position
	// halfmove is the fifty-move-rule clock, tracked here because the
	// wrapped position does not expose it.
	halfmove int
}

// Start returns the standard starting position.
func Start() *Board {
	return &Board{pos: notnil.NewGame().Position()}
}

// FromFEN parses a FEN string.
func FromFEN(fen string) (*Board, error) {
	opt, err := notnil.FEN(fen)
	if err != nil {
		return nil, errors.Wrapf(err, "parse fen %q", fen)
	}
	b := &Board{pos: notnil.NewGame(opt).Position()}
	if fields := strings.Fields(fen); len(fields) >= 5 {
		if n, err := strconv.Atoi(fields[4]); err == nil {
			b.halfmove = n
		}
	}
	return b, nil
}

// Clone returns an independent copy.
func (b *Board) Clone() *Board {
	cp := *b
	return &cp
}

// CopyFrom overwrites b with other's state.
func (b *Board) CopyFrom(other *Board) { *b = *other }

// SideToMove is 0 for white, 1 for black.
func (b *Board) SideToMove() int {
	if b.pos.Turn() == notnil.White {
		return 0
	}
	return 1
}

// AppendLegalMoves appends every legal move in packed form.
func (b *Board) AppendLegalMoves(dst []game.Move) []game.Move {
	for _, m := range b.pos.ValidMoves() {
		dst = append(dst, pack(m))
	}
	return dst
}

// Make plays a packed move. The move must be legal in this position.
func (b *Board) Make(mv game.Move) {
	m := b.find(mv)
	if m == nil {
		panic("chess: make of a move that is not legal here: " + b.MoveString(mv))
	}
	if m.HasTag(notnil.Capture) || m.HasTag(notnil.EnPassant) ||
		b.pos.Board().Piece(m.S1()).Type() == notnil.Pawn {
		b.halfmove = 0
	} else {
		b.halfmove++
	}
	b.pos = b.pos.Update(m)
}

func (b *Board) find(mv game.Move) *notnil.Move {
	for _, m := range b.pos.ValidMoves() {
		if pack(m) == mv {
			return m
		}
	}
	return nil
}

// GameState classifies the position: checkmate loses for the side to move,
// stalemate and an expired fifty-move clock draw.
func (b *Board) GameState() game.State {
	switch b.pos.Status() {
	case notnil.Checkmate:
		return game.Lost(0)
	case notnil.Stalemate:
		return game.Draw
	}
	if b.halfmove >= 100 {
		return game.Draw
	}
	return game.Ongoing
}

// Hash folds the wrapped position's 128-bit hash to 64 bits.
func (b *Board) Hash() uint64 {
	h := b.pos.Hash()
	var lo, hi uint64
	for i := 0; i < 8; i++ {
		lo |= uint64(h[i]) << (8 * i)
		hi |= uint64(h[8+i]) << (8 * i)
	}
	return lo ^ hi
}

// MoveString renders a packed move as UCI text, e.g. e2e4 or e7e8q.
func (b *Board) MoveString(mv game.Move) string {
	var sb strings.Builder
	sb.WriteString(squareString(from(mv)))
	sb.WriteString(squareString(to(mv)))
	sb.WriteString(promoLetters[promo(mv)])
	return sb.String()
}

func squareString(sq notnil.Square) string {
	return string([]byte{byte('a' + int(sq)%8), byte('1' + int(sq)/8)})
}

// ParseMove finds the legal move with the given UCI text.
func (b *Board) ParseMove(s string) (game.Move, error) {
	for _, m := range b.pos.ValidMoves() {
		if mv := pack(m); b.MoveString(mv) == s {
			return mv, nil
		}
	}
	return game.NullMove, errors.Errorf("chess: no legal move %q", s)
}

// FEN renders the position. The halfmove field reflects the wrapper's clock.
func (b *Board) FEN() string {
	fields := strings.Fields(b.pos.String())
	if len(fields) >= 5 {
		fields[4] = strconv.Itoa(b.halfmove)
	}
	return strings.Join(fields, " ")
}

var _ game.Position[*Board] = (*Board)(nil)
