// Package ataxx implements the 7x7 Ataxx variant on a pair of bitboards,
// with blocked squares, the 100-halfmove draw rule and UAI move text.
package ataxx

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/quercus/game"
)

// Side indices into the piece bitboards.
const (
	Red = 0
	Blu = 1
)

// StartPos is the standard Ataxx starting position.
const StartPos = "x5o/7/7/7/7/7/o5x x 0 1"

// Board is a 7x7 Ataxx position. Square 0 is a1, square 48 is g7; squares are
// numbered rank by rank.
type Board struct {
	bbs   [2]uint64
	gaps  uint64
	stm   bool
	halfm uint8
	fullm uint16
}

// Start returns the standard starting position.
func Start() *Board {
	b, err := FromFEN(StartPos)
	if err != nil {
		panic(err)
	}
	return b
}

// FromFEN parses an Ataxx FEN: piece rows with x/o/-, side to move, halfmove
// clock and fullmove number.
func FromFEN(fen string) (*Board, error) {
	split := strings.Fields(fen)
	if len(split) < 2 {
		return nil, errors.Errorf("ataxx fen %q: want at least rows and side to move", fen)
	}

	rows := strings.Split(split[0], "/")
	if len(rows) != 7 {
		return nil, errors.Errorf("ataxx fen %q: want 7 rows, got %d", fen, len(rows))
	}

	b := &Board{stm: split[1] == "o", fullm: 1}
	if len(split) > 2 {
		if n, err := strconv.Atoi(split[2]); err == nil {
			b.halfm = uint8(n)
		}
	}
	if len(split) > 3 {
		if n, err := strconv.Atoi(split[3]); err == nil {
			b.fullm = uint16(n)
		}
	}

	sq := 0
	for i := 6; i >= 0; i-- {
		for _, ch := range strings.ToLower(rows[i]) {
			switch {
			case ch >= '1' && ch <= '7':
				sq += int(ch - '0')
			case ch == 'x':
				b.bbs[Red] |= 1 << sq
				sq++
			case ch == 'o':
				b.bbs[Blu] |= 1 << sq
				sq++
			case ch == '-':
				b.gaps |= 1 << sq
				sq++
			default:
				return nil, errors.Errorf("ataxx fen %q: bad piece char %q", fen, ch)
			}
		}
	}
	if sq != 49 {
		return nil, errors.Errorf("ataxx fen %q: rows cover %d squares, want 49", fen, sq)
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

// SideToMove is Red (0) or Blu (1).
func (b *Board) SideToMove() int {
	if b.stm {
		return Blu
	}
	return Red
}

// Occ is the union of both piece sets and the blocked squares.
func (b *Board) Occ() uint64 { return b.bbs[Red] | b.bbs[Blu] | b.gaps }

func (b *Board) boys() uint64 { return b.bbs[b.SideToMove()] }
func (b *Board) opps() uint64 { return b.bbs[b.SideToMove()^1] }

// Material is the piece-count difference from the side to move's view.
func (b *Board) Material() int {
	return popcount(b.boys()) - popcount(b.opps())
}

// Make plays a move and flips the side to move.
func (b *Board) Make(mv game.Move) {
	m := Move(mv)
	if !m.IsPass() {
		stm := b.SideToMove()
		from, to := m.From(), m.To()

		if stm == Blu {
			b.fullm++
		}

		if from != passSquare {
			b.bbs[stm] ^= 1 << from
			b.halfm++
		} else {
			b.halfm = 0
		}

		b.bbs[stm] ^= 1 << to

		captures := singles(to) & b.bbs[stm^1]
		b.bbs[Red] ^= captures
		b.bbs[Blu] ^= captures
	}
	b.stm = !b.stm
}

// GameState classifies the position for the side to move. A full board is
// decided on material; a wiped-out side has lost; 100 halfmoves without a
// single-step move is a draw.
func (b *Board) GameState() game.State {
	socc := popcount(b.boys())
	nocc := popcount(b.opps())

	switch {
	case socc+nocc == 49:
		switch {
		case socc > nocc:
			return game.Won(0)
		case socc < nocc:
			return game.Lost(0)
		default:
			return game.Draw
		}
	case socc == 0:
		return game.Lost(0)
	case nocc == 0:
		return game.Won(0)
	case b.halfm >= 100:
		return game.Draw
	default:
		return game.Ongoing
	}
}

// Hash is a Zobrist hash over the side to move's and the opponent's pieces.
func (b *Board) Hash() uint64 {
	var hash uint64

	boys := b.boys()
	for boys > 0 {
		hash ^= zvals[0][trailing(boys)]
		boys &= boys - 1
	}

	opps := b.opps()
	for opps > 0 {
		hash ^= zvals[1][trailing(opps)]
		opps &= opps - 1
	}

	return hash
}

// FEN renders the position.
func (b *Board) FEN() string {
	var sb strings.Builder

	occ := b.Occ()
	for rank := 6; rank >= 0; rank-- {
		empty := 0
		for file := 0; file < 7; file++ {
			sq := 7*rank + file
			bit := uint64(1) << sq
			if occ&bit == 0 {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteString(strconv.Itoa(empty))
				empty = 0
			}
			switch {
			case b.bbs[Red]&bit > 0:
				sb.WriteByte('x')
			case b.bbs[Blu]&bit > 0:
				sb.WriteByte('o')
			default:
				sb.WriteByte('-')
			}
		}
		if empty > 0 {
			sb.WriteString(strconv.Itoa(empty))
		}
		if rank > 0 {
			sb.WriteByte('/')
		}
	}

	if b.stm {
		sb.WriteString(" o")
	} else {
		sb.WriteString(" x")
	}
	sb.WriteString(" " + strconv.Itoa(int(b.halfm)))
	sb.WriteString(" " + strconv.Itoa(int(b.fullm)))
	return sb.String()
}

// String draws the board, red as x, blue as o, gaps as -.
func (b *Board) String() string {
	var sb strings.Builder
	for rank := 6; rank >= 0; rank-- {
		for file := 0; file < 7; file++ {
			bit := uint64(1) << (7*rank + file)
			switch {
			case b.bbs[Red]&bit > 0:
				sb.WriteString(" x")
			case b.bbs[Blu]&bit > 0:
				sb.WriteString(" o")
			case b.gaps&bit > 0:
				sb.WriteString(" -")
			default:
				sb.WriteString(" .")
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

var _ game.Position[*Board] = (*Board)(nil)
