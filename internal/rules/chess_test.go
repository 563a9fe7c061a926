package rules

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChessEngine_StartingPosition(t *testing.T) {
	req := require.New(t)
	e := NewChessEngine()

	req.Equal(SideWhite, e.Turn())
	req.False(e.IsTerminal())
	req.True(strings.HasPrefix(e.Serialize(), "rnbqkbnr/pppppppp/"))
}

func TestChessEngine_LegalMoveAdvancesTurn(t *testing.T) {
	req := require.New(t)
	e := NewChessEngine()

	req.NoError(e.ApplyMove("e4"))
	req.Equal(SideBlack, e.Turn())
	req.Contains(e.Serialize(), " b ")
}

func TestChessEngine_IllegalMoveRejected(t *testing.T) {
	req := require.New(t)
	e := NewChessEngine()

	before := e.Serialize()
	req.ErrorIs(e.ApplyMove("Ke5"), ErrIllegalMove)
	req.ErrorIs(e.ApplyMove("not a move"), ErrIllegalMove)
	req.Equal(before, e.Serialize())
	req.Equal(SideWhite, e.Turn())
}

func TestChessEngine_FoolsMate(t *testing.T) {
	req := require.New(t)
	e := NewChessEngine()

	for _, san := range []string{"f3", "e5", "g4", "Qh4#"} {
		req.NoError(e.ApplyMove(san))
	}

	req.True(e.IsTerminal())
	term := e.Termination()
	req.Equal(MethodCheckmate, term.Method)
	req.Equal(SideBlack, term.Winner)
}

func TestChessEngine_ThreefoldRepetitionClaimedAutomatically(t *testing.T) {
	req := require.New(t)
	e := NewChessEngine()

	// Knights shuffle back to the start twice; the starting position then
	// stands three times.
	moves := []string{"Nf3", "Nf6", "Ng1", "Ng8", "Nf3", "Nf6", "Ng1", "Ng8"}
	for _, san := range moves {
		req.NoError(e.ApplyMove(san))
	}

	req.True(e.IsTerminal())
	term := e.Termination()
	req.Equal(MethodThreefoldRepetition, term.Method)
	req.Equal(SideNone, term.Winner)
}

func TestChessEngine_ResetRestoresStart(t *testing.T) {
	req := require.New(t)
	e := NewChessEngine()

	req.NoError(e.ApplyMove("e4"))
	e.Reset()
	req.Equal(SideWhite, e.Turn())
	req.False(e.IsTerminal())
	req.True(strings.HasPrefix(e.Serialize(), "rnbqkbnr/pppppppp/"))
}
