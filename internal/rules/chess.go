package rules

import "github.com/notnil/chess"

// ChessEngine adapts notnil/chess to the Engine interface.
type ChessEngine struct {
	game *chess.Game
}

func NewChessEngine() *ChessEngine {
	return &ChessEngine{game: chess.NewGame()}
}

func (e *ChessEngine) Reset() {
	e.game = chess.NewGame()
}

func (e *ChessEngine) ApplyMove(san string) error {
	if err := e.game.MoveStr(san); err != nil {
		return ErrIllegalMove
	}
	e.claimForcedDraws()
	return nil
}

// claimForcedDraws promotes claimable draws to outcomes. The library leaves
// threefold repetition and the fifty-move rule for a player to claim; this
// server treats reaching either as the end of the game, so the draw is
// claimed on the spot. Repetition outranks the fifty-move rule.
func (e *ChessEngine) claimForcedDraws() {
	if e.game.Outcome() != chess.NoOutcome {
		return
	}
	for _, method := range []chess.Method{chess.ThreefoldRepetition, chess.FiftyMoveRule} {
		for _, eligible := range e.game.EligibleDraws() {
			if eligible == method {
				_ = e.game.Draw(method)
				return
			}
		}
	}
}

func (e *ChessEngine) Turn() Side {
	if e.game.Position().Turn() == chess.White {
		return SideWhite
	}
	return SideBlack
}

func (e *ChessEngine) IsTerminal() bool {
	return e.game.Outcome() != chess.NoOutcome
}

func (e *ChessEngine) Termination() Termination {
	switch e.game.Method() {
	case chess.Checkmate:
		winner := SideNone
		switch e.game.Outcome() {
		case chess.WhiteWon:
			winner = SideWhite
		case chess.BlackWon:
			winner = SideBlack
		}
		return Termination{Method: MethodCheckmate, Winner: winner}
	case chess.Stalemate:
		return Termination{Method: MethodStalemate}
	case chess.InsufficientMaterial:
		return Termination{Method: MethodInsufficientMaterial}
	case chess.ThreefoldRepetition, chess.FivefoldRepetition:
		return Termination{Method: MethodThreefoldRepetition}
	case chess.FiftyMoveRule, chess.SeventyFiveMoveRule:
		return Termination{Method: MethodFiftyMoveRule}
	default:
		return Termination{}
	}
}

func (e *ChessEngine) Serialize() string {
	return e.game.Position().String()
}
