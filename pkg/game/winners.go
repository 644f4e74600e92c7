package game

import "github.com/coupgame/coupd/pkg/models"

// DetermineWinners returns the display names of the winning players.
// With one survivor the survivor wins. When the game ends with several
// players still alive (turn limit reached or the session is ended by an
// admin), the alive players holding the most coins share the win.
func DetermineWinners(players []*models.PlayerState) []string {
	var alive []*models.PlayerState
	for _, p := range players {
		if p.Alive {
			alive = append(alive, p)
		}
	}
	if len(alive) == 0 {
		return nil
	}
	if len(alive) == 1 {
		return []string{alive[0].DisplayName}
	}

	most := alive[0].Coins
	for _, p := range alive[1:] {
		if p.Coins > most {
			most = p.Coins
		}
	}
	var winners []string
	for _, p := range alive {
		if p.Coins == most {
			winners = append(winners, p.DisplayName)
		}
	}
	return winners
}

// GameOver reports whether the session should move to the ending phase:
// at most one player remains alive, or the turn limit has been exhausted.
func GameOver(sess *models.Session, players []*models.PlayerState) bool {
	aliveCount := 0
	for _, p := range players {
		if p.Alive {
			aliveCount++
		}
	}
	if aliveCount <= 1 {
		return true
	}
	return sess.TurnLimit > 0 && sess.TurnNumber > sess.TurnLimit
}
