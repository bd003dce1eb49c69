package pilotdto

import "time"

// GameSummary는 종료된 판의 요약.
type GameSummary struct {
	GameID   string
	Status   string
	Winner   string
	Ply      int
	Blunders int
	Duration time.Duration
}
