package domain

import "time"

// 판 상태 문자열. 서버 status 명칭 그대로 보존.
const (
	StatusStarted   = "started"
	StatusMate      = "mate"
	StatusResign    = "resign"
	StatusDraw      = "draw"
	StatusOutoftime = "outoftime"
	StatusAborted   = "aborted"
)

// GameRecord는 저장소에 남기는 판 단위 기록.
type GameRecord struct {
	GameID    string        `json:"game_id"`
	Color     string        `json:"color"`
	Preset    string        `json:"preset"`
	Status    string        `json:"status"`
	Winner    string        `json:"winner,omitempty"`
	MovesUCI  []string      `json:"moves_uci"`
	FinalFEN  string        `json:"final_fen,omitempty"`
	Ply       int           `json:"ply"`
	Blunders  int           `json:"blunders"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`

	// 종료 시점에 채워지는 부가 정보.
	AvgLagMs     int    `json:"avg_claimed_lag_ms,omitempty"`
	SnapshotPath string `json:"snapshot_path,omitempty"`
}

// Finished는 종료 기록 여부.
func (r *GameRecord) Finished() bool {
	return r.Status != "" && r.Status != StatusStarted
}

// Account는 /api/account 응답의 필요한 부분.
type Account struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Title    string `json:"title,omitempty"`
}
