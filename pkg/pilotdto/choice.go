package pilotdto

// CandidateLine은 분석 한 줄의 패널 표시용 사본.
type CandidateLine struct {
	Rank      int
	MoveUCI   string
	EvalCP    int
	MateIn    int
	Kind      string
	Principal []string
}

// MoveChoice는 실제로 보낸 수와 선택 메타데이터.
type MoveChoice struct {
	MoveUCI      string
	MoveSAN      string
	Rank         int
	EvalCP       int
	LossCP       int
	Blunder      bool
	Capture      bool
	DelayMs      int
	ClaimedLagMs int
	Berserk      bool
}
