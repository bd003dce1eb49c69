package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	nchess "github.com/corentings/chess/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"lichess-pilot/internal/botlog"
	"lichess-pilot/internal/domain"
	"lichess-pilot/internal/engine"
	"lichess-pilot/internal/guard"
	"lichess-pilot/internal/lag"
	"lichess-pilot/internal/panel"
	"lichess-pilot/internal/picker"
	"lichess-pilot/internal/preset"
	"lichess-pilot/internal/protocol"
	"lichess-pilot/internal/timing"
	"lichess-pilot/internal/tracker"
	"lichess-pilot/pkg/pilotdto"
)

const (
	defaultDecideTimeout = 30 * time.Second
	sendTimeout          = 10 * time.Second

	// 같은 수 연속 전송 억제 창. 전송 기록은 쓰기 전에 남긴다.
	duplicateSendWindow = 500 * time.Millisecond

	// 지연 대기 중 epoch 재확인 주기.
	staleCheckInterval = 50 * time.Millisecond
)

// MoveSender는 전송 계층 표면. 기본 구현은 internal/session.Transport.
type MoveSender interface {
	SendMove(ctx context.Context, id uuid.UUID, uci string, ackPly, lagMs int, berserk bool) bool
}

// Observer는 관찰 계층 표면. 기본 구현은 internal/tracker.Tracker.
// DOM 기반 관찰 계층으로 교체해도 오케스트레이터는 이 표면만 본다.
type Observer interface {
	IsLive() bool
	IsOurTurn() bool
	OurColor() nchess.Color
	FEN() string
	Ply() int
	History() []string
	Context() (tracker.TurnContext, bool)
	StartNew(our nchess.Color)
	StartFrom(our nchess.Color, fen string) error
	ApplyMove(uci string) error
	SetClocks(whiteSeconds, blackSeconds float64)
	EndGame()
}

// Recorder는 판 기록 훅. nil이면 기록하지 않는다.
type Recorder interface {
	GameStarted(rec domain.GameRecord)
	GameFinished(rec domain.GameRecord)
}

type Deps struct {
	Guard     *guard.State
	Observer  Observer
	Pipeline  *engine.Pipeline
	Selector  *picker.Selector
	Budget    *picker.BlunderBudget
	Simulator *timing.Simulator
	Lag       *lag.Estimator
	Sender    MoveSender
	Panel     *panel.Hub
	Recorder  Recorder
}

// Orchestrator는 수신 프레임을 턴 결정으로 연결하는 제어 루프.
// 결정은 짧은 고루틴에서 돌고, 잠들 때마다 가드 epoch를 다시 본다.
type Orchestrator struct {
	st        *guard.State
	obs       Observer
	pipeline  *engine.Pipeline
	selector  *picker.Selector
	budget    *picker.BlunderBudget
	simulator *timing.Simulator
	lag       *lag.Estimator
	sender    MoveSender
	panel     *panel.Hub
	recorder  Recorder

	mu          sync.Mutex
	preset      preset.PlayPreset
	gameID      string
	startedAt   time.Time
	fastMode      bool
	panicMode     bool
	enabled       bool
	deciding      bool
	decidingSince time.Time
	lastSentUCI   string
	lastSentAt    time.Time
	lastSentPly   int

	decideTimeout time.Duration
}

func New(deps Deps, p preset.PlayPreset) *Orchestrator {
	return &Orchestrator{
		st:            deps.Guard,
		obs:           deps.Observer,
		pipeline:      deps.Pipeline,
		selector:      deps.Selector,
		budget:        deps.Budget,
		simulator:     deps.Simulator,
		lag:           deps.Lag,
		sender:        deps.Sender,
		panel:         deps.Panel,
		recorder:      deps.Recorder,
		preset:        p,
		enabled:       true,
		lastSentPly:   -1,
		decideTimeout: defaultDecideTimeout,
	}
}

// HandleGameStart는 새 판 진입. fen이 비어 있으면 초기 배치에서 시작한다.
func (o *Orchestrator) HandleGameStart(gameID string, our nchess.Color, fen string) error {
	o.mu.Lock()
	p := o.preset
	o.gameID = gameID
	o.startedAt = time.Now()
	o.deciding = false
	o.lastSentUCI = ""
	o.lastSentAt = time.Time{}
	o.lastSentPly = -1
	o.mu.Unlock()

	o.st.Reset()
	o.budget.Reset(p.MaxBlunders)
	o.lag.Reset()
	o.simulator.Reset()
	o.pipeline.DropCache()

	if strings.TrimSpace(fen) != "" {
		if err := o.obs.StartFrom(our, fen); err != nil {
			return err
		}
	} else {
		o.obs.StartNew(our)
	}

	botlog.L().Info("game_started",
		zap.String("game_id", gameID),
		zap.String("color", colorName(our)),
		zap.String("preset", p.Name))

	if o.recorder != nil {
		o.recorder.GameStarted(o.buildRecord(domain.StatusStarted, ""))
	}
	o.maybeDecide()
	return nil
}

// HandleGameEnd는 종료 프레임 처리. 중복 호출은 무시된다.
func (o *Orchestrator) HandleGameEnd(status, winner string) {
	if o.st.Ended() {
		return
	}
	if status == "" {
		status = "unknown"
	}
	o.st.EndGame()
	o.obs.EndGame()

	rec := o.buildRecord(status, winner)
	if o.recorder != nil {
		o.recorder.GameFinished(rec)
	}
	o.panel.GameFinished(pilotdto.GameSummary{
		GameID:   rec.GameID,
		Status:   rec.Status,
		Winner:   rec.Winner,
		Ply:      rec.Ply,
		Blunders: rec.Blunders,
		Duration: rec.Duration,
	})
	botlog.L().Info("game_over",
		zap.String("game_id", rec.GameID),
		zap.String("status", status),
		zap.String("winner", winner))
}

// HandleFrame은 소켓 프레임 단일 진입점. 읽기 루프가 순서대로 부른다.
func (o *Orchestrator) HandleFrame(env protocol.Envelope) {
	switch env.T {
	case protocol.FrameAck:
		if mv, ok := o.st.Acknowledge(); ok {
			botlog.L().Debug("move_acked", zap.String("uci", mv.UCI))
		}
	case protocol.FrameMove:
		o.handleMoveFrame(env)
	case protocol.FrameEndData:
		ev, err := protocol.DecodeEndEvent(env.D)
		if err != nil {
			botlog.L().Warn("end_frame_malformed", zap.Error(err))
			return
		}
		o.HandleGameEnd(protocol.StatusName(ev.Status), ev.Winner)
	case protocol.FrameReload, protocol.FrameResync:
		botlog.L().Info("session_reload", zap.String("frame", env.T))
		o.st.DropPending()
		o.pipeline.DropCache()
		o.clearSentMarks()
		o.maybeDecide()
	case protocol.FrameCrowd:
		// 관전 인원 변동. 판 상태와 무관.
	default:
		botlog.L().Debug("frame_ignored", zap.String("t", env.T))
	}
}

func (o *Orchestrator) handleMoveFrame(env protocol.Envelope) {
	ev, err := protocol.DecodeMoveEvent(env.D)
	if err != nil {
		botlog.L().Warn("move_frame_malformed", zap.Error(err))
		return
	}

	if ev.Ply > 0 {
		o.st.AdvanceAck(ev.Ply)
	}
	if ms := ev.LagMs(); ms > 0 {
		o.lag.Record(ms)
	}
	if ev.Clock != nil {
		o.obs.SetClocks(ev.Clock.White, ev.Clock.Black)
	}

	if uci := ev.BestUCI(); uci != "" {
		if err := o.obs.ApplyMove(uci); err != nil {
			if ev.FEN == "" {
				botlog.L().Error("tracker_desync_no_fen", zap.String("uci", uci), zap.Error(err))
			} else if rerr := o.obs.StartFrom(o.obs.OurColor(), ev.FEN); rerr != nil {
				botlog.L().Error("tracker_resync_failed", zap.String("fen", ev.FEN), zap.Error(rerr))
			} else {
				o.pipeline.DropCache()
				o.clearSentMarks()
				botlog.L().Info("tracker_resynced_from_fen", zap.String("fen", ev.FEN))
			}
		}
	}

	if ev.Ended() {
		o.HandleGameEnd(protocol.StatusName(ev.Status), ev.Winner)
		return
	}
	o.maybeDecide()
}

// HandleTurn은 관찰 계층이 턴을 직접 밀어넣는 진입점.
// 스냅샷은 결정 시점에 Observer에서 다시 읽으므로 여기서는 신호로만 쓴다.
func (o *Orchestrator) HandleTurn(tc tracker.TurnContext) {
	if tc.SideToMove != o.obs.OurColor() {
		return
	}
	o.maybeDecide()
}

// Redrive는 워치독의 파이프라인 재진입.
func (o *Orchestrator) Redrive() {
	o.maybeDecide()
}

// ResubmitPending은 재접속 직후 호출. ack를 못 받은 수가 있으면
// 같은 ID로 다시 보내고, 없으면 결정 파이프라인을 다시 돌린다.
func (o *Orchestrator) ResubmitPending() {
	mv, ok := o.st.Pending()
	if !ok {
		o.Redrive()
		return
	}
	o.mu.Lock()
	berserk := o.panicMode
	o.mu.Unlock()

	lagMs := o.lag.NormalClaim()
	if berserk {
		lagMs = o.lag.PanicClaim()
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if o.sender.SendMove(ctx, mv.ID, mv.UCI, o.st.AckPly(), lagMs, berserk) {
		botlog.L().Info("pending_resubmitted", zap.String("uci", mv.UCI))
	}
}

func (o *Orchestrator) maybeDecide() {
	if !o.obs.IsOurTurn() {
		return
	}
	if o.st.Ended() {
		return
	}
	if _, pending := o.st.Pending(); pending {
		return
	}
	ply := o.obs.Ply()

	o.mu.Lock()
	if !o.enabled || o.deciding {
		o.mu.Unlock()
		return
	}
	if ply == o.lastSentPly {
		// 이 수순에서 이미 보냈다. 에코 프레임이 오기 전의 재진입.
		o.mu.Unlock()
		return
	}
	o.deciding = true
	o.decidingSince = time.Now()
	o.mu.Unlock()

	epoch := o.st.Epoch()
	go o.decide(epoch)
}

func (o *Orchestrator) decide(epoch uint64) {
	defer o.clearDeciding()

	o.mu.Lock()
	p := o.preset
	fast := o.fastMode
	timeout := o.decideTimeout
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	tc, ok := o.obs.Context()
	if !ok || tc.SideToMove != o.obs.OurColor() {
		return
	}

	botlog.L().Debug("decision_started",
		zap.String("fen", tc.FEN),
		zap.Int("ply", tc.Ply),
		zap.Bool("fast_mode", fast))

	lines, err := o.pipeline.Analyse(ctx, engine.Request{FEN: tc.FEN, BudgetMs: p.MoveTimeMillis}, fast)
	if err != nil {
		if errors.Is(err, guard.ErrGameEnded) || errors.Is(err, engine.ErrOracleBusy) {
			return
		}
		botlog.L().Warn("analysis_failed", zap.String("fen", tc.FEN), zap.Error(err))
		return
	}
	if len(lines) == 0 {
		botlog.L().Warn("analysis_empty", zap.String("fen", tc.FEN))
		return
	}

	o.panel.CandidatesReady(candidateLines(lines))

	if o.stale(epoch) {
		return
	}

	choice, err := o.selector.Choose(selectorConfig(p), lines, tc.Baseline, tc.History, o.budget)
	if err != nil {
		botlog.L().Warn("selection_failed", zap.String("fen", tc.FEN), zap.Error(err))
		return
	}

	delayMs := o.simulator.DelayMs(p.Timing, timing.Input{
		FastMode:   fast,
		Capture:    choice.Capture,
		PieceCount: tc.PieceCount,
	})
	if delayMs > 0 && !o.sleepInterruptible(ctx, epoch, delayMs) {
		botlog.L().Debug("send_cancelled_during_delay", zap.String("uci", choice.Move))
		return
	}

	if o.stale(epoch) || !o.obs.IsOurTurn() {
		return
	}
	o.send(choice, tc.Ply, delayMs)
}

// sleepInterruptible은 전송 지연 대기. epoch가 바뀌면 바로 깨어나 포기한다.
func (o *Orchestrator) sleepInterruptible(ctx context.Context, epoch uint64, delayMs int) bool {
	timer := time.NewTimer(time.Duration(delayMs) * time.Millisecond)
	defer timer.Stop()
	tick := time.NewTicker(staleCheckInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return !o.stale(epoch)
		case <-tick.C:
			if o.stale(epoch) {
				return false
			}
		}
	}
}

func (o *Orchestrator) send(choice picker.Choice, ply, delayMs int) {
	now := time.Now()
	o.mu.Lock()
	if choice.Move == o.lastSentUCI && now.Sub(o.lastSentAt) < duplicateSendWindow {
		o.mu.Unlock()
		botlog.L().Debug("duplicate_send_suppressed", zap.String("uci", choice.Move))
		return
	}
	// 전송 기록은 쓰기 전에 남긴다. 재전송 누락보다 중복 전송이 나쁘다.
	o.lastSentUCI = choice.Move
	o.lastSentAt = now
	o.lastSentPly = ply
	berserk := o.panicMode
	o.mu.Unlock()

	lagMs := o.lag.NormalClaim()
	if berserk {
		lagMs = o.lag.PanicClaim()
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if !o.sender.SendMove(ctx, uuid.New(), choice.Move, o.st.AckPly(), lagMs, berserk) {
		return
	}

	botlog.L().Info("move_sent",
		zap.String("uci", choice.Move),
		zap.String("san", choice.SAN),
		zap.Int("rank", choice.Rank),
		zap.Int("eval_cp", choice.EvalCP),
		zap.Int("loss_cp", choice.LossCP),
		zap.Bool("blunder", choice.Blunder),
		zap.Int("delay_ms", delayMs),
		zap.Int("lag_ms", lagMs))

	o.panel.MoveChosen(pilotdto.MoveChoice{
		MoveUCI:      choice.Move,
		MoveSAN:      choice.SAN,
		Rank:         choice.Rank,
		EvalCP:       choice.EvalCP,
		LossCP:       choice.LossCP,
		Blunder:      choice.Blunder,
		Capture:      choice.Capture,
		DelayMs:      delayMs,
		ClaimedLagMs: lagMs,
		Berserk:      berserk,
	})
}

func (o *Orchestrator) stale(epoch uint64) bool {
	return o.st.Epoch() != epoch || o.st.Ended()
}

// clearSentMarks는 리로드/리싱크 뒤의 전송 흔적 초기화.
// 직전에 보낸 수가 무효가 됐으므로 중복 억제 창도 같이 푼다.
func (o *Orchestrator) clearSentMarks() {
	o.mu.Lock()
	o.lastSentUCI = ""
	o.lastSentAt = time.Time{}
	o.lastSentPly = -1
	o.mu.Unlock()
}

func (o *Orchestrator) clearDeciding() {
	o.mu.Lock()
	o.deciding = false
	o.mu.Unlock()
}

// Deciding은 결정 고루틴 진행 플래그. 워치독이 들여다본다.
func (o *Orchestrator) Deciding() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.deciding
}

// DecidingFor는 플래그가 선 채 지난 시간. 안 섰으면 0.
func (o *Orchestrator) DecidingFor() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.deciding {
		return 0
	}
	return time.Since(o.decidingSince)
}

// DropDeciding은 워치독의 강제 해제. 세워져 있던 경우에만 로그를 남긴다.
func (o *Orchestrator) DropDeciding() {
	o.mu.Lock()
	was := o.deciding
	o.deciding = false
	o.mu.Unlock()
	if was {
		botlog.L().Warn("processing_flag_cleared")
	}
}

func (o *Orchestrator) SetEnabled(v bool) {
	o.mu.Lock()
	o.enabled = v
	o.mu.Unlock()
	botlog.L().Info("auto_move_toggled", zap.Bool("enabled", v))
	if v {
		o.maybeDecide()
	}
}

func (o *Orchestrator) Enabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.enabled
}

func (o *Orchestrator) SetFastMode(v bool) {
	o.mu.Lock()
	o.fastMode = v
	o.mu.Unlock()
}

func (o *Orchestrator) FastMode() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fastMode
}

// SetPanicMode는 버서크 모드 전환. 이후 전송의 b 필드와 랙 신고 공식이 바뀐다.
func (o *Orchestrator) SetPanicMode(v bool) {
	o.mu.Lock()
	o.panicMode = v
	o.mu.Unlock()
}

func (o *Orchestrator) PanicMode() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.panicMode
}

// SetPreset은 프리셋 교체. 진행 중인 판의 블런더 예산은 건드리지 않는다.
func (o *Orchestrator) SetPreset(p preset.PlayPreset) {
	o.mu.Lock()
	o.preset = p
	o.mu.Unlock()
	botlog.L().Info("preset_changed", zap.String("preset", p.Name))
}

func (o *Orchestrator) GameID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gameID
}

func (o *Orchestrator) buildRecord(status, winner string) domain.GameRecord {
	o.mu.Lock()
	gameID := o.gameID
	presetName := o.preset.Name
	startedAt := o.startedAt
	o.mu.Unlock()

	rec := domain.GameRecord{
		GameID:    gameID,
		Color:     colorName(o.obs.OurColor()),
		Preset:    presetName,
		Status:    status,
		Winner:    winner,
		MovesUCI:  o.obs.History(),
		FinalFEN:  o.obs.FEN(),
		Ply:       o.obs.Ply(),
		Blunders:  o.budget.Used(),
		StartedAt: startedAt,
	}
	if rec.Finished() {
		rec.EndedAt = time.Now()
		rec.Duration = rec.EndedAt.Sub(startedAt)
	}
	return rec
}

func candidateLines(lines []engine.Line) []pilotdto.CandidateLine {
	out := make([]pilotdto.CandidateLine, 0, len(lines))
	for _, ln := range lines {
		out = append(out, pilotdto.CandidateLine{
			Rank:      ln.Rank,
			MoveUCI:   ln.Move,
			EvalCP:    ln.EvalCP,
			MateIn:    ln.MateIn,
			Kind:      string(ln.Kind),
			Principal: append([]string(nil), ln.Principal...),
		})
	}
	return out
}

func selectorConfig(p preset.PlayPreset) picker.Config {
	return picker.Config{
		MaxCPLoss:        p.MaxCPLoss,
		RankWeights:      p.RankWeights,
		MaxBlunders:      p.MaxBlunders,
		BlunderThreshold: p.BlunderThreshold,
		BlunderChance:    p.BlunderChance,
	}
}

func colorName(c nchess.Color) string {
	if c == nchess.White {
		return "white"
	}
	return "black"
}
