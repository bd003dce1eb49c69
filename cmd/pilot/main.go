package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	nchess "github.com/corentings/chess/v2"
	"go.uber.org/zap"

	"lichess-pilot/internal/account"
	"lichess-pilot/internal/botlog"
	"lichess-pilot/internal/builder"
	"lichess-pilot/internal/config"
	"lichess-pilot/internal/guard"
	"lichess-pilot/internal/orchestrator"
	"lichess-pilot/internal/session"
	"lichess-pilot/internal/watch"
)

const (
	connectTimeout = 10 * time.Second
	closeTimeout   = 5 * time.Second

	// 소켓 재접속: 선형 지연, 제한 횟수.
	redialDelay = time.Second
	maxRedial   = 5
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := botlog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	deps, err := builder.New(cfg)
	if err != nil {
		log.Fatalf("component init error: %v", err)
	}

	sessPath, err := account.SessionPath(cfg.SessionFile)
	if err != nil {
		log.Fatalf("session path error: %v", err)
	}
	sess, err := account.LoadSession(sessPath)
	if err != nil {
		log.Fatalf("session load error: %v", err)
	}

	client := account.NewClient(cfg.LichessBaseURL, sess)
	vctx, vcancel := context.WithTimeout(context.Background(), connectTimeout)
	acct, err := client.Validate(vctx)
	vcancel()
	if err != nil {
		log.Fatalf("session validate error: %v", err)
	}
	botlog.L().Info("account_ready",
		zap.String("username", acct.Username),
		zap.String("title", acct.Title))

	gctx, gcancel := context.WithTimeout(context.Background(), connectTimeout)
	game, err := resolveGame(gctx, client, cfg.GameID)
	gcancel()
	if err != nil {
		log.Fatalf("game lookup error: %v", err)
	}
	playID := game.FullID
	if playID == "" {
		playID = game.GameID
	}
	our := nchess.White
	if strings.EqualFold(game.Color, "black") {
		our = nchess.Black
	}
	botlog.L().Info("game_resolved",
		zap.String("game_id", game.GameID),
		zap.String("color", game.Color),
		zap.String("opponent", game.Opponent.Username),
		zap.Bool("my_turn", game.IsMyTurn))

	transport := session.NewTransport(cfg.LichessWSURL, playID, deps.Guard)
	transport.SetHeaderProvider(sess.Headers)

	orch := orchestrator.New(orchestrator.Deps{
		Guard:     deps.Guard,
		Observer:  deps.Tracker,
		Pipeline:  deps.Pipeline,
		Selector:  deps.Selector,
		Budget:    deps.Budget,
		Simulator: deps.Simulator,
		Lag:       deps.Lag,
		Sender:    transport,
		Panel:     deps.Panel,
		Recorder:  deps.Recorder,
	}, deps.Preset)
	orch.SetFastMode(cfg.FastMode)
	orch.SetPanicMode(cfg.PanicMode)

	transport.OnFrame(orch.HandleFrame)

	stopCh := make(chan struct{})
	redialCh := make(chan struct{}, 1)
	transport.OnStateChange(func(state session.SocketState) {
		botlog.L().Info("socket_state", zap.String("state", state.String()))
		switch state {
		case session.StateOpen:
			// 재연결 직후 미확인 수를 다시 밀어 넣는다.
			go orch.ResubmitPending()
		case session.StateClosed:
			select {
			case redialCh <- struct{}{}:
			default:
			}
		}
	})

	watchdog := watch.New(watch.Deps{
		Oracle: deps.Fast,
		Driver: orch,
		Guard:  deps.Guard,
		Turn:   deps.Tracker,
	})
	watchdog.Start()

	// 소켓을 열기 전에 관찰 계층을 준비해 둔다. 첫 풀 스테이트 프레임이
	// 도착할 때 받아줄 곳이 있어야 한다.
	if err := orch.HandleGameStart(game.GameID, our, game.FEN); err != nil {
		log.Fatalf("game start error: %v", err)
	}

	cctx, ccancel := context.WithTimeout(context.Background(), connectTimeout)
	if err := transport.Connect(cctx); err != nil {
		ccancel()
		log.Fatalf("socket connect error: %v", err)
	}
	ccancel()

	go redialLoop(transport, deps.Guard, redialCh, stopCh)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	botlog.L().Info("shutdown_signal")

	close(stopCh)
	watchdog.Stop()
	clctx, clcancel := context.WithTimeout(context.Background(), closeTimeout)
	_ = transport.Close(clctx)
	clcancel()
	_ = deps.Close()
}

// resolveGame은 조종할 대국을 정한다. GAME_ID가 있으면 진행 목록에서 찾고,
// 없으면 계정의 활성 대국을 쓴다.
func resolveGame(ctx context.Context, client *account.Client, explicit string) (account.PlayingGame, error) {
	explicit = strings.TrimSpace(explicit)
	if explicit == "" {
		game, ok, err := client.ActiveGame(ctx)
		if err != nil {
			return account.PlayingGame{}, err
		}
		if !ok {
			return account.PlayingGame{}, fmt.Errorf("no active game for this account; set GAME_ID or start one")
		}
		return game, nil
	}
	games, err := client.Playing(ctx)
	if err != nil {
		return account.PlayingGame{}, err
	}
	for _, g := range games {
		if g.GameID == explicit || g.FullID == explicit {
			return g, nil
		}
	}
	return account.PlayingGame{}, fmt.Errorf("game %q not found among playing games", explicit)
}

// redialLoop는 닫힘 알림마다 제한 횟수 재접속을 시도한다.
// 대국이 끝났거나 횟수를 소진하면 조용히 물러난다.
func redialLoop(t *session.Transport, st *guard.State, redialCh <-chan struct{}, stopCh <-chan struct{}) {
	for {
		select {
		case <-stopCh:
			return
		case <-redialCh:
		}
		if st.Ended() {
			botlog.L().Info("redial_skipped_game_over")
			return
		}
		if t.State() != session.StateClosed {
			continue
		}
		if !redial(t, st, stopCh) {
			return
		}
	}
}

func redial(t *session.Transport, st *guard.State, stopCh <-chan struct{}) bool {
	for attempt := 1; attempt <= maxRedial; attempt++ {
		select {
		case <-stopCh:
			return false
		case <-time.After(redialDelay * time.Duration(attempt)):
		}
		if st.Ended() {
			return false
		}
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		err := t.Connect(ctx)
		cancel()
		if err == nil {
			botlog.L().Info("socket_redialed", zap.Int("attempt", attempt))
			return true
		}
		botlog.L().Warn("socket_redial_failed",
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	botlog.L().Error("socket_redial_exhausted", zap.Int("attempts", maxRedial))
	return false
}
