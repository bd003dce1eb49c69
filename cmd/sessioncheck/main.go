package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"lichess-pilot/internal/account"
	"lichess-pilot/internal/guard"
	"lichess-pilot/internal/protocol"
	"lichess-pilot/internal/session"
)

func main() {
	baseURL := os.Getenv("LICHESS_BASE_URL")
	wsURL := os.Getenv("LICHESS_WS_URL")
	sessionFile := os.Getenv("SESSION_FILE")

	if baseURL == "" {
		baseURL = "https://lichess.org"
	}

	path, err := account.SessionPath(sessionFile)
	if err != nil {
		log.Fatalf("session path error: %v", err)
	}
	sess, err := account.LoadSession(path)
	if err != nil {
		log.Fatalf("session load error: %v", err)
	}
	log.Printf("session file: %s", path)

	client := account.NewClient(baseURL, sess,
		account.WithTimeout(8*time.Second),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	acct, err := client.Validate(ctx)
	if err != nil {
		log.Fatalf("/api/account error: %v", err)
	}
	log.Printf("/api/account ok: id=%s username=%s title=%s", acct.ID, acct.Username, acct.Title)

	pctx, pcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pcancel()
	games, err := client.Playing(pctx)
	if err != nil {
		log.Printf("/api/account/playing error: %v", err)
		return
	}
	if len(games) == 0 {
		log.Println("no games in progress")
		return
	}
	for _, g := range games {
		log.Printf("playing: game=%s color=%s myTurn=%v opponent=%s(%d) speed=%s",
			g.GameID, g.Color, g.IsMyTurn, g.Opponent.Username, g.Opponent.Rating, g.Speed)
	}

	if wsURL == "" {
		log.Println("LICHESS_WS_URL not set; skipping socket check")
		return
	}

	// 첫 판의 플레이 소켓을 잠깐 열어 프레임이 오는지 본다.
	target := games[0]
	playID := target.FullID
	if playID == "" {
		playID = target.GameID
	}
	transport := session.NewTransport(wsURL, playID, guard.NewState())
	transport.SetHeaderProvider(sess.Headers)
	transport.OnStateChange(func(state session.SocketState) {
		log.Printf("socket state: %s", state)
	})
	transport.OnFrame(func(env protocol.Envelope) {
		fmt.Printf("frame t=%s payload=%dB\n", env.T, len(env.D))
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := transport.Connect(cctx); err != nil {
		log.Printf("socket connect error: %v", err)
		return
	}

	t := time.NewTimer(10 * time.Second)
	<-t.C

	_ = transport.Close(context.Background())
}
