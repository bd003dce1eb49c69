package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"lichess-pilot/internal/botlog"
	"lichess-pilot/internal/engine/uci"
)

// 주 오라클 응답 천장. 이걸 넘기면 빈 목록으로라도 반드시 돌아온다.
const primaryCeiling = 2000 * time.Millisecond

const maxMultiPV = 4

// Primary는 풀에서 세션을 빌려 multipv 탐색을 돌리는 주 오라클.
type Primary struct {
	pool *uci.Pool
	opt  uci.Options
}

func NewPrimary(pool *uci.Pool, opt uci.Options) *Primary {
	if opt.MultiPV <= 0 || opt.MultiPV > maxMultiPV {
		opt.MultiPV = maxMultiPV
	}
	return &Primary{pool: pool, opt: opt}
}

func (p *Primary) Analyse(ctx context.Context, req Request) ([]Line, error) {
	budget := req.BudgetMs
	if budget <= 0 {
		budget = 400
	}

	start := time.Now()
	ceilCtx, cancel := context.WithTimeout(ctx, primaryCeiling)
	defer cancel()

	session, err := p.pool.Acquire(ceilCtx, p.opt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			botlog.L().Warn("primary_oracle_ceiling",
				zap.String("fen", req.FEN),
				zap.Duration("elapsed", time.Since(start)))
			return nil, nil
		}
		return nil, err
	}
	var releaseErr error
	defer func() {
		p.pool.Release(session, releaseErr)
	}()

	if err := session.NewGame(ceilCtx); err != nil {
		releaseErr = err
		return nil, err
	}

	resp, err := session.Search(ceilCtx, uci.SearchRequest{
		FEN:    req.FEN,
		Moves:  req.Moves,
		Limits: uci.Limits{MoveTimeMillis: budget},
	})
	if err != nil {
		releaseErr = err
		if errors.Is(err, context.DeadlineExceeded) {
			// 천장 초과: 막히지 않고 빈 목록으로 돌아간다.
			botlog.L().Warn("primary_oracle_ceiling",
				zap.String("fen", req.FEN),
				zap.Duration("elapsed", time.Since(start)))
			return nil, nil
		}
		return nil, err
	}

	lines := linesFromCandidates(resp.Candidates)
	botlog.L().Debug("primary_oracle_done",
		zap.Int("lines", len(lines)),
		zap.Duration("elapsed", time.Since(start)))
	return lines, nil
}
