package record

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"lichess-pilot/internal/botlog"
	"lichess-pilot/internal/domain"
)

const recordTimeout = 5 * time.Second

// LagSource는 종료 기록에 남길 평균 신고 랙을 내준다. internal/lag.Estimator가 구현.
type LagSource interface {
	Average() int
}

// Snapshotter는 최종 국면을 PNG로 그린다. internal/snapshot.Renderer가 구현.
type Snapshotter interface {
	RenderFEN(fen string, lastMoveUCI string, flip bool) ([]byte, error)
}

// Recorder는 오케스트레이터의 기록 훅을 저장소들로 흘려보낸다.
// 저장 실패는 로그만 남긴다. 기록 때문에 대국 루프를 세우지 않는다.
type Recorder struct {
	store       Store
	archive     *Archive
	snapshots   Snapshotter
	snapshotDir string
	lag         LagSource
}

func NewRecorder(store Store, archive *Archive, snapshots Snapshotter, snapshotDir string, lag LagSource) *Recorder {
	return &Recorder{
		store:       store,
		archive:     archive,
		snapshots:   snapshots,
		snapshotDir: snapshotDir,
		lag:         lag,
	}
}

func (r *Recorder) GameStarted(rec domain.GameRecord) {
	if r == nil || r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := r.store.Save(ctx, rec); err != nil {
		botlog.L().Warn("record_save_error", zap.String("game_id", rec.GameID), zap.Error(err))
	}
}

func (r *Recorder) GameFinished(rec domain.GameRecord) {
	if r == nil {
		return
	}
	if r.lag != nil {
		rec.AvgLagMs = r.lag.Average()
	}
	rec.SnapshotPath = r.writeSnapshot(&rec)

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if r.store != nil {
		if err := r.store.Finish(ctx, rec); err != nil {
			botlog.L().Warn("record_finish_error", zap.String("game_id", rec.GameID), zap.Error(err))
		}
	}
	if r.archive != nil {
		if err := r.archive.SaveResult(ctx, &rec); err != nil {
			botlog.L().Error("record_archive_error", zap.String("game_id", rec.GameID), zap.Error(err))
		} else {
			botlog.L().Info("record_archived",
				zap.String("game_id", rec.GameID),
				zap.String("status", rec.Status),
				zap.Int("ply", rec.Ply))
		}
	}
}

// writeSnapshot은 최종 국면 PNG를 스냅샷 디렉터리에 남기고 경로를 돌려준다.
// 렌더러가 없거나 실패하면 빈 문자열.
func (r *Recorder) writeSnapshot(rec *domain.GameRecord) string {
	if r.snapshots == nil || r.snapshotDir == "" || rec.FinalFEN == "" {
		return ""
	}
	lastMove := ""
	if n := len(rec.MovesUCI); n > 0 {
		lastMove = rec.MovesUCI[n-1]
	}
	flip := rec.Color == "black"
	data, err := r.snapshots.RenderFEN(rec.FinalFEN, lastMove, flip)
	if err != nil {
		botlog.L().Warn("snapshot_render_error", zap.String("game_id", rec.GameID), zap.Error(err))
		return ""
	}
	if err := os.MkdirAll(r.snapshotDir, 0o755); err != nil {
		botlog.L().Warn("snapshot_dir_error", zap.String("dir", r.snapshotDir), zap.Error(err))
		return ""
	}
	path := filepath.Join(r.snapshotDir, rec.GameID+".png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		botlog.L().Warn("snapshot_write_error", zap.String("path", path), zap.Error(err))
		return ""
	}
	botlog.L().Info("snapshot_saved", zap.String("game_id", rec.GameID), zap.String("path", path))
	return path
}
