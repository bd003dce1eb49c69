package record

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"lichess-pilot/internal/domain"
)

// Archive는 종료된 판을 Postgres에 남긴다. pilot_games 테이블 스키마는 외부에서 관리.
type Archive struct {
	db *sql.DB
}

func NewArchive(databaseURL string) (*Archive, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Archive{db: db}, nil
}

func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// SaveResult는 종료 기록을 업서트한다. 종료 프레임이 재전송돼도 멱등.
func (a *Archive) SaveResult(ctx context.Context, rec *domain.GameRecord) error {
	if a == nil || a.db == nil || rec == nil {
		return nil
	}
	if !rec.Finished() {
		return nil
	}

	movesUCI, err := json.Marshal(rec.MovesUCI)
	if err != nil {
		return fmt.Errorf("marshal moves_uci: %w", err)
	}

	const query = `
		INSERT INTO pilot_games (
			game_id,
			color,
			preset,
			status,
			winner,
			moves_uci,
			final_fen,
			ply,
			blunders,
			started_at,
			ended_at,
			duration_ms,
			avg_claimed_lag_ms,
			snapshot_path
		)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (game_id) DO UPDATE SET
			color = EXCLUDED.color,
			preset = EXCLUDED.preset,
			status = EXCLUDED.status,
			winner = EXCLUDED.winner,
			moves_uci = EXCLUDED.moves_uci,
			final_fen = EXCLUDED.final_fen,
			ply = EXCLUDED.ply,
			blunders = EXCLUDED.blunders,
			started_at = EXCLUDED.started_at,
			ended_at = EXCLUDED.ended_at,
			duration_ms = EXCLUDED.duration_ms,
			avg_claimed_lag_ms = EXCLUDED.avg_claimed_lag_ms,
			snapshot_path = EXCLUDED.snapshot_path`

	_, err = a.db.ExecContext(
		ctx,
		query,
		rec.GameID,
		rec.Color,
		rec.Preset,
		rec.Status,
		rec.Winner,
		movesUCI,
		rec.FinalFEN,
		rec.Ply,
		rec.Blunders,
		rec.StartedAt,
		rec.EndedAt,
		rec.Duration.Milliseconds(),
		rec.AvgLagMs,
		rec.SnapshotPath,
	)
	if err != nil {
		return fmt.Errorf("upsert pilot game: %w", err)
	}
	return nil
}

// RecentGames는 종료 시각 역순으로 보관 기록을 읽는다.
func (a *Archive) RecentGames(ctx context.Context, limit int) ([]*domain.GameRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `
		SELECT
			game_id,
			color,
			preset,
			status,
			winner,
			moves_uci,
			final_fen,
			ply,
			blunders,
			started_at,
			ended_at,
			duration_ms,
			avg_claimed_lag_ms,
			snapshot_path
		FROM pilot_games
		ORDER BY ended_at DESC
		LIMIT $1`

	rows, err := a.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("select pilot games: %w", err)
	}
	defer rows.Close()

	records := make([]*domain.GameRecord, 0, limit)
	for rows.Next() {
		var (
			rec          domain.GameRecord
			movesUCIJSON []byte
			durationMS   sql.NullInt64
			winner       sql.NullString
			snapshotPath sql.NullString
		)
		if err := rows.Scan(
			&rec.GameID,
			&rec.Color,
			&rec.Preset,
			&rec.Status,
			&winner,
			&movesUCIJSON,
			&rec.FinalFEN,
			&rec.Ply,
			&rec.Blunders,
			&rec.StartedAt,
			&rec.EndedAt,
			&durationMS,
			&rec.AvgLagMs,
			&snapshotPath,
		); err != nil {
			return nil, fmt.Errorf("scan pilot game: %w", err)
		}
		if winner.Valid {
			rec.Winner = winner.String
		}
		if snapshotPath.Valid {
			rec.SnapshotPath = snapshotPath.String
		}
		if durationMS.Valid {
			rec.Duration = time.Duration(durationMS.Int64) * time.Millisecond
		}
		if err := json.Unmarshal(movesUCIJSON, &rec.MovesUCI); err != nil {
			return nil, fmt.Errorf("unmarshal moves_uci: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// LoadGame은 game_id로 단건 조회. 없으면 (nil, nil).
func (a *Archive) LoadGame(ctx context.Context, gameID string) (*domain.GameRecord, error) {
	const query = `
		SELECT
			game_id,
			color,
			preset,
			status,
			winner,
			moves_uci,
			final_fen,
			ply,
			blunders,
			started_at,
			ended_at,
			duration_ms,
			avg_claimed_lag_ms,
			snapshot_path
		FROM pilot_games
		WHERE game_id = $1`

	var (
		rec          domain.GameRecord
		movesUCIJSON []byte
		durationMS   sql.NullInt64
		winner       sql.NullString
		snapshotPath sql.NullString
	)
	err := a.db.QueryRowContext(ctx, query, gameID).Scan(
		&rec.GameID,
		&rec.Color,
		&rec.Preset,
		&rec.Status,
		&winner,
		&movesUCIJSON,
		&rec.FinalFEN,
		&rec.Ply,
		&rec.Blunders,
		&rec.StartedAt,
		&rec.EndedAt,
		&durationMS,
		&rec.AvgLagMs,
		&snapshotPath,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select pilot game: %w", err)
	}
	if winner.Valid {
		rec.Winner = winner.String
	}
	if snapshotPath.Valid {
		rec.SnapshotPath = snapshotPath.String
	}
	if durationMS.Valid {
		rec.Duration = time.Duration(durationMS.Int64) * time.Millisecond
	}
	if err := json.Unmarshal(movesUCIJSON, &rec.MovesUCI); err != nil {
		return nil, fmt.Errorf("unmarshal moves_uci: %w", err)
	}
	return &rec, nil
}
