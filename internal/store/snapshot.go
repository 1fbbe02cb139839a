package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/stitts-dev/fpl-squad-optimizer/internal/models"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotRecord heads an immutable player pool
type SnapshotRecord struct {
	ID          string `gorm:"primaryKey;size:36"`
	Label       string
	PlayerCount int
	CreatedAt   time.Time
}

func (SnapshotRecord) TableName() string { return "snapshots" }

type TeamRecord struct {
	ID            uint   `gorm:"primaryKey"`
	SnapshotID    string `gorm:"size:36;index;not null"`
	Code          string `gorm:"not null"`
	Name          string
	MaxSelectable int
}

func (TeamRecord) TableName() string { return "snapshot_teams" }

type PlayerRecord struct {
	ID         uint   `gorm:"primaryKey"`
	SnapshotID string `gorm:"size:36;index;not null"`
	PlayerID   int    `gorm:"not null"`
	Name       string
	Position   string `gorm:"not null"`
	Team       string `gorm:"index"`
	Cost       int
	Metrics    datatypes.JSONMap
}

func (PlayerRecord) TableName() string { return "snapshot_players" }

// SnapshotSummary describes a stored snapshot without its rows
type SnapshotSummary struct {
	ID          string    `json:"id"`
	Label       string    `json:"label"`
	PlayerCount int       `json:"player_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// SaveSnapshot validates and stores pool under a new id
func (db *DB) SaveSnapshot(ctx context.Context, label string, pool models.Pool) (string, error) {
	if err := pool.Validate(); err != nil {
		return "", fmt.Errorf("invalid pool: %w", err)
	}

	id := uuid.New().String()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&SnapshotRecord{ID: id, Label: label, PlayerCount: len(pool.Players)}).Error; err != nil {
			return err
		}

		if len(pool.Teams) > 0 {
			teams := make([]TeamRecord, len(pool.Teams))
			for i, t := range pool.Teams {
				teams[i] = TeamRecord{SnapshotID: id, Code: t.Code, Name: t.Name, MaxSelectable: t.MaxSelectable}
			}
			if err := tx.CreateInBatches(teams, 200).Error; err != nil {
				return err
			}
		}

		if len(pool.Players) > 0 {
			players := make([]PlayerRecord, len(pool.Players))
			for i, p := range pool.Players {
				metrics := make(datatypes.JSONMap, len(p.Metrics))
				for k, v := range p.Metrics {
					metrics[k] = v
				}
				players[i] = PlayerRecord{
					SnapshotID: id,
					PlayerID:   p.ID,
					Name:       p.Name,
					Position:   string(p.Position),
					Team:       p.Team,
					Cost:       p.Cost,
					Metrics:    metrics,
				}
			}
			if err := tx.CreateInBatches(players, 200).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to save snapshot: %w", err)
	}
	return id, nil
}

// LoadSnapshot rebuilds the pool stored under id, players in id order
func (db *DB) LoadSnapshot(ctx context.Context, id string) (models.Pool, error) {
	var head SnapshotRecord
	err := db.WithContext(ctx).First(&head, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Pool{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	if err != nil {
		return models.Pool{}, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var teams []TeamRecord
	if err := db.WithContext(ctx).Where("snapshot_id = ?", id).Order("code").Find(&teams).Error; err != nil {
		return models.Pool{}, fmt.Errorf("failed to load snapshot teams: %w", err)
	}
	var players []PlayerRecord
	if err := db.WithContext(ctx).Where("snapshot_id = ?", id).Order("player_id").Find(&players).Error; err != nil {
		return models.Pool{}, fmt.Errorf("failed to load snapshot players: %w", err)
	}

	pool := models.Pool{
		Players: make([]models.Player, 0, len(players)),
		Teams:   make([]models.Team, 0, len(teams)),
	}
	for _, t := range teams {
		pool.Teams = append(pool.Teams, models.Team{Code: t.Code, Name: t.Name, MaxSelectable: t.MaxSelectable})
	}
	for _, r := range players {
		p, err := r.toPlayer()
		if err != nil {
			return models.Pool{}, err
		}
		pool.Players = append(pool.Players, p)
	}
	return pool, nil
}

// ListSnapshots returns the newest snapshots first
func (db *DB) ListSnapshots(ctx context.Context, limit int) ([]SnapshotSummary, error) {
	var heads []SnapshotRecord
	q := db.WithContext(ctx).Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&heads).Error; err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	out := make([]SnapshotSummary, len(heads))
	for i, h := range heads {
		out[i] = SnapshotSummary{ID: h.ID, Label: h.Label, PlayerCount: h.PlayerCount, CreatedAt: h.CreatedAt}
	}
	return out, nil
}

func (r PlayerRecord) toPlayer() (models.Player, error) {
	pos, err := models.ParsePosition(r.Position)
	if err != nil {
		return models.Player{}, fmt.Errorf("snapshot player %d: %w", r.PlayerID, err)
	}
	metrics := make(map[string]float64, len(r.Metrics))
	for k, v := range r.Metrics {
		switch n := v.(type) {
		case json.Number:
			f, err := n.Float64()
			if err != nil {
				return models.Player{}, fmt.Errorf("snapshot player %d metric %s: %w", r.PlayerID, k, err)
			}
			metrics[k] = f
		case float64:
			metrics[k] = n
		case int:
			metrics[k] = float64(n)
		case int64:
			metrics[k] = float64(n)
		}
	}
	return models.Player{
		ID:       r.PlayerID,
		Name:     r.Name,
		Position: pos,
		Team:     r.Team,
		Cost:     r.Cost,
		Metrics:  metrics,
	}, nil
}
