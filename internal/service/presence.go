package service

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"foco/internal/validation"
	"foco/pkg/rbac"
)

type Presence struct {
	UserID uuid.UUID `json:"user_id"`
	Cursor string    `json:"cursor,omitempty"`
	View   string    `json:"view,omitempty"`
	SeenAt time.Time `json:"seen_at"`
}

// PresenceTracker 每个项目一个 Redis hash：field 为用户 id，值为 JSON
type PresenceTracker struct {
	rdb        *redis.Client
	staleAfter time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

func NewPresenceTracker(rdb *redis.Client, staleAfter time.Duration, logger *zap.Logger) *PresenceTracker {
	if staleAfter <= 0 {
		staleAfter = 30 * time.Second
	}
	return &PresenceTracker{rdb: rdb, staleAfter: staleAfter, logger: logger, now: time.Now}
}

func presenceKey(projectID uuid.UUID) string {
	return "foco:presence:" + projectID.String()
}

// Heartbeat 整个 hash 的 TTL 为两个过期窗口，没人在线时自动消失
func (t *PresenceTracker) Heartbeat(ctx context.Context, projectID uuid.UUID, p Presence) error {
	p.SeenAt = t.now().UTC()
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	key := presenceKey(projectID)
	pipe := t.rdb.TxPipeline()
	pipe.HSet(ctx, key, p.UserID.String(), raw)
	pipe.Expire(ctx, key, 2*t.staleAfter)
	_, err = pipe.Exec(ctx)
	return err
}

// List 返回窗口内活跃的用户，顺带删除过期条目
func (t *PresenceTracker) List(ctx context.Context, projectID uuid.UUID) ([]Presence, error) {
	key := presenceKey(projectID)
	all, err := t.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	cutoff := t.now().UTC().Add(-t.staleAfter)
	out := []Presence{}
	var stale []string
	for field, raw := range all {
		var p Presence
		if json.Unmarshal([]byte(raw), &p) != nil || p.SeenAt.Before(cutoff) {
			stale = append(stale, field)
			continue
		}
		out = append(out, p)
	}
	// 清理失败不影响本次结果，下次 List 会再试
	if len(stale) > 0 {
		if err := t.rdb.HDel(ctx, key, stale...).Err(); err != nil {
			t.logger.Warn("Failed to prune stale presence",
				zap.String("project_id", projectID.String()),
				zap.Int("stale", len(stale)),
				zap.Error(err),
			)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID.String() < out[j].UserID.String() })
	return out, nil
}

func (t *PresenceTracker) Leave(ctx context.Context, projectID, userID uuid.UUID) error {
	return t.rdb.HDel(ctx, presenceKey(projectID), userID.String()).Err()
}

type PresenceService struct {
	projects *ProjectService
	tracker  *PresenceTracker
	logger   *zap.Logger
}

func NewPresenceService(projects *ProjectService, tracker *PresenceTracker, logger *zap.Logger) *PresenceService {
	return &PresenceService{projects: projects, tracker: tracker, logger: logger}
}

func (s *PresenceService) Heartbeat(ctx context.Context, userID, projectID uuid.UUID, in validation.PresenceInput) ([]Presence, error) {
	if err := validation.Validate(in); err != nil {
		return nil, err
	}
	if _, _, err := s.projects.access(ctx, userID, projectID, rbac.PermissionReadProject); err != nil {
		return nil, err
	}
	if err := s.tracker.Heartbeat(ctx, projectID, Presence{UserID: userID, Cursor: in.Cursor, View: in.View}); err != nil {
		return nil, err
	}
	return s.tracker.List(ctx, projectID)
}

func (s *PresenceService) List(ctx context.Context, userID, projectID uuid.UUID) ([]Presence, error) {
	if _, _, err := s.projects.access(ctx, userID, projectID, rbac.PermissionReadProject); err != nil {
		return nil, err
	}
	return s.tracker.List(ctx, projectID)
}

func (s *PresenceService) Leave(ctx context.Context, userID, projectID uuid.UUID) error {
	return s.tracker.Leave(ctx, projectID, userID)
}
