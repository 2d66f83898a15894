package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"foco/internal/analytics"
	"foco/internal/repository"
	"foco/pkg/metrics"
	"foco/pkg/rbac"
)

// AnalyticsCache 以 JSON 形式缓存聚合结果
type AnalyticsCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewAnalyticsCache(rdb *redis.Client, ttl time.Duration) *AnalyticsCache {
	return &AnalyticsCache{rdb: rdb, ttl: ttl}
}

// cached 命中直接返回；Redis 出错时退化为直接计算
func cached[T any](ctx context.Context, c *AnalyticsCache, logger *zap.Logger, key string, compute func() (T, error)) (T, error) {
	var out T
	if c != nil && c.ttl > 0 {
		if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
			if json.Unmarshal(raw, &out) == nil {
				metrics.RecordCacheLookup("analytics", true)
				return out, nil
			}
		}
		metrics.RecordCacheLookup("analytics", false)
	}

	out, err := compute()
	if err != nil {
		return out, err
	}
	if c != nil && c.ttl > 0 {
		if raw, err := json.Marshal(out); err == nil {
			if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
				logger.Warn("Failed to cache analytics", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return out, nil
}

type Dashboard struct {
	OrganizationID   uuid.UUID                `json:"organization_id"`
	ProjectsByStatus map[string]int           `json:"projects_by_status"`
	Tasks            analytics.ProjectMetrics `json:"tasks"`
	MinutesThisWeek  int                      `json:"minutes_this_week"`
	Goals            analytics.GoalsSummary   `json:"goals"`
	GeneratedAt      time.Time                `json:"generated_at"`
}

type AnalyticsService struct {
	orgs     *OrganizationService
	projects *ProjectService
	projRepo *repository.ProjectRepository
	tasks    *repository.TaskRepository
	entries  *repository.TimeEntryRepository
	goals    *repository.GoalRepository
	cache    *AnalyticsCache
	logger   *zap.Logger
	now      func() time.Time
}

func NewAnalyticsService(
	orgs *OrganizationService,
	projects *ProjectService,
	projRepo *repository.ProjectRepository,
	tasks *repository.TaskRepository,
	entries *repository.TimeEntryRepository,
	goals *repository.GoalRepository,
	cache *AnalyticsCache,
	logger *zap.Logger,
) *AnalyticsService {
	return &AnalyticsService{
		orgs:     orgs,
		projects: projects,
		projRepo: projRepo,
		tasks:    tasks,
		entries:  entries,
		goals:    goals,
		cache:    cache,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *AnalyticsService) Dashboard(ctx context.Context, userID, orgID uuid.UUID) (Dashboard, error) {
	if _, err := s.orgs.Authorize(ctx, orgID, userID, rbac.PermissionReadAnalytics); err != nil {
		return Dashboard{}, err
	}
	key := "foco:analytics:dashboard:" + orgID.String()
	return cached(ctx, s.cache, s.logger, key, func() (Dashboard, error) {
		now := s.now().UTC()
		projects, err := s.projRepo.ListByOrg(ctx, orgID)
		if err != nil {
			return Dashboard{}, err
		}
		tasks, err := s.tasks.ListByOrg(ctx, orgID)
		if err != nil {
			return Dashboard{}, err
		}
		week := analytics.WeekStart(now)
		entries, err := s.entries.List(ctx, repository.TimeEntryFilter{OrganizationID: orgID, From: week, To: week.AddDate(0, 0, 7)})
		if err != nil {
			return Dashboard{}, err
		}
		goals, err := s.goals.ListByOrg(ctx, orgID)
		if err != nil {
			return Dashboard{}, err
		}
		return Dashboard{
			OrganizationID:   orgID,
			ProjectsByStatus: analytics.ProjectsByStatus(projects),
			Tasks:            analytics.Project(tasks, now),
			MinutesThisWeek:  analytics.MinutesBetween(entries, week, week.AddDate(0, 0, 7)),
			Goals:            analytics.Goals(goals),
			GeneratedAt:      now,
		}, nil
	})
}

func (s *AnalyticsService) Project(ctx context.Context, userID, projectID uuid.UUID) (analytics.ProjectMetrics, error) {
	if _, _, err := s.projects.access(ctx, userID, projectID, rbac.PermissionReadAnalytics); err != nil {
		return analytics.ProjectMetrics{}, err
	}
	key := "foco:analytics:project:" + projectID.String()
	return cached(ctx, s.cache, s.logger, key, func() (analytics.ProjectMetrics, error) {
		tasks, err := s.tasks.ListByProject(ctx, projectID)
		if err != nil {
			return analytics.ProjectMetrics{}, err
		}
		return analytics.Project(tasks, s.now()), nil
	})
}

// Team 统计 [from, to) 内的工时；任务不按时间过滤
func (s *AnalyticsService) Team(ctx context.Context, userID, orgID uuid.UUID, from, to time.Time) ([]analytics.MemberProductivity, error) {
	if _, err := s.orgs.Authorize(ctx, orgID, userID, rbac.PermissionReadAnalytics); err != nil {
		return nil, err
	}
	key := fmt.Sprintf("foco:analytics:team:%s:%d:%d", orgID, from.Unix(), to.Unix())
	return cached(ctx, s.cache, s.logger, key, func() ([]analytics.MemberProductivity, error) {
		tasks, err := s.tasks.ListByOrg(ctx, orgID)
		if err != nil {
			return nil, err
		}
		entries, err := s.entries.List(ctx, repository.TimeEntryFilter{OrganizationID: orgID, From: from, To: to})
		if err != nil {
			return nil, err
		}
		return analytics.Team(tasks, entries), nil
	})
}

// TimeSeries projectID 为 Nil 时统计整个组织
func (s *AnalyticsService) TimeSeries(ctx context.Context, userID, orgID, projectID uuid.UUID, from, to time.Time) ([]analytics.Point, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: to is before from", ErrInvalidInput)
	}
	if to.Sub(from) > 366*24*time.Hour {
		return nil, fmt.Errorf("%w: range longer than a year", ErrInvalidInput)
	}
	f := repository.TimeEntryFilter{OrganizationID: orgID, From: from, To: to.AddDate(0, 0, 1)}
	if projectID != uuid.Nil {
		p, _, err := s.projects.access(ctx, userID, projectID, rbac.PermissionReadAnalytics)
		if err != nil {
			return nil, err
		}
		f.OrganizationID = p.OrganizationID
		f.ProjectID = projectID
	} else if _, err := s.orgs.Authorize(ctx, orgID, userID, rbac.PermissionReadAnalytics); err != nil {
		return nil, err
	}
	entries, err := s.entries.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return analytics.TimeSeries(entries, from, to), nil
}
