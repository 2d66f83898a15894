package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	contracts "foco/contracts/mq"
	"foco/internal/filtering"
	"foco/internal/model"
	"foco/internal/reorder"
	"foco/internal/repository"
	"foco/internal/validation"
	"foco/pkg/db"
	"foco/pkg/metrics"
	"foco/pkg/outbox"
	"foco/pkg/rbac"
	"foco/pkg/trace"
)

// 任务来源，用于指标标签和 task.created 事件
const (
	SourceAPI    = "api"
	SourceVoice  = "voice"
	SourceImport = "import"
)

type TaskService struct {
	db          db.Querier
	projects    *ProjectService
	tasks       *repository.TaskRepository
	projectRepo *repository.ProjectRepository
	milestones  *repository.MilestoneRepository
	events      outbox.Writer
	logger      *zap.Logger
	now         func() time.Time
}

func NewTaskService(
	q db.Querier,
	projects *ProjectService,
	tasks *repository.TaskRepository,
	projectRepo *repository.ProjectRepository,
	milestones *repository.MilestoneRepository,
	events outbox.Writer,
	logger *zap.Logger,
) *TaskService {
	return &TaskService{
		db:          q,
		projects:    projects,
		tasks:       tasks,
		projectRepo: projectRepo,
		milestones:  milestones,
		events:      events,
		logger:      logger,
		now:         time.Now,
	}
}

// access 加载任务及其项目并校验权限
func (s *TaskService) access(ctx context.Context, userID, taskID uuid.UUID, perm rbac.Permission) (*model.Task, *model.Project, error) {
	t, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	p, _, err := s.projects.access(ctx, userID, t.ProjectID, perm)
	if err != nil {
		return nil, nil, err
	}
	return t, p, nil
}

// checkRefs 里程碑必须属于同一项目，被指派人必须是组织成员
func (s *TaskService) checkRefs(ctx context.Context, p *model.Project, milestoneID, assigneeID *uuid.UUID) error {
	var errs validation.Errors
	if milestoneID != nil {
		m, err := s.milestones.Get(ctx, *milestoneID)
		switch {
		case errors.Is(err, repository.ErrNotFound) || (err == nil && m.ProjectID != p.ID):
			errs = append(errs, validation.FieldError{Field: "milestone_id", Rule: "exists", Message: "milestone_id does not belong to this project"})
		case err != nil:
			return err
		}
	}
	if assigneeID != nil {
		ok, err := s.projects.orgs.IsMember(ctx, p.OrganizationID, *assigneeID)
		if err != nil {
			return err
		}
		if !ok {
			errs = append(errs, validation.FieldError{Field: "assignee_id", Rule: "member", Message: "assignee_id must be a member of the organization"})
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (s *TaskService) Create(ctx context.Context, userID, projectID uuid.UUID, in validation.TaskInput, source string) (*model.Task, error) {
	if err := validation.Validate(in); err != nil {
		return nil, err
	}
	p, _, err := s.projects.access(ctx, userID, projectID, rbac.PermissionWriteTask)
	if err != nil {
		return nil, err
	}
	if err := s.checkRefs(ctx, p, in.MilestoneID, in.AssigneeID); err != nil {
		return nil, err
	}

	t := &model.Task{
		ID:             uuid.New(),
		ProjectID:      projectID,
		MilestoneID:    in.MilestoneID,
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		Status:         in.Status,
		Priority:       in.Priority,
		AssigneeID:     in.AssigneeID,
		ReporterID:     userID,
		DueDate:        in.DueDate,
		EstimatedHours: in.EstimatedHours,
		Tags:           NormalizeTags(in.Tags),
	}
	if t.Status == "" {
		t.Status = model.TaskTodo
	}
	if t.Priority == "" {
		t.Priority = model.PriorityMedium
	}
	if t.IsDone() {
		now := s.now()
		t.CompletedAt = &now
	}

	err = db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := s.tasks.WithQuerier(tx).Insert(ctx, t); err != nil {
			return err
		}
		err := s.events.Write(ctx, tx, contracts.AggregateTask, t.ID.String(), contracts.TaskCreated, contracts.TaskCreatedPayload{
			TaskID:    t.ID,
			ProjectID: t.ProjectID,
			Title:     t.Title,
			Status:    string(t.Status),
			CreatedBy: userID,
			Source:    source,
			TraceID:   trace.FromContext(ctx),
		})
		if err != nil {
			return err
		}
		if t.AssigneeID != nil {
			if err := s.writeAssigned(ctx, tx, t, p, userID); err != nil {
				return err
			}
		}
		return s.recalculate(ctx, tx, t.ProjectID, t.MilestoneID)
	})
	if err != nil {
		return nil, err
	}

	metrics.IncrementTaskCreated(source)
	s.logger.Info("Task created",
		zap.String("task_id", t.ID.String()),
		zap.String("project_id", projectID.String()),
		zap.String("source", source),
	)
	return t, nil
}

func (s *TaskService) Get(ctx context.Context, userID, taskID uuid.UUID) (*model.Task, error) {
	t, _, err := s.access(ctx, userID, taskID, rbac.PermissionReadProject)
	return t, err
}

func (s *TaskService) List(ctx context.Context, userID, projectID uuid.UUID, opts filtering.Options) (filtering.Page[*model.Task], error) {
	if _, _, err := s.projects.access(ctx, userID, projectID, rbac.PermissionReadProject); err != nil {
		return filtering.Page[*model.Task]{}, err
	}
	tasks, err := s.tasks.ListByProject(ctx, projectID)
	if err != nil {
		return filtering.Page[*model.Task]{}, err
	}
	return filtering.Apply(tasks, opts)
}

// ListForOrg 组织内全部任务（跨项目）
func (s *TaskService) ListForOrg(ctx context.Context, userID, orgID uuid.UUID, opts filtering.Options) (filtering.Page[*model.Task], error) {
	if _, err := s.projects.orgs.Authorize(ctx, orgID, userID, rbac.PermissionReadProject); err != nil {
		return filtering.Page[*model.Task]{}, err
	}
	tasks, err := s.tasks.ListByOrg(ctx, orgID)
	if err != nil {
		return filtering.Page[*model.Task]{}, err
	}
	return filtering.Apply(tasks, opts)
}

// Board 按状态分组的看板视图
func (s *TaskService) Board(ctx context.Context, userID, projectID uuid.UUID) (map[model.TaskStatus][]*model.Task, error) {
	page, err := s.List(ctx, userID, projectID, filtering.Options{Sort: []filtering.SortKey{{Field: "position"}}})
	if err != nil {
		return nil, err
	}
	board := make(map[model.TaskStatus][]*model.Task, len(model.TaskStatuses))
	for _, st := range model.TaskStatuses {
		board[st] = []*model.Task{}
	}
	groups := filtering.GroupBy(page.Items, "status")
	for _, key := range groups.Keys {
		board[model.TaskStatus(key)] = groups.Items[key]
	}
	return board, nil
}

func (s *TaskService) Update(ctx context.Context, userID, taskID uuid.UUID, in validation.TaskUpdateInput) (*model.Task, error) {
	if err := validation.Validate(in); err != nil {
		return nil, err
	}
	t, p, err := s.access(ctx, userID, taskID, rbac.PermissionWriteTask)
	if err != nil {
		return nil, err
	}
	if err := s.checkRefs(ctx, p, in.MilestoneID, in.AssigneeID); err != nil {
		return nil, err
	}

	prevStatus := t.Status
	prevAssignee := t.AssigneeID
	prevMilestone := t.MilestoneID

	if in.Title != nil {
		t.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		t.Description = *in.Description
	}
	if in.Priority != nil {
		t.Priority = *in.Priority
	}
	if in.MilestoneID != nil {
		t.MilestoneID = in.MilestoneID
	}
	if in.ClearAssignee {
		t.AssigneeID = nil
	} else if in.AssigneeID != nil {
		t.AssigneeID = in.AssigneeID
	}
	if in.DueDate != nil {
		t.DueDate = in.DueDate
	}
	if in.EstimatedHours != nil {
		t.EstimatedHours = in.EstimatedHours
	}
	if in.Tags != nil {
		t.Tags = NormalizeTags(*in.Tags)
	}
	if in.Status != nil {
		s.applyStatus(t, *in.Status)
	}

	err = db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		tasks := s.tasks.WithQuerier(tx)
		if t.Status != prevStatus {
			// 换列后排在新列末尾
			col, err := tasks.ListColumn(ctx, t.ProjectID, t.Status)
			if err != nil {
				return err
			}
			t.Position = endPosition(col)
		}
		if err := tasks.Update(ctx, t); err != nil {
			return err
		}
		if t.Status != prevStatus {
			if err := s.writeStatusChanged(ctx, tx, t, prevStatus, userID); err != nil {
				return err
			}
		}
		if t.AssigneeID != nil && !sameID(prevAssignee, t.AssigneeID) {
			if err := s.writeAssigned(ctx, tx, t, p, userID); err != nil {
				return err
			}
		}
		if t.Status != prevStatus || !sameID(prevMilestone, t.MilestoneID) {
			if err := s.recalculate(ctx, tx, t.ProjectID, t.MilestoneID); err != nil {
				return err
			}
			if prevMilestone != nil && !sameID(prevMilestone, t.MilestoneID) {
				if _, err := s.milestones.WithQuerier(tx).RecalculateProgress(ctx, *prevMilestone); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Task updated", zap.String("task_id", t.ID.String()), zap.String("status", string(t.Status)))
	return t, nil
}

func (s *TaskService) Delete(ctx context.Context, userID, taskID uuid.UUID) error {
	t, _, err := s.access(ctx, userID, taskID, rbac.PermissionWriteTask)
	if err != nil {
		return err
	}
	err = db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := s.tasks.WithQuerier(tx).Delete(ctx, taskID); err != nil {
			return err
		}
		return s.recalculate(ctx, tx, t.ProjectID, t.MilestoneID)
	})
	if err != nil {
		return err
	}
	s.logger.Info("Task deleted", zap.String("task_id", taskID.String()))
	return nil
}

// Move 看板拖拽：移动到 status 列的 index 处，两列位置都重新编号
func (s *TaskService) Move(ctx context.Context, userID, taskID uuid.UUID, in validation.TaskMoveInput) (*model.Task, error) {
	if err := validation.Validate(in); err != nil {
		return nil, err
	}
	t, _, err := s.access(ctx, userID, taskID, rbac.PermissionWriteTask)
	if err != nil {
		return nil, err
	}

	var moved *model.Task
	err = db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		tasks := s.tasks.WithQuerier(tx)
		src, err := tasks.ListColumn(ctx, t.ProjectID, t.Status)
		if err != nil {
			return err
		}
		from := indexOfTask(src, taskID)
		if from < 0 {
			return ErrNotFound
		}
		prevStatus := src[from].Status

		var updates []repository.PositionUpdate
		if in.Status == prevStatus {
			ordered, err := reorder.Reorder(src, from, min(in.Index, len(src)-1))
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}
			updates = positionUpdates(ordered, renumberTasks(ordered))
			moved = src[from]
		} else {
			dst, err := tasks.ListColumn(ctx, t.ProjectID, in.Status)
			if err != nil {
				return err
			}
			newSrc, newDst, err := reorder.Move(src, dst, from, min(in.Index, len(dst)))
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}
			moved = src[from]
			s.applyStatus(moved, in.Status)

			updates = positionUpdates(newSrc, renumberTasks(newSrc))
			renumberTasks(newDst)
			// 被移动的任务总是写入（状态和完成时间都变了）
			for _, dt := range newDst {
				if dt.ID == moved.ID {
					updates = append(updates, repository.PositionUpdate{
						ID: dt.ID, Status: dt.Status, Position: dt.Position,
						SetCompleted: true, CompletedAt: dt.CompletedAt,
					})
				} else {
					updates = append(updates, repository.PositionUpdate{ID: dt.ID, Status: dt.Status, Position: dt.Position})
				}
			}
		}

		if err := tasks.UpdatePositions(ctx, updates); err != nil {
			return err
		}
		if moved.Status != prevStatus {
			if err := s.writeStatusChanged(ctx, tx, moved, prevStatus, userID); err != nil {
				return err
			}
			return s.recalculate(ctx, tx, moved.ProjectID, moved.MilestoneID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Task moved",
		zap.String("task_id", taskID.String()),
		zap.String("status", string(moved.Status)),
		zap.Int("position", moved.Position),
	)
	return moved, nil
}

// BulkUpdateStatus 批量改状态，每个任务追加到目标列末尾；返回实际变更数
func (s *TaskService) BulkUpdateStatus(ctx context.Context, userID uuid.UUID, in validation.BulkStatusInput) (int, error) {
	if err := validation.Validate(in); err != nil {
		return 0, err
	}
	ids := uniqueIDs(in.TaskIDs)
	tasks, err := s.tasks.ListByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}
	if len(tasks) != len(ids) {
		return 0, fmt.Errorf("%w: %d of %d tasks", ErrNotFound, len(ids)-len(tasks), len(ids))
	}

	checked := map[uuid.UUID]bool{}
	for _, t := range tasks {
		if checked[t.ProjectID] {
			continue
		}
		if _, _, err := s.projects.access(ctx, userID, t.ProjectID, rbac.PermissionWriteTask); err != nil {
			return 0, err
		}
		checked[t.ProjectID] = true
	}

	changed := 0
	err = db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		repo := s.tasks.WithQuerier(tx)
		next := map[uuid.UUID]int{}
		touched := map[uuid.UUID][]*uuid.UUID{}
		var updates []repository.PositionUpdate

		for _, t := range tasks {
			if t.Status == in.Status {
				continue
			}
			if _, ok := next[t.ProjectID]; !ok {
				col, err := repo.ListColumn(ctx, t.ProjectID, in.Status)
				if err != nil {
					return err
				}
				next[t.ProjectID] = endPosition(col)
			}
			prev := t.Status
			s.applyStatus(t, in.Status)
			t.Position = next[t.ProjectID]
			next[t.ProjectID]++

			updates = append(updates, repository.PositionUpdate{
				ID: t.ID, Status: t.Status, Position: t.Position,
				SetCompleted: true, CompletedAt: t.CompletedAt,
			})
			if err := s.writeStatusChanged(ctx, tx, t, prev, userID); err != nil {
				return err
			}
			touched[t.ProjectID] = append(touched[t.ProjectID], t.MilestoneID)
			changed++
		}
		if err := repo.UpdatePositions(ctx, updates); err != nil {
			return err
		}
		for projectID, milestones := range touched {
			if _, err := s.projectRepo.WithQuerier(tx).RecalculateProgress(ctx, projectID); err != nil {
				return err
			}
			for _, m := range milestones {
				if m == nil {
					continue
				}
				if _, err := s.milestones.WithQuerier(tx).RecalculateProgress(ctx, *m); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("Bulk status update", zap.Int("changed", changed), zap.String("status", string(in.Status)))
	return changed, nil
}

// applyStatus 进入 done 记录完成时间，离开 done 清空
func (s *TaskService) applyStatus(t *model.Task, status model.TaskStatus) {
	if t.Status == status {
		return
	}
	switch {
	case status == model.TaskDone:
		now := s.now()
		t.CompletedAt = &now
	case t.Status == model.TaskDone:
		t.CompletedAt = nil
	}
	t.Status = status
}

func (s *TaskService) recalculate(ctx context.Context, tx pgx.Tx, projectID uuid.UUID, milestoneID *uuid.UUID) error {
	if _, err := s.projectRepo.WithQuerier(tx).RecalculateProgress(ctx, projectID); err != nil {
		return err
	}
	if milestoneID != nil {
		if _, err := s.milestones.WithQuerier(tx).RecalculateProgress(ctx, *milestoneID); err != nil {
			return err
		}
	}
	return nil
}

func (s *TaskService) writeAssigned(ctx context.Context, tx pgx.Tx, t *model.Task, p *model.Project, by uuid.UUID) error {
	return s.events.Write(ctx, tx, contracts.AggregateTask, t.ID.String(), contracts.TaskAssigned, contracts.TaskAssignedPayload{
		TaskID:         t.ID,
		ProjectID:      t.ProjectID,
		OrganizationID: p.OrganizationID,
		Title:          t.Title,
		AssigneeID:     *t.AssigneeID,
		AssignedBy:     by,
		DueDate:        t.DueDate,
		TraceID:        trace.FromContext(ctx),
	})
}

func (s *TaskService) writeStatusChanged(ctx context.Context, tx pgx.Tx, t *model.Task, from model.TaskStatus, by uuid.UUID) error {
	return s.events.Write(ctx, tx, contracts.AggregateTask, t.ID.String(), contracts.TaskStatusChanged, contracts.TaskStatusChangedPayload{
		EventID:   uuid.New(),
		TaskID:    t.ID,
		ProjectID: t.ProjectID,
		From:      string(from),
		To:        string(t.Status),
		ChangedBy: by,
		TraceID:   trace.FromContext(ctx),
	})
}

func renumberTasks(tasks []*model.Task) []int {
	return reorder.Renumber(tasks,
		func(t *model.Task) int { return t.Position },
		func(t *model.Task, p int) { t.Position = p },
	)
}

func positionUpdates(tasks []*model.Task, changed []int) []repository.PositionUpdate {
	out := make([]repository.PositionUpdate, 0, len(changed))
	for _, i := range changed {
		out = append(out, repository.PositionUpdate{ID: tasks[i].ID, Status: tasks[i].Status, Position: tasks[i].Position})
	}
	return out
}

func indexOfTask(tasks []*model.Task, id uuid.UUID) int {
	for i, t := range tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func endPosition(col []*model.Task) int {
	pos := 0
	for _, t := range col {
		if t.Position >= pos {
			pos = t.Position + 1
		}
	}
	return pos
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// NormalizeTags 去空白、去重（大小写不敏感），保留首次出现的写法
func NormalizeTags(tags []string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, t := range tags {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}
