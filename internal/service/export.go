package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"foco/internal/model"
	"foco/internal/repository"
	"foco/internal/validation"
	"foco/pkg/rbac"
)

const maxImportRows = 1000

var taskCSVHeader = []string{
	"id", "title", "description", "status", "priority", "assignee_id", "milestone_id",
	"due_date", "estimated_hours", "actual_hours", "tags", "completed_at", "created_at",
}

// ExportTasksCSV tags 以 ";" 连接，时间为 RFC3339
func ExportTasksCSV(w io.Writer, tasks []*model.Task) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(taskCSVHeader); err != nil {
		return err
	}
	for _, t := range tasks {
		est := ""
		if t.EstimatedHours != nil {
			est = strconv.FormatFloat(*t.EstimatedHours, 'f', -1, 64)
		}
		row := []string{
			t.ID.String(),
			t.Title,
			t.Description,
			string(t.Status),
			string(t.Priority),
			idString(t.AssigneeID),
			idString(t.MilestoneID),
			timeString(t.DueDate),
			est,
			strconv.FormatFloat(t.ActualHours, 'f', -1, 64),
			strings.Join(t.Tags, ";"),
			timeString(t.CompletedAt),
			t.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type RowError struct {
	Row     int    `json:"row"` // 数据行号，从 1 开始（不含表头）
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

var ErrMissingTitleColumn = errors.New("csv header has no title column")

// ImportTasksCSV 按表头解析，未知列忽略；每行单独校验
func ImportTasksCSV(r io.Reader) ([]validation.TaskInput, []RowError, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, ErrMissingTitleColumn
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	cols := map[string]int{}
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	if _, ok := cols["title"]; !ok {
		return nil, nil, ErrMissingTitleColumn
	}

	var (
		inputs []validation.TaskInput
		errs   []RowError
	)
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			errs = append(errs, RowError{Row: row, Message: err.Error()})
			continue
		}
		if row > maxImportRows {
			errs = append(errs, RowError{Row: row, Message: fmt.Sprintf("import is limited to %d rows", maxImportRows)})
			break
		}
		get := func(name string) string {
			if i, ok := cols[name]; ok && i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}

		in, fieldErrs := parseTaskRow(get)
		if len(fieldErrs) == 0 {
			if verr := validation.Validate(in); verr != nil {
				var ve validation.Errors
				if errors.As(verr, &ve) {
					fieldErrs = ve
				} else {
					fieldErrs = validation.Errors{{Message: verr.Error()}}
				}
			}
		}
		if len(fieldErrs) > 0 {
			for _, fe := range fieldErrs {
				errs = append(errs, RowError{Row: row, Field: fe.Field, Message: fe.Message})
			}
			continue
		}
		inputs = append(inputs, in)
	}
	return inputs, errs, nil
}

func parseTaskRow(get func(string) string) (validation.TaskInput, validation.Errors) {
	var errs validation.Errors
	in := validation.TaskInput{
		Title:       get("title"),
		Description: get("description"),
		Status:      model.TaskStatus(strings.ToLower(get("status"))),
		Priority:    model.Priority(strings.ToLower(get("priority"))),
	}
	if v := get("assignee_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			errs = append(errs, validation.FieldError{Field: "assignee_id", Rule: "uuid", Message: "must be a valid UUID"})
		} else {
			in.AssigneeID = &id
		}
	}
	if v := get("milestone_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			errs = append(errs, validation.FieldError{Field: "milestone_id", Rule: "uuid", Message: "must be a valid UUID"})
		} else {
			in.MilestoneID = &id
		}
	}
	if v := get("due_date"); v != "" {
		d, err := parseDate(v)
		if err != nil {
			errs = append(errs, validation.FieldError{Field: "due_date", Rule: "date", Message: "must be YYYY-MM-DD or RFC3339"})
		} else {
			in.DueDate = &d
		}
	}
	if v := get("estimated_hours"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, validation.FieldError{Field: "estimated_hours", Rule: "number", Message: "must be a number"})
		} else {
			in.EstimatedHours = &f
		}
	}
	if v := get("tags"); v != "" {
		in.Tags = NormalizeTags(strings.FieldsFunc(v, func(r rune) bool { return r == ';' || r == ',' }))
	}
	return in, errs
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

type ProjectExport struct {
	Version    int                `json:"version"`
	ExportedAt time.Time          `json:"exported_at"`
	Project    *model.Project     `json:"project"`
	Milestones []*model.Milestone `json:"milestones"`
	Tasks      []*model.Task      `json:"tasks"`
}

func ExportProjectJSON(w io.Writer, p *model.Project, milestones []*model.Milestone, tasks []*model.Task, now time.Time) error {
	if milestones == nil {
		milestones = []*model.Milestone{}
	}
	if tasks == nil {
		tasks = []*model.Task{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ProjectExport{Version: 1, ExportedAt: now.UTC(), Project: p, Milestones: milestones, Tasks: tasks})
}

type ImportResult struct {
	Created int        `json:"created"`
	Failed  int        `json:"failed"`
	Errors  []RowError `json:"errors"`
}

type ExportService struct {
	projects   *ProjectService
	tasks      *TaskService
	taskRepo   *repository.TaskRepository
	milestones *repository.MilestoneRepository
	logger     *zap.Logger
}

func NewExportService(projects *ProjectService, tasks *TaskService, taskRepo *repository.TaskRepository, milestones *repository.MilestoneRepository, logger *zap.Logger) *ExportService {
	return &ExportService{projects: projects, tasks: tasks, taskRepo: taskRepo, milestones: milestones, logger: logger}
}

func (s *ExportService) ExportTasks(ctx context.Context, userID, projectID uuid.UUID, w io.Writer) error {
	if _, _, err := s.projects.access(ctx, userID, projectID, rbac.PermissionReadProject); err != nil {
		return err
	}
	tasks, err := s.taskRepo.ListByProject(ctx, projectID)
	if err != nil {
		return err
	}
	return ExportTasksCSV(w, tasks)
}

func (s *ExportService) ExportProject(ctx context.Context, userID, projectID uuid.UUID, w io.Writer) error {
	p, _, err := s.projects.access(ctx, userID, projectID, rbac.PermissionReadProject)
	if err != nil {
		return err
	}
	milestones, err := s.milestones.ListByProject(ctx, projectID)
	if err != nil {
		return err
	}
	tasks, err := s.taskRepo.ListByProject(ctx, projectID)
	if err != nil {
		return err
	}
	return ExportProjectJSON(w, p, milestones, tasks, time.Now())
}

// ImportTasks 有效行逐条创建；单行失败不影响其他行
func (s *ExportService) ImportTasks(ctx context.Context, userID, projectID uuid.UUID, r io.Reader) (*ImportResult, error) {
	if _, _, err := s.projects.access(ctx, userID, projectID, rbac.PermissionImport); err != nil {
		return nil, err
	}
	inputs, rowErrs, err := ImportTasksCSV(r)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{Errors: rowErrs}
	failedRows := map[int]bool{}
	for _, re := range rowErrs {
		failedRows[re.Row] = true
	}
	res.Failed = len(failedRows)

	for _, in := range inputs {
		if _, err := s.tasks.Create(ctx, userID, projectID, in, SourceImport); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, RowError{Message: fmt.Sprintf("%s: %v", in.Title, err)})
			continue
		}
		res.Created++
	}
	if res.Errors == nil {
		res.Errors = []RowError{}
	}
	s.logger.Info("Tasks imported",
		zap.String("project_id", projectID.String()),
		zap.Int("created", res.Created),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func idString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func timeString(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
