package service

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foco/internal/model"
)

func TestExportTasksCSV(t *testing.T) {
	assignee := uuid.New()
	due := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	est := 2.5
	tasks := []*model.Task{{
		ID:             uuid.New(),
		Title:          "Write, \"quoted\" docs",
		Status:         model.TaskInProgress,
		Priority:       model.PriorityHigh,
		AssigneeID:     &assignee,
		DueDate:        &due,
		EstimatedHours: &est,
		Tags:           []string{"docs", "q3"},
		CreatedAt:      due.Add(-48 * time.Hour),
	}}

	var buf bytes.Buffer
	require.NoError(t, ExportTasksCSV(&buf, tasks))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, taskCSVHeader, rows[0])
	row := rows[1]
	assert.Equal(t, "Write, \"quoted\" docs", row[1])
	assert.Equal(t, "in_progress", row[3])
	assert.Equal(t, assignee.String(), row[5])
	assert.Equal(t, "", row[6])
	assert.Equal(t, "2026-07-01T00:00:00Z", row[7])
	assert.Equal(t, "2.5", row[8])
	assert.Equal(t, "docs;q3", row[10])
}

func TestImportTasksCSV(t *testing.T) {
	input := "\ufeffTitle,Priority,Due_Date,Tags,Unknown\n" +
		"Ship release,HIGH,2026-08-01,\"ops; release;ops\",x\n" +
		",low,,,\n" +
		"Bad date,medium,next week,,\n" +
		"Bad priority,critical,,,\n" +
		"Minimal,,,,\n"

	inputs, rowErrs, err := ImportTasksCSV(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, inputs, 2)
	assert.Equal(t, "Ship release", inputs[0].Title)
	assert.Equal(t, model.PriorityHigh, inputs[0].Priority)
	require.NotNil(t, inputs[0].DueDate)
	assert.Equal(t, "2026-08-01", inputs[0].DueDate.Format(time.DateOnly))
	assert.Equal(t, []string{"ops", "release"}, inputs[0].Tags)
	assert.Equal(t, "Minimal", inputs[1].Title)

	rows := map[int]string{}
	for _, e := range rowErrs {
		rows[e.Row] = e.Field
	}
	assert.Equal(t, map[int]string{2: "title", 3: "due_date", 4: "priority"}, rows)
}

func TestImportTasksCSVRequiresTitle(t *testing.T) {
	_, _, err := ImportTasksCSV(strings.NewReader("name,status\nx,todo\n"))
	assert.ErrorIs(t, err, ErrMissingTitleColumn)

	_, _, err = ImportTasksCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrMissingTitleColumn)
}

func TestImportTasksCSVRowLimit(t *testing.T) {
	var b strings.Builder
	b.WriteString("title\n")
	for i := 0; i < maxImportRows+5; i++ {
		b.WriteString("task\n")
	}
	inputs, rowErrs, err := ImportTasksCSV(strings.NewReader(b.String()))
	require.NoError(t, err)
	assert.Len(t, inputs, maxImportRows)
	require.Len(t, rowErrs, 1)
	assert.Equal(t, maxImportRows+1, rowErrs[0].Row)
}

func TestExportProjectJSON(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := &model.Project{ID: uuid.New(), Name: "Apollo"}

	var buf bytes.Buffer
	require.NoError(t, ExportProjectJSON(&buf, p, nil, nil, now))

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, float64(1), out["version"])
	assert.Equal(t, "2026-01-02T03:04:05Z", out["exported_at"])
	assert.Equal(t, []any{}, out["milestones"])
	assert.Equal(t, []any{}, out["tasks"])
	assert.Equal(t, "Apollo", out["project"].(map[string]any)["name"])
}
