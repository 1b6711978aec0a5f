package repository

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hpc-analysis/internal/analyzer"
	"github.com/hpc-analysis/internal/calltree"
)

// ProfileRun represents the profile_runs table: one analyzed database.
type ProfileRun struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	RunUUID    string    `gorm:"column:run_uuid;type:varchar(64);uniqueIndex" json:"run_uuid"`
	Name       string    `gorm:"column:name;type:varchar(256)" json:"name"`
	Input      string    `gorm:"column:input;type:varchar(1024)" json:"input"`
	BaseMetric string    `gorm:"column:base_metric;type:varchar(256)" json:"base_metric"`
	Total      float64   `gorm:"column:total" json:"total"`
	Nodes      int       `gorm:"column:nodes" json:"nodes"`
	MaxDepth   int       `gorm:"column:max_depth" json:"max_depth"`
	Columns    JSONField `gorm:"column:columns;type:json" json:"columns"`
	HotPath    JSONField `gorm:"column:hot_path;type:json" json:"hot_path"`
	DurationMs int64     `gorm:"column:duration_ms" json:"duration_ms"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName returns the table name for ProfileRun.
func (ProfileRun) TableName() string {
	return "profile_runs"
}

// ColumnNames decodes the stored column order.
func (r *ProfileRun) ColumnNames() ([]string, error) {
	var columns []string
	if r.Columns == nil {
		return columns, nil
	}
	if err := json.Unmarshal(r.Columns, &columns); err != nil {
		return nil, fmt.Errorf("failed to decode columns of run %s: %w", r.RunUUID, err)
	}
	return columns, nil
}

// HotPathLabels decodes the stored hot path.
func (r *ProfileRun) HotPathLabels() ([]string, error) {
	var labels []string
	if r.HotPath == nil {
		return labels, nil
	}
	if err := json.Unmarshal(r.HotPath, &labels); err != nil {
		return nil, fmt.Errorf("failed to decode hot path of run %s: %w", r.RunUUID, err)
	}
	return labels, nil
}

// ProfileRow represents the profile_rows table: one call-tree node.
type ProfileRow struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	RunUUID   string    `gorm:"column:run_uuid;type:varchar(64);index:idx_run_position" json:"run_uuid"`
	Position  int       `gorm:"column:position;index:idx_run_position" json:"position"`
	NodeID    int64     `gorm:"column:node_id" json:"node_id"`
	Depth     int       `gorm:"column:depth" json:"depth"`
	Type      string    `gorm:"column:type;type:varchar(32)" json:"type"`
	Path      string    `gorm:"column:path;type:text" json:"path"`
	CallPath  JSONField `gorm:"column:call_path;type:json" json:"call_path"`
	Module    string    `gorm:"column:module;type:varchar(1024)" json:"module,omitempty"`
	File      string    `gorm:"column:file;type:varchar(1024)" json:"file,omitempty"`
	Line      int       `gorm:"column:line" json:"line,omitempty"`
	Procedure string    `gorm:"column:procedure;type:varchar(512)" json:"procedure,omitempty"`
	Values    JSONField `gorm:"column:values;type:json" json:"values"`
}

// TableName returns the table name for ProfileRow.
func (ProfileRow) TableName() string {
	return "profile_rows"
}

// ColumnValues decodes the stored column values.
func (r *ProfileRow) ColumnValues() (map[string]float64, error) {
	values := make(map[string]float64)
	if r.Values == nil {
		return values, nil
	}
	if err := json.Unmarshal(r.Values, &values); err != nil {
		return nil, fmt.Errorf("failed to decode values of node %d: %w", r.NodeID, err)
	}
	return values, nil
}

// NewRecord converts an analysis response into a run and its rows.
func NewRecord(resp *analyzer.AnalysisResponse) (*ProfileRun, []ProfileRow, error) {
	columns := resp.Table.Columns()

	columnsJSON, err := json.Marshal(columns)
	if err != nil {
		return nil, nil, err
	}
	hotJSON, err := json.Marshal(resp.Summary.HotPath)
	if err != nil {
		return nil, nil, err
	}

	run := &ProfileRun{
		RunUUID:    resp.RunUUID,
		Name:       resp.Name,
		Input:      resp.Input,
		BaseMetric: resp.Summary.BaseMetric,
		Total:      resp.Summary.Total,
		Nodes:      resp.Summary.Nodes,
		MaxDepth:   resp.Summary.MaxDepth,
		Columns:    columnsJSON,
		HotPath:    hotJSON,
		DurationMs: resp.Duration.Milliseconds(),
	}

	rows := make([]ProfileRow, 0, resp.Table.Len())
	for i, n := range resp.Table.Nodes() {
		row, err := newRow(resp.RunUUID, i, n, columns)
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, row)
	}
	return run, rows, nil
}

func newRow(runUUID string, position int, n *calltree.Node, columns []string) (ProfileRow, error) {
	values := make(map[string]float64, len(columns))
	for _, c := range columns {
		if v, ok := n.Column(c); ok {
			values[c] = v
		}
	}
	valuesJSON, err := json.Marshal(values)
	if err != nil {
		return ProfileRow{}, err
	}
	callPath := n.CallPath
	if callPath == nil {
		callPath = []int64{}
	}
	callPathJSON, err := json.Marshal(callPath)
	if err != nil {
		return ProfileRow{}, err
	}
	return ProfileRow{
		RunUUID:   runUUID,
		Position:  position,
		NodeID:    n.ID,
		Depth:     n.Depth,
		Type:      n.Type.String(),
		Path:      n.Path(),
		CallPath:  callPathJSON,
		Module:    n.Location.Module,
		File:      n.Location.File,
		Line:      n.Location.Line,
		Procedure: n.Location.Procedure,
		Values:    valuesJSON,
	}, nil
}

// JSONField is a custom type for handling JSON fields in GORM.
type JSONField []byte

// Value implements driver.Valuer interface.
func (j JSONField) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements sql.Scanner interface.
func (j *JSONField) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
		return nil
	case string:
		*j = []byte(v)
		return nil
	default:
		return errors.New("unsupported type for JSONField")
	}
}

// MarshalJSON implements json.Marshaler interface.
func (j JSONField) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements json.Unmarshaler interface.
func (j *JSONField) UnmarshalJSON(data []byte) error {
	if data == nil || string(data) == "null" {
		*j = nil
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}
