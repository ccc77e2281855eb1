package history

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/intentflow/schema"
	"github.com/BaSui01/intentflow/synth"
)

// Status 分析结果状态
type Status string

const (
	StatusReady      Status = "ready"
	StatusIncomplete Status = "incomplete"
	StatusError      Status = "error"
)

// StatusOf 由合成结果与错误推导状态
func StatusOf(res *synth.Result, err error) Status {
	switch {
	case err != nil || res == nil:
		return StatusError
	case res.Ready:
		return StatusReady
	default:
		return StatusIncomplete
	}
}

// Record 一次分析的持久化记录（表 analyses）
type Record struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	RequestID        string    `gorm:"size:64;not null;default:''" json:"request_id,omitempty"`
	Source           string    `gorm:"type:text;not null" json:"source"`
	Path             string    `gorm:"size:512;not null" json:"path"`
	Method           string    `gorm:"size:16;not null" json:"method"`
	Text             string    `gorm:"type:text;not null" json:"text"`
	Status           Status    `gorm:"size:16;not null;index:idx_analyses_status" json:"status"`
	Ready            bool      `gorm:"not null;default:false" json:"ready"`
	MissingRequired  JSON      `gorm:"type:text;not null" json:"missing_required"`
	FoundParameters  JSON      `gorm:"type:text;not null" json:"found_parameters"`
	SuggestedPayload JSON      `gorm:"type:text;not null" json:"suggested_payload"`
	Error            string    `gorm:"type:text;not null;default:''" json:"error,omitempty"`
	DurationMS       int64     `gorm:"not null;default:0" json:"duration_ms"`
	CreatedAt        time.Time `gorm:"index:idx_analyses_created_at" json:"created_at"`
}

// TableName 与迁移文件保持一致
func (Record) TableName() string { return "analyses" }

// Operation 记录对应的操作
func (r *Record) Operation() schema.OperationRef {
	return schema.NewOperationRef(r.Path, r.Method)
}

// Missing 解码 missing_required
func (r *Record) Missing() ([]string, error) {
	var out []string
	if len(r.MissingRequired) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(r.MissingRequired, &out); err != nil {
		return nil, fmt.Errorf("decode missing_required: %w", err)
	}
	return out, nil
}

// NewRecord 由一次分析构造记录；res 为 nil 时 err 必须非空
func NewRecord(requestID, source string, op schema.OperationRef, text string, res *synth.Result, err error, d time.Duration) (*Record, error) {
	rec := &Record{
		ID:               uuid.NewString(),
		RequestID:        requestID,
		Source:           source,
		Path:             op.Path,
		Method:           op.Method,
		Text:             text,
		Status:           StatusOf(res, err),
		MissingRequired:  JSON("[]"),
		FoundParameters:  JSON("{}"),
		SuggestedPayload: JSON("{}"),
		DurationMS:       d.Milliseconds(),
		CreatedAt:        time.Now().UTC(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if res == nil {
		return rec, nil
	}

	rec.Ready = res.Ready
	var mErr error
	if rec.MissingRequired, mErr = marshalJSON(res.MissingRequired); mErr != nil {
		return nil, mErr
	}
	if rec.FoundParameters, mErr = marshalJSON(res.FoundParameters); mErr != nil {
		return nil, mErr
	}
	if rec.SuggestedPayload, mErr = marshalJSON(res.SuggestedPayload); mErr != nil {
		return nil, mErr
	}
	return rec, nil
}

func marshalJSON(v any) (JSON, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode analysis record: %w", err)
	}
	return JSON(data), nil
}

// =============================================================================
// JSON 列
// =============================================================================

// JSON 以文本列保存的原始 JSON，保留键顺序
type JSON json.RawMessage

// Value 实现 driver.Valuer
func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "null", nil
	}
	return string(j), nil
}

// Scan 实现 sql.Scanner
func (j *JSON) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = JSON(v)
	default:
		return fmt.Errorf("history: cannot scan %T into JSON", src)
	}
	return nil
}

// MarshalJSON 原样输出
func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON 保存原始字节
func (j *JSON) UnmarshalJSON(data []byte) error {
	if j == nil {
		return errors.New("history: UnmarshalJSON on nil pointer")
	}
	*j = append((*j)[:0], data...)
	return nil
}
