package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("analysis record not found")

// MaxListLimit 单页上限
const MaxListLimit = 500

// Filter 列表查询条件，零值字段不参与过滤
type Filter struct {
	Status Status
	Path   string
	Method string
	Since  time.Time
	Limit  int
	Offset int
}

// Store 分析历史存储
type Store interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	// List 按创建时间倒序返回一页记录，以及满足条件的总数
	List(ctx context.Context, f Filter) ([]Record, int64, error)
}

// =============================================================================
// 🗄️ GORM 实现
// =============================================================================

// GormStore 基于 GORM 的 Store
type GormStore struct {
	db           *gorm.DB
	defaultLimit int
	logger       *zap.Logger
}

// NewGormStore 创建存储；defaultLimit<=0 时取 50
func NewGormStore(db *gorm.DB, defaultLimit int, logger *zap.Logger) *GormStore {
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormStore{
		db:           db,
		defaultLimit: defaultLimit,
		logger:       logger.With(zap.String("component", "history")),
	}
}

// AutoMigrate 由模型建表，供未使用 golang-migrate 的部署
func (s *GormStore) AutoMigrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Record{}); err != nil {
		return fmt.Errorf("auto migrate analyses: %w", err)
	}
	return nil
}

func (s *GormStore) Save(ctx context.Context, rec *Record) error {
	if rec == nil {
		return errors.New("record is nil")
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("save analysis %s: %w", rec.ID, err)
	}
	s.logger.Debug("analysis recorded", zap.String("id", rec.ID), zap.String("status", string(rec.Status)))
	return nil
}

func (s *GormStore) Get(ctx context.Context, id string) (*Record, error) {
	var rec Record
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis %s: %w", id, err)
	}
	return &rec, nil
}

func (s *GormStore) List(ctx context.Context, f Filter) ([]Record, int64, error) {
	q := s.db.WithContext(ctx).Model(&Record{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Path != "" {
		q = q.Where("path = ?", f.Path)
	}
	if f.Method != "" {
		q = q.Where("method = ?", f.Method)
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count analyses: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := max(f.Offset, 0)

	records := make([]Record, 0, limit)
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&records).Error; err != nil {
		return nil, 0, fmt.Errorf("list analyses: %w", err)
	}
	return records, total, nil
}

// =============================================================================
// 空实现
// =============================================================================

// NopStore 历史关闭时使用，丢弃写入
type NopStore struct{}

func (NopStore) Save(context.Context, *Record) error { return nil }

func (NopStore) Get(context.Context, string) (*Record, error) { return nil, ErrNotFound }

func (NopStore) List(context.Context, Filter) ([]Record, int64, error) {
	return []Record{}, 0, nil
}
