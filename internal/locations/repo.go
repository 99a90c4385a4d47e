package locations

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
	"github.com/angelmondragon/stockroom-backend/pkg/pagination"
)

// Repository defines stock group and location persistence operations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateGroup(ctx context.Context, group *models.StockGroup) error
	FindGroupByID(ctx context.Context, id uuid.UUID) (*models.StockGroup, error)
	UpdateGroupName(ctx context.Context, id uuid.UUID, name string) (int64, error)
	UpdateGroupSynchronizable(ctx context.Context, id uuid.UUID, synchronizable bool) (int64, error)
	DeleteGroup(ctx context.Context, id uuid.UUID) (int64, error)
	DetachGroupLocations(ctx context.Context, groupID uuid.UUID) (int64, error)
	ListGroups(ctx context.Context, cursor string, limit int) ([]models.StockGroup, string, int64, error)

	CreateLocation(ctx context.Context, location *models.StockLocation) error
	FindLocationByID(ctx context.Context, id uuid.UUID) (*models.StockLocation, error)
	UpdateLocationName(ctx context.Context, id uuid.UUID, name string) (int64, error)
	DeleteLocation(ctx context.Context, id uuid.UUID) (int64, error)
	ListLocations(ctx context.Context, groupID *uuid.UUID, cursor string, limit int) ([]models.StockLocation, string, int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a locations repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateGroup(ctx context.Context, group *models.StockGroup) error {
	if group.ID == uuid.Nil {
		group.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(group).Error
}

func (r *repository) FindGroupByID(ctx context.Context, id uuid.UUID) (*models.StockGroup, error) {
	var group models.StockGroup
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&group).Error
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *repository) UpdateGroupName(ctx context.Context, id uuid.UUID, name string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.StockGroup{}).
		Where("id = ?", id).
		Update("name", name)
	return result.RowsAffected, result.Error
}

func (r *repository) UpdateGroupSynchronizable(ctx context.Context, id uuid.UUID, synchronizable bool) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.StockGroup{}).
		Where("id = ?", id).
		Update("synchronizable", synchronizable)
	return result.RowsAffected, result.Error
}

func (r *repository) DeleteGroup(ctx context.Context, id uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.StockGroup{})
	return result.RowsAffected, result.Error
}

// DetachGroupLocations clears the group link on every location in the group.
// Locations survive a group delete, only the membership goes away.
func (r *repository) DetachGroupLocations(ctx context.Context, groupID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.StockLocation{}).
		Where("group_id = ?", groupID).
		Update("group_id", nil)
	return result.RowsAffected, result.Error
}

func (r *repository) ListGroups(ctx context.Context, cursor string, limit int) ([]models.StockGroup, string, int64, error) {
	normalizedLimit := pagination.NormalizeLimit(limit)
	limitWithBuffer := pagination.LimitWithBuffer(limit)
	decodedCursor, err := pagination.ParseCursor(strings.TrimSpace(cursor))
	if err != nil {
		return nil, "", 0, err
	}

	query := r.db.WithContext(ctx).Model(&models.StockGroup{})
	if decodedCursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			decodedCursor.CreatedAt, decodedCursor.CreatedAt, decodedCursor.ID)
	}

	var rows []models.StockGroup
	err = query.Order("created_at DESC").Order("id DESC").Limit(limitWithBuffer).Find(&rows).Error
	if err != nil {
		return nil, "", 0, err
	}

	nextCursor := ""
	if len(rows) > normalizedLimit {
		rows = rows[:normalizedLimit]
		last := rows[len(rows)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.StockGroup{}).Count(&total).Error; err != nil {
		return nil, "", 0, err
	}
	return rows, nextCursor, total, nil
}

func (r *repository) CreateLocation(ctx context.Context, location *models.StockLocation) error {
	if location.ID == uuid.Nil {
		location.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(location).Error
}

func (r *repository) FindLocationByID(ctx context.Context, id uuid.UUID) (*models.StockLocation, error) {
	var location models.StockLocation
	err := r.db.WithContext(ctx).
		Preload("Group").
		Where("id = ?", id).
		First(&location).Error
	if err != nil {
		return nil, err
	}
	return &location, nil
}

func (r *repository) UpdateLocationName(ctx context.Context, id uuid.UUID, name string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.StockLocation{}).
		Where("id = ?", id).
		Update("name", name)
	return result.RowsAffected, result.Error
}

func (r *repository) DeleteLocation(ctx context.Context, id uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.StockLocation{})
	return result.RowsAffected, result.Error
}

func (r *repository) ListLocations(ctx context.Context, groupID *uuid.UUID, cursor string, limit int) ([]models.StockLocation, string, int64, error) {
	normalizedLimit := pagination.NormalizeLimit(limit)
	limitWithBuffer := pagination.LimitWithBuffer(limit)
	decodedCursor, err := pagination.ParseCursor(strings.TrimSpace(cursor))
	if err != nil {
		return nil, "", 0, err
	}

	base := r.db.WithContext(ctx).Model(&models.StockLocation{})
	if groupID != nil {
		base = base.Where("group_id = ?", *groupID)
	}

	query := base.Session(&gorm.Session{}).Preload("Group")
	if decodedCursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			decodedCursor.CreatedAt, decodedCursor.CreatedAt, decodedCursor.ID)
	}

	var rows []models.StockLocation
	err = query.Order("created_at DESC").Order("id DESC").Limit(limitWithBuffer).Find(&rows).Error
	if err != nil {
		return nil, "", 0, err
	}

	nextCursor := ""
	if len(rows) > normalizedLimit {
		rows = rows[:normalizedLimit]
		last := rows[len(rows)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, "", 0, err
	}
	return rows, nextCursor, total, nil
}
