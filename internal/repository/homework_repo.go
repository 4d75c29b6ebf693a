package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/homework-tracker-api/internal/models"
)

// HomeworkFilter narrows an owner's homework list.
type HomeworkFilter struct {
	OwnerID   uint
	Subject   string
	Priority  string
	Search    string
	Completed *bool
}

// HomeworkRepository defines persistence operations for homework.
type HomeworkRepository interface {
	List(ctx context.Context, filter HomeworkFilter) ([]models.Homework, error)
	GetByID(ctx context.Context, ownerID uint, id string) (models.Homework, error)
	Create(ctx context.Context, homework *models.Homework) error
	Update(ctx context.Context, homework *models.Homework) error
	Delete(ctx context.Context, ownerID uint, id string) error
	Subjects(ctx context.Context, ownerID uint) ([]string, error)
}

// likeEscaper makes search terms match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

type homeworkRepository struct {
	db *gorm.DB
}

// NewHomeworkRepository instantiates a GORM-backed repository.
func NewHomeworkRepository(db *gorm.DB) HomeworkRepository {
	return &homeworkRepository{db: db}
}

func (r *homeworkRepository) List(ctx context.Context, filter HomeworkFilter) ([]models.Homework, error) {
	query := r.db.WithContext(ctx).Model(&models.Homework{}).Where("owner_id = ?", filter.OwnerID)

	if subject := strings.TrimSpace(filter.Subject); subject != "" {
		query = query.Where("LOWER(subject) = ?", strings.ToLower(subject))
	}
	if filter.Priority != "" {
		query = query.Where("priority = ?", filter.Priority)
	}
	if filter.Completed != nil {
		query = query.Where("completed = ?", *filter.Completed)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(search)) + "%"
		query = query.Where(`(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\')`, pattern, pattern)
	}

	var items []models.Homework
	if err := query.Order("created_at ASC").Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}

	return items, nil
}

func (r *homeworkRepository) GetByID(ctx context.Context, ownerID uint, id string) (models.Homework, error) {
	var homework models.Homework
	if err := r.db.WithContext(ctx).Where("owner_id = ? AND id = ?", ownerID, id).First(&homework).Error; err != nil {
		return models.Homework{}, err
	}

	return homework, nil
}

func (r *homeworkRepository) Create(ctx context.Context, homework *models.Homework) error {
	return r.db.WithContext(ctx).Create(homework).Error
}

func (r *homeworkRepository) Update(ctx context.Context, homework *models.Homework) error {
	return r.db.WithContext(ctx).Save(homework).Error
}

func (r *homeworkRepository) Delete(ctx context.Context, ownerID uint, id string) error {
	result := r.db.WithContext(ctx).Where("owner_id = ? AND id = ?", ownerID, id).Delete(&models.Homework{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *homeworkRepository) Subjects(ctx context.Context, ownerID uint) ([]string, error) {
	var subjects []string
	err := r.db.WithContext(ctx).
		Model(&models.Homework{}).
		Where("owner_id = ? AND subject <> ''", ownerID).
		Distinct("subject").
		Order("subject ASC").
		Pluck("subject", &subjects).Error
	if err != nil {
		return nil, err
	}

	return subjects, nil
}
