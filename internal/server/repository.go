package server

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// Repository defines the persistence the devbackend needs.
type Repository interface {
	CreateUser(ctx context.Context, user *UserModel) error
	UserByUsername(ctx context.Context, username string) (*UserModel, error)
	UserByID(ctx context.Context, id string) (*UserModel, error)

	CreateTransactions(ctx context.Context, txs ...*TransactionModel) error
	ListTransactions(ctx context.Context, userID, typ string) ([]TransactionModel, error)
	UpdateTransaction(ctx context.Context, tx *TransactionModel) error
	DeleteTransaction(ctx context.Context, userID, id string) error

	ListCategories(ctx context.Context, userID string) ([]CategoryModel, error)
	CreateCategory(ctx context.Context, cat *CategoryModel) error
}

// GormRepository implements Repository using GORM.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a new GORM-based repository.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// Models lists every table the repository uses, for auto-migration.
func Models() []interface{} {
	return []interface{}{&UserModel{}, &TransactionModel{}, &CategoryModel{}}
}

func (r *GormRepository) CreateUser(ctx context.Context, user *UserModel) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return handleError(err)
	}
	return nil
}

func (r *GormRepository) UserByUsername(ctx context.Context, username string) (*UserModel, error) {
	var m UserModel
	if err := r.db.WithContext(ctx).First(&m, "username = ?", username).Error; err != nil {
		return nil, handleError(err)
	}
	return &m, nil
}

func (r *GormRepository) UserByID(ctx context.Context, id string) (*UserModel, error) {
	var m UserModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, handleError(err)
	}
	return &m, nil
}

// CreateTransactions inserts all txs in one database transaction.
func (r *GormRepository) CreateTransactions(ctx context.Context, txs ...*TransactionModel) error {
	if len(txs) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(txs).Error
	})
	if err != nil {
		return handleError(err)
	}
	return nil
}

// ListTransactions returns the user's transactions, newest first. typ
// filters by transaction type when non-empty.
func (r *GormRepository) ListTransactions(ctx context.Context, userID, typ string) ([]TransactionModel, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if typ != "" {
		query = query.Where("type = ?", typ)
	}

	var models []TransactionModel
	if err := query.Order("date DESC, id DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	return models, nil
}

// UpdateTransaction overwrites the editable fields of tx, scoped to tx.UserID.
func (r *GormRepository) UpdateTransaction(ctx context.Context, tx *TransactionModel) error {
	result := r.db.WithContext(ctx).Model(&TransactionModel{}).
		Where("id = ? AND user_id = ?", tx.ID, tx.UserID).
		Updates(map[string]interface{}{
			"type":        tx.Type,
			"category":    tx.Category,
			"amount":      tx.Amount,
			"description": tx.Description,
			"date":        tx.Date,
		})
	if result.Error != nil {
		return handleError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormRepository) DeleteTransaction(ctx context.Context, userID, id string) error {
	result := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&TransactionModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormRepository) ListCategories(ctx context.Context, userID string) ([]CategoryModel, error) {
	var models []CategoryModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("name").Find(&models).Error; err != nil {
		return nil, err
	}
	return models, nil
}

func (r *GormRepository) CreateCategory(ctx context.Context, cat *CategoryModel) error {
	if err := r.db.WithContext(ctx).Create(cat).Error; err != nil {
		return handleError(err)
	}
	return nil
}

func handleError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}

	errStr := err.Error()
	// PostgreSQL, SQLite and MySQL unique constraint violations
	if strings.Contains(errStr, "duplicate key") ||
		strings.Contains(errStr, "UNIQUE constraint") ||
		strings.Contains(errStr, "Duplicate entry") {
		return ErrDuplicate
	}
	return err
}
