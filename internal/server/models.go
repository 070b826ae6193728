package server

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/weiawesome/fin-dashboard/internal/domain"
	"github.com/weiawesome/fin-dashboard/pkg/database"
)

// UserModel is the GORM model for users table.
type UserModel struct {
	ID           string               `gorm:"type:varchar(36);primaryKey"`
	Username     string               `gorm:"type:varchar(50);uniqueIndex;not null"`
	Email        string               `gorm:"type:varchar(255)"`
	PasswordHash string               `gorm:"type:varchar(255);not null"`
	Roles        database.StringArray `gorm:"type:text"`
	CreatedAt    time.Time            `gorm:"autoCreateTime"`
	UpdatedAt    time.Time            `gorm:"autoUpdateTime"`
}

func (UserModel) TableName() string {
	return "users"
}

func (m *UserModel) ToDomain() domain.User {
	return domain.User{
		ID:        m.ID,
		Username:  m.Username,
		Email:     m.Email,
		Roles:     []string(m.Roles),
		CreatedAt: m.CreatedAt,
	}
}

// TransactionModel is the GORM model for transactions table.
type TransactionModel struct {
	ID          string          `gorm:"type:varchar(20);primaryKey"`
	UserID      string          `gorm:"type:varchar(36);index;not null"`
	Type        string          `gorm:"type:varchar(10);index;not null"`
	Category    string          `gorm:"type:varchar(100);not null"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Description string          `gorm:"type:text"`
	Date        string          `gorm:"type:varchar(10);index;not null"`
	CreatedAt   time.Time       `gorm:"autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime"`
	DeletedAt   gorm.DeletedAt  `gorm:"index"`
}

func (TransactionModel) TableName() string {
	return "transactions"
}

func (m *TransactionModel) ToDomain() domain.Transaction {
	return domain.Transaction{
		ID:          m.ID,
		UserID:      m.UserID,
		Type:        domain.TransactionType(m.Type),
		Category:    m.Category,
		Amount:      m.Amount,
		Description: m.Description,
		Date:        m.Date,
	}
}

func TransactionToModel(tx *domain.Transaction) *TransactionModel {
	return &TransactionModel{
		ID:          tx.ID,
		UserID:      tx.UserID,
		Type:        string(tx.Type),
		Category:    tx.Category,
		Amount:      tx.Amount,
		Description: tx.Description,
		Date:        tx.Date,
	}
}

// CategoryModel is the GORM model for categories table.
type CategoryModel struct {
	ID        string    `gorm:"type:varchar(20);primaryKey"`
	UserID    string    `gorm:"type:varchar(36);uniqueIndex:idx_categories_user_name;not null"`
	Name      string    `gorm:"type:varchar(100);uniqueIndex:idx_categories_user_name;not null"`
	Type      string    `gorm:"type:varchar(10)"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (CategoryModel) TableName() string {
	return "categories"
}

func (m *CategoryModel) ToDomain() domain.Category {
	return domain.Category{ID: m.ID, Name: m.Name, Type: domain.TransactionType(m.Type)}
}
