package server

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/weiawesome/fin-dashboard/internal/domain"
	"github.com/weiawesome/fin-dashboard/internal/idgen"
	"github.com/weiawesome/fin-dashboard/pkg/log"
)

// ErrInvalidTransaction is wrapped by every validation failure.
var ErrInvalidTransaction = errors.New("invalid transaction")

const dateLayout = "2006-01-02"

// ImportResult reports a CSV import.
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// FinanceService owns transactions and categories.
type FinanceService struct {
	repo Repository
	ids  *idgen.Snowflake
}

func NewFinanceService(repo Repository, ids *idgen.Snowflake) *FinanceService {
	return &FinanceService{repo: repo, ids: ids}
}

func validateTransaction(tx *domain.Transaction) error {
	tx.Type = domain.TransactionType(strings.ToUpper(strings.TrimSpace(string(tx.Type))))
	tx.Category = strings.TrimSpace(tx.Category)

	switch tx.Type {
	case domain.TransactionIncome, domain.TransactionExpense:
	default:
		return fmt.Errorf("%w: type must be INCOME or EXPENSE", ErrInvalidTransaction)
	}
	if tx.Category == "" {
		return fmt.Errorf("%w: category is required", ErrInvalidTransaction)
	}
	if !tx.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidTransaction)
	}
	if _, err := time.Parse(dateLayout, tx.Date); err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidTransaction)
	}
	return nil
}

func (s *FinanceService) ListTransactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	models, err := s.repo.ListTransactions(ctx, userID, "")
	if err != nil {
		return nil, err
	}
	out := make([]domain.Transaction, len(models))
	for i := range models {
		out[i] = models[i].ToDomain()
	}
	return out, nil
}

func (s *FinanceService) AddTransaction(ctx context.Context, userID string, tx domain.Transaction) (*domain.Transaction, error) {
	if err := validateTransaction(&tx); err != nil {
		return nil, err
	}
	id, err := s.ids.Next()
	if err != nil {
		return nil, err
	}
	tx.ID = id
	tx.UserID = userID

	if err := s.repo.CreateTransactions(ctx, TransactionToModel(&tx)); err != nil {
		return nil, err
	}
	audit(ctx, ActionTransactionCreate, userID, id, "transaction created")
	return &tx, nil
}

func (s *FinanceService) UpdateTransaction(ctx context.Context, userID, id string, tx domain.Transaction) (*domain.Transaction, error) {
	if err := validateTransaction(&tx); err != nil {
		return nil, err
	}
	tx.ID = id
	tx.UserID = userID

	if err := s.repo.UpdateTransaction(ctx, TransactionToModel(&tx)); err != nil {
		return nil, err
	}
	audit(ctx, ActionTransactionUpdate, userID, id, "transaction updated")
	return &tx, nil
}

func (s *FinanceService) DeleteTransaction(ctx context.Context, userID, id string) error {
	if err := s.repo.DeleteTransaction(ctx, userID, id); err != nil {
		return err
	}
	audit(ctx, ActionTransactionDelete, userID, id, "transaction deleted")
	return nil
}

// Summary totals the user's transactions of typ per category.
func (s *FinanceService) Summary(ctx context.Context, userID string, typ domain.TransactionType) (domain.CategoryTotals, error) {
	models, err := s.repo.ListTransactions(ctx, userID, string(typ))
	if err != nil {
		return nil, err
	}
	totals := domain.CategoryTotals{}
	for _, m := range models {
		totals[m.Category] = totals[m.Category].Add(m.Amount)
	}
	return totals, nil
}

// csvColumns are the export columns; import accepts any order and ignores id.
var csvColumns = []string{"id", "date", "type", "category", "amount", "description"}

// ImportCSV reads transactions with a header row. Invalid rows are skipped
// and reported; valid rows are inserted together.
func (s *FinanceService) ImportCSV(ctx context.Context, userID string, r io.Reader) (*ImportResult, error) {
	l := log.Ctx(ctx)

	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: csv file is empty", ErrInvalidTransaction)
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"date", "type", "category", "amount"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrInvalidTransaction, required)
		}
	}
	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	res := &ImportResult{}
	var batch []*TransactionModel
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}

		amount, err := decimal.NewFromString(field(rec, "amount"))
		if err != nil {
			res.Skipped++
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: invalid amount", line))
			continue
		}
		tx := domain.Transaction{
			UserID:      userID,
			Type:        domain.TransactionType(field(rec, "type")),
			Category:    field(rec, "category"),
			Amount:      amount,
			Description: field(rec, "description"),
			Date:        field(rec, "date"),
		}
		if err := validateTransaction(&tx); err != nil {
			res.Skipped++
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		if tx.ID, err = s.ids.Next(); err != nil {
			return nil, err
		}
		batch = append(batch, TransactionToModel(&tx))
	}

	if err := s.repo.CreateTransactions(ctx, batch...); err != nil {
		l.Error().Err(err).Int("rows", len(batch)).Msg("failed to store imported transactions")
		return nil, err
	}
	res.Imported = len(batch)

	audit(ctx, ActionImport, userID, "", fmt.Sprintf("imported %d transactions", res.Imported))
	return res, nil
}

// ExportCSV writes the user's transactions to w.
func (s *FinanceService) ExportCSV(ctx context.Context, userID string, w io.Writer) error {
	txs, err := s.ListTransactions(ctx, userID)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvColumns); err != nil {
		return err
	}
	for _, tx := range txs {
		if err := cw.Write([]string{tx.ID, tx.Date, string(tx.Type), tx.Category, tx.Amount.StringFixed(2), tx.Description}); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}

	audit(ctx, ActionExport, userID, "", fmt.Sprintf("exported %d transactions", len(txs)))
	return nil
}

func (s *FinanceService) Categories(ctx context.Context, userID string) ([]domain.Category, error) {
	models, err := s.repo.ListCategories(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Category, len(models))
	for i := range models {
		out[i] = models[i].ToDomain()
	}
	return out, nil
}

func (s *FinanceService) AddCategory(ctx context.Context, userID string, cat domain.Category) (*domain.Category, error) {
	cat.Name = strings.TrimSpace(cat.Name)
	if cat.Name == "" {
		return nil, fmt.Errorf("%w: category name is required", ErrInvalidTransaction)
	}
	id, err := s.ids.Next()
	if err != nil {
		return nil, err
	}
	m := &CategoryModel{ID: id, UserID: userID, Name: cat.Name, Type: string(cat.Type)}
	if err := s.repo.CreateCategory(ctx, m); err != nil {
		return nil, err
	}
	out := m.ToDomain()
	return &out, nil
}
