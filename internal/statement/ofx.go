// Package statement turns bank statement downloads into transactions the
// backend's CSV import accepts.
package statement

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/weiawesome/fin-dashboard/internal/domain"
)

var ErrNoStatement = errors.New("statement: no bank or credit card statement found")

// IsOFX reports whether name has an OFX or QFX extension.
func IsOFX(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".ofx", ".qfx":
		return true
	}
	return false
}

// ParseOFX reads every bank and credit card statement in r. Positive
// amounts become INCOME and negative ones EXPENSE with the sign dropped.
// Zero-amount entries are skipped. The category is derived from the OFX
// transaction type.
func ParseOFX(r io.Reader) ([]domain.Transaction, error) {
	resp, err := ofxgo.ParseResponse(r)
	if err != nil {
		return nil, fmt.Errorf("statement: parse ofx: %w", err)
	}

	var lists []*ofxgo.TransactionList
	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok && stmt.BankTranList != nil {
			lists = append(lists, stmt.BankTranList)
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok && stmt.BankTranList != nil {
			lists = append(lists, stmt.BankTranList)
		}
	}
	if len(lists) == 0 {
		return nil, ErrNoStatement
	}

	var out []domain.Transaction
	for _, list := range lists {
		for _, t := range list.Transactions {
			tx, err := convert(t)
			if err != nil {
				return nil, err
			}
			if tx.Amount.IsZero() {
				continue
			}
			out = append(out, tx)
		}
	}
	return out, nil
}

func convert(t ofxgo.Transaction) (domain.Transaction, error) {
	id := t.FiTID.String()
	amount, err := decimal.NewFromString(t.TrnAmt.FloatString(2))
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("statement: transaction %s: bad amount: %w", id, err)
	}
	if t.DtPosted.Time.IsZero() {
		return domain.Transaction{}, fmt.Errorf("statement: transaction %s has no posting date", id)
	}

	typ := domain.TransactionIncome
	if amount.IsNegative() {
		typ = domain.TransactionExpense
		amount = amount.Abs()
	}

	desc := strings.TrimSpace(t.Name.String())
	if desc == "" {
		desc = strings.TrimSpace(t.Memo.String())
	}

	return domain.Transaction{
		ID:          id,
		Type:        typ,
		Category:    category(t),
		Amount:      amount,
		Description: desc,
		Date:        t.DtPosted.Time.UTC().Format(time.DateOnly),
	}, nil
}

func category(t ofxgo.Transaction) string {
	switch t.TrnType {
	case ofxgo.TrnTypeInt:
		return "Interest"
	case ofxgo.TrnTypeFee:
		return "Fees"
	case ofxgo.TrnTypeATM:
		return "Cash"
	case ofxgo.TrnTypeCheck:
		return "Checks"
	case ofxgo.TrnTypeXfer:
		return "Transfers"
	case ofxgo.TrnTypePayment:
		return "Payments"
	case ofxgo.TrnTypeDep:
		return "Deposits"
	case ofxgo.TrnTypePOS:
		return "Purchases"
	default:
		return "Uncategorized"
	}
}

// WriteCSV renders txs in the column layout of the backend's CSV import
// and export.
func WriteCSV(w io.Writer, txs []domain.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "date", "type", "category", "amount", "description"}); err != nil {
		return err
	}
	for _, tx := range txs {
		if err := cw.Write([]string{tx.ID, tx.Date, string(tx.Type), tx.Category, tx.Amount.StringFixed(2), tx.Description}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
