package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/weiawesome/fin-dashboard/internal/cache"
	"github.com/weiawesome/fin-dashboard/internal/domain"
	"github.com/weiawesome/fin-dashboard/pkg/storage"
)

// Transactions returns the user's transactions.
func (c *Client) Transactions(ctx context.Context) ([]domain.Transaction, error) {
	return readThrough(ctx, c, cache.KeyTransactions,
		c.cache.GetCachedTransactions, c.cache.CacheTransactions,
		func(ctx context.Context) ([]domain.Transaction, error) {
			var txs []domain.Transaction
			if err := c.call(ctx, http.MethodPost, "/api/get", nil, &txs); err != nil {
				return nil, err
			}
			return txs, nil
		})
}

// IncomeSummary returns income totals per category.
func (c *Client) IncomeSummary(ctx context.Context) (domain.CategoryTotals, error) {
	return readThrough(ctx, c, cache.KeyIncomeData,
		c.cache.GetCachedIncomeData, c.cache.CacheIncomeData,
		func(ctx context.Context) (domain.CategoryTotals, error) {
			return c.summary(ctx, "income")
		})
}

// ExpenseSummary returns expense totals per category.
func (c *Client) ExpenseSummary(ctx context.Context) (domain.CategoryTotals, error) {
	return readThrough(ctx, c, cache.KeyExpenseData,
		c.cache.GetCachedExpenseData, c.cache.CacheExpenseData,
		func(ctx context.Context) (domain.CategoryTotals, error) {
			return c.summary(ctx, "expense")
		})
}

func (c *Client) summary(ctx context.Context, kind string) (domain.CategoryTotals, error) {
	uid, err := c.userID()
	if err != nil {
		return nil, err
	}
	totals := domain.CategoryTotals{}
	path := fmt.Sprintf("/api/get/summary/%s/%s", kind, url.PathEscape(uid))
	if err := c.call(ctx, http.MethodPost, path, nil, &totals); err != nil {
		return nil, err
	}
	return totals, nil
}

// FinancialSummary derives totals and balance from the income and expense
// summaries, fetching both concurrently on a miss.
func (c *Client) FinancialSummary(ctx context.Context) (domain.FinancialSummary, error) {
	return readThrough(ctx, c, cache.KeyFinancialSummary,
		c.cache.GetCachedFinancialSummary, c.cache.CacheFinancialSummary,
		func(ctx context.Context) (domain.FinancialSummary, error) {
			var income, expense domain.CategoryTotals
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				var err error
				income, err = c.IncomeSummary(gctx)
				return err
			})
			g.Go(func() error {
				var err error
				expense, err = c.ExpenseSummary(gctx)
				return err
			})
			if err := g.Wait(); err != nil {
				return domain.FinancialSummary{}, err
			}
			return domain.Summarize(income, expense), nil
		})
}

// CurrentUser returns the logged in user's profile.
func (c *Client) CurrentUser(ctx context.Context) (domain.User, error) {
	return readThrough(ctx, c, cache.KeyUserData,
		c.cache.GetCachedUserData, c.cache.CacheUserData,
		func(ctx context.Context) (domain.User, error) {
			var u domain.User
			err := c.call(ctx, http.MethodGet, "/api/user/me", nil, &u)
			return u, err
		})
}

// AddTransaction creates tx and returns it as stored.
func (c *Client) AddTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	var out domain.Transaction
	if err := c.call(ctx, http.MethodPost, "/api/post", tx, &out); err != nil {
		return nil, err
	}
	c.cache.InvalidateTransactionData()
	return &out, nil
}

// UpdateTransaction replaces the transaction with tx.ID.
func (c *Client) UpdateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.ID == "" {
		return nil, fmt.Errorf("update transaction: missing id")
	}
	var out domain.Transaction
	if err := c.call(ctx, http.MethodPut, "/api/put/"+url.PathEscape(tx.ID), tx, &out); err != nil {
		return nil, err
	}
	c.cache.InvalidateTransactionData()
	return &out, nil
}

// DeleteTransaction removes the transaction id.
func (c *Client) DeleteTransaction(ctx context.Context, id string) error {
	if err := c.call(ctx, http.MethodDelete, "/api/delete/"+url.PathEscape(id), nil, nil); err != nil {
		return err
	}
	c.cache.InvalidateTransactionData()
	return nil
}

// ImportResult reports a CSV import.
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// ImportCSV uploads a CSV file of transactions.
func (c *Client) ImportCSV(ctx context.Context, filename string, r io.Reader) (*ImportResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/import/csv", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var res ImportResult
	if err := decodeEnvelope(resp.Body, &res); err != nil {
		return nil, err
	}
	c.cache.InvalidateTransactionData()
	return &res, nil
}

// ExportCSV streams the user's transactions as CSV into w.
func (c *Client) ExportCSV(ctx context.Context, w io.Writer) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/export/csv", nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := c.do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to read export: %w", err)
	}
	return n, nil
}

// ExportToStorage writes the CSV export to sink under key and returns a
// location for it valid for expires.
func (c *Client) ExportToStorage(ctx context.Context, sink storage.Storage, key string, expires time.Duration) (string, error) {
	var buf bytes.Buffer
	if _, err := c.ExportCSV(ctx, &buf); err != nil {
		return "", err
	}
	if err := sink.Write(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), "text/csv"); err != nil {
		return "", fmt.Errorf("failed to store export: %w", err)
	}
	return sink.GetURL(ctx, key, expires)
}

// Categories lists the user's categories.
func (c *Client) Categories(ctx context.Context) ([]domain.Category, error) {
	var cats []domain.Category
	if err := c.call(ctx, http.MethodGet, "/api/categories", nil, &cats); err != nil {
		return nil, err
	}
	return cats, nil
}

// AddCategory creates a category.
func (c *Client) AddCategory(ctx context.Context, cat domain.Category) (*domain.Category, error) {
	var out domain.Category
	if err := c.call(ctx, http.MethodPost, "/api/categories", cat, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
