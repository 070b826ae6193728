package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/fin-dashboard/internal/cache"
	"github.com/weiawesome/fin-dashboard/internal/domain"
	"github.com/weiawesome/fin-dashboard/internal/server"
	"github.com/weiawesome/fin-dashboard/pkg/database"
)

// testEnv points finctl at a private config dir and cache file.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cachePath := filepath.Join(dir, "cache.json")
	t.Setenv("FIN_CACHE_DRIVER", "file")
	t.Setenv("FIN_CACHE_PATH", cachePath)
	t.Setenv("FIN_LOG_LEVEL", "error")
	return cachePath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--config", t.TempDir(), "--no-color"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCacheCommands(t *testing.T) {
	cachePath := testEnv(t)

	store, err := cache.NewFileStore(cachePath)
	require.NoError(t, err)
	c := cache.New(store)
	require.NoError(t, c.CacheTransactions([]domain.Transaction{{ID: "1", Category: "Food"}}))
	require.NoError(t, c.CacheUserData(domain.User{ID: "u-1", Username: "alice"}))

	out, err := run(t, "cache", "inspect", "--json")
	require.NoError(t, err)

	var statuses []cache.EntryStatus
	require.NoError(t, json.Unmarshal([]byte(out), &statuses))
	states := map[cache.Key]cache.EntryState{}
	for _, st := range statuses {
		states[st.Key] = st.State
	}
	assert.Equal(t, cache.StateValid, states[cache.KeyTransactions])
	assert.Equal(t, cache.StateValid, states[cache.KeyUserData])
	assert.Equal(t, cache.StateAbsent, states[cache.KeyIncomeData])

	out, err = run(t, "cache", "invalidate", "transactions")
	require.NoError(t, err)
	assert.Contains(t, out, "invalidated TRANSACTIONS")

	_, ok := cache.New(store).GetCachedTransactions()
	assert.False(t, ok)

	_, err = run(t, "cache", "invalidate", "bogus")
	assert.Error(t, err)

	_, err = run(t, "cache", "clear")
	require.NoError(t, err)
	_, ok = cache.New(store).GetCachedUserData()
	assert.False(t, ok)
}

func TestCacheInspectTable(t *testing.T) {
	testEnv(t)

	out, err := run(t, "cache", "inspect")
	require.NoError(t, err)
	assert.Contains(t, out, "KEY")
	assert.Contains(t, out, "FINANCIAL_SUMMARY")
	assert.Contains(t, out, "absent")
}

func startBackend(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.New(&database.Config{Driver: "sqlite", FilePath: filepath.Join(t.TempDir(), "backend.db")})
	require.NoError(t, err)
	srv, err := server.New(db, server.Options{JWTSecret: "cli-test-secret-0123", Issuer: "test", MachineID: 2})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Run(ctx)
	ts := httptest.NewServer(srv.Router)
	t.Cleanup(func() {
		ts.Close()
		cancel()
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return ts.URL
}

func TestTransactionCommands(t *testing.T) {
	testEnv(t)
	t.Setenv("FIN_API_URL", startBackend(t))

	out, err := run(t, "login", "--register", "-u", "carol", "-p", "carol-secret")
	require.NoError(t, err)
	assert.Contains(t, out, "logged in as carol")

	_, err = run(t, "tx", "add", "--type", "income", "--category", "Salary", "--amount", "2000", "--date", "2024-07-01")
	require.NoError(t, err)
	_, err = run(t, "tx", "add", "--category", "Food", "--amount", "20.25", "--date", "2024-07-02")
	require.NoError(t, err)

	out, err = run(t, "tx", "list", "--json")
	require.NoError(t, err)
	var txs []domain.Transaction
	require.NoError(t, json.Unmarshal([]byte(out), &txs))
	require.Len(t, txs, 2)

	out, err = run(t, "tx", "list", "--type", "expense")
	require.NoError(t, err)
	assert.Contains(t, out, "Food")
	assert.NotContains(t, out, "Salary")

	out, err = run(t, "summary", "--json")
	require.NoError(t, err)
	var report summaryReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, decimal.RequireFromString("1979.75").Equal(report.Summary.Balance))

	_, err = run(t, "tx", "delete", txs[0].ID)
	require.NoError(t, err)

	out, err = run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "carol")
	assert.Contains(t, out, "token expires in")

	_, err = run(t, "logout")
	require.NoError(t, err)
	_, err = run(t, "tx", "list")
	assert.Error(t, err)
}

const testStatement = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20250301120000
<LANGUAGE>ENG
<FI>
<ORG>TESTCARD
<FID>98765
</FI>
</SONRS>
</SIGNONMSGSRSV1>
<CREDITCARDMSGSRSV1>
<CCSTMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<CCSTMTRS>
<CURDEF>USD
<CCACCTFROM>
<ACCTID>4111111111111111
</CCACCTFROM>
<BANKTRANLIST>
<DTSTART>20250301000000
<DTEND>20250331235959
<STMTTRN>
<TRNTYPE>FEE
<DTPOSTED>20250310120000
<TRNAMT>-4.99
<FITID>CC001
<NAME>Annual fee
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20250312120000
<TRNAMT>20.00
<FITID>CC002
<NAME>Refund
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>-15.01
<DTASOF>20250331235959
</LEDGERBAL>
</CCSTMTRS>
</CCSTMTTRNRS>
</CREDITCARDMSGSRSV1>
</OFX>`

func TestImportStatement(t *testing.T) {
	testEnv(t)
	t.Setenv("FIN_API_URL", startBackend(t))

	_, err := run(t, "login", "--register", "-u", "erin", "-p", "erin-secret")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "march.qfx")
	require.NoError(t, os.WriteFile(path, []byte(testStatement), 0o644))

	out, err := run(t, "tx", "import", path)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 2, skipped 0")

	out, err = run(t, "tx", "list", "--json")
	require.NoError(t, err)
	var txs []domain.Transaction
	require.NoError(t, json.Unmarshal([]byte(out), &txs))
	require.Len(t, txs, 2)

	byCategory := map[string]domain.Transaction{}
	for _, tx := range txs {
		byCategory[tx.Category] = tx
	}
	assert.Equal(t, domain.TransactionExpense, byCategory["Fees"].Type)
	assert.True(t, decimal.RequireFromString("4.99").Equal(byCategory["Fees"].Amount))
	assert.Equal(t, domain.TransactionIncome, byCategory["Uncategorized"].Type)
}

func TestFormatMessage(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	join := domain.NewJoin("dave")
	join.Timestamp = ts
	assert.Contains(t, formatMessage(join), "* dave joined")

	m := domain.NewChat("dave", "hi")
	m.Timestamp = ts
	m.Confirmation.Pending = true
	assert.Contains(t, formatMessage(m), "dave: hi (sending)")

	m.Confirmation.SendStatus = domain.SendStatusDelayed
	assert.Contains(t, formatMessage(m), "(delayed)")

	m.Confirm("42")
	assert.NotContains(t, formatMessage(m), "(")
}
