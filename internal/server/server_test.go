package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/fin-dashboard/internal/api"
	"github.com/weiawesome/fin-dashboard/internal/cache"
	"github.com/weiawesome/fin-dashboard/internal/chat"
	"github.com/weiawesome/fin-dashboard/internal/domain"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type testBackend struct {
	srv *Server
	ts  *httptest.Server
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()
	srv, err := New(newTestDB(t), Options{
		JWTSecret: "devbackend-test-secret",
		Issuer:    "test",
		MachineID: 1,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Run(ctx)
		close(done)
	}()

	ts := httptest.NewServer(srv.Router)
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-done
	})
	return &testBackend{srv: srv, ts: ts}
}

// login registers username and returns a logged in client.
func (b *testBackend) login(t *testing.T, username string) *api.Client {
	t.Helper()
	ctx := context.Background()

	client := api.New(b.ts.URL, cache.New(cache.NewMemoryStore()), api.WithLogger(zerolog.Nop()))
	_, err := client.Register(ctx, api.Credentials{Username: username, Password: "secret-" + username})
	require.NoError(t, err)
	_, err = client.Login(ctx, username, "secret-"+username)
	require.NoError(t, err)
	return client
}

func (b *testBackend) chatConfig() chat.Config {
	cfg := chat.DefaultConfig()
	cfg.URL = "ws" + strings.TrimPrefix(b.ts.URL, "http") + "/ws"
	cfg.ReceiptEcho = 0
	cfg.Backoff = chat.Backoff{Base: 10 * time.Millisecond, Max: 50 * time.Millisecond, MaxAttempts: 2}
	return cfg
}

func TestServer_AuthFlow(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	client := b.login(t, "alice")
	me, err := client.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", me.Username)
	assert.Equal(t, []string{domain.RoleUser}, me.Roles)

	_, err = client.Register(ctx, api.Credentials{Username: "alice", Password: "whatever"})
	assert.True(t, api.IsStatus(err, http.StatusConflict))

	_, err = client.Login(ctx, "alice", "wrong-password")
	assert.True(t, api.IsStatus(err, http.StatusUnauthorized))

	anon := api.New(b.ts.URL, cache.New(cache.NewMemoryStore()), api.WithLogger(zerolog.Nop()))
	_, err = anon.CurrentUser(ctx)
	assert.Error(t, err)
}

func TestServer_TransactionsAndSummary(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	client := b.login(t, "alice")

	_, err := client.AddTransaction(ctx, domain.Transaction{
		Type: domain.TransactionIncome, Category: "Salary", Amount: decimal.RequireFromString("3000"), Date: "2024-05-01",
	})
	require.NoError(t, err)
	rent, err := client.AddTransaction(ctx, domain.Transaction{
		Type: domain.TransactionExpense, Category: "Rent", Amount: decimal.RequireFromString("1200.50"), Date: "2024-05-02",
	})
	require.NoError(t, err)

	txs, err := client.Transactions(ctx)
	require.NoError(t, err)
	assert.Len(t, txs, 2)

	summary, err := client.FinancialSummary(ctx)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("3000").Equal(summary.TotalIncome))
	assert.True(t, decimal.RequireFromString("1200.50").Equal(summary.TotalExpense))
	assert.True(t, decimal.RequireFromString("1799.50").Equal(summary.Balance))

	rent.Amount = decimal.RequireFromString("1100")
	_, err = client.UpdateTransaction(ctx, *rent)
	require.NoError(t, err)

	expense, err := client.ExpenseSummary(ctx)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1100").Equal(expense["Rent"]), "mutation invalidates cached summary")

	require.NoError(t, client.DeleteTransaction(ctx, rent.ID))
	err = client.DeleteTransaction(ctx, rent.ID)
	assert.True(t, api.IsStatus(err, http.StatusNotFound))

	_, err = client.AddTransaction(ctx, domain.Transaction{Type: "GIFT", Category: "x", Amount: decimal.NewFromInt(1), Date: "2024-05-03"})
	assert.True(t, api.IsStatus(err, http.StatusBadRequest))
}

func TestServer_SummaryOfOtherUserForbidden(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	alice := b.login(t, "alice")
	bob := b.login(t, "bob")
	aliceClaims, err := alice.Claims()
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.ts.URL+"/api/get/summary/income/"+aliceClaims.UserID, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+bob.Token())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServer_ImportExport(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	client := b.login(t, "alice")

	csvData := "date,type,category,amount,description\n" +
		"2024-06-01,INCOME,Salary,100.00,june\n" +
		"2024-06-02,EXPENSE,Food,oops,broken\n"
	res, err := client.ImportCSV(ctx, "june.csv", strings.NewReader(csvData))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 1, res.Skipped)

	var buf bytes.Buffer
	_, err = client.ExportCSV(ctx, &buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "2024-06-01,INCOME,Salary,100.00,june")

	_, err = client.AddCategory(ctx, domain.Category{Name: "Food", Type: domain.TransactionExpense})
	require.NoError(t, err)
	cats, err := client.Categories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "Food", cats[0].Name)
}

func findContent(msgs []domain.Message, content string) (domain.Message, bool) {
	for _, m := range msgs {
		if m.Type == domain.MessageChat && m.Content == content {
			return m, true
		}
	}
	return domain.Message{}, false
}

func TestServer_ChatRoundTrip(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	aliceAPI := b.login(t, "alice")
	bobAPI := b.login(t, "bob")
	dialer := chat.NewWebsocketDialer(chat.DefaultWebsocketConfig())

	alice := chat.NewSession(b.chatConfig(), dialer, aliceAPI, chat.WithLogger(zerolog.Nop()))
	bob := chat.NewSession(b.chatConfig(), dialer, bobAPI, chat.WithLogger(zerolog.Nop()))
	t.Cleanup(alice.Disconnect)
	t.Cleanup(bob.Disconnect)

	require.NoError(t, alice.Connect(ctx, chat.Identity{Username: "alice", Token: aliceAPI.Token()}))
	require.NoError(t, bob.Connect(ctx, chat.Identity{Username: "bob", Token: bobAPI.Token()}))
	assert.Equal(t, chat.StateConnected, alice.State())

	require.Eventually(t, func() bool {
		return b.srv.Hub.SubscriberCount("/topic/public") == 2
	}, 2*time.Second, 10*time.Millisecond)

	sent, err := alice.Send(ctx, domain.NewChat("alice", "hello bob"))
	require.NoError(t, err)
	assert.NotEmpty(t, sent.LocalID)
	assert.True(t, sent.Pending())

	var confirmed domain.Message
	require.Eventually(t, func() bool {
		m, ok := findContent(alice.Messages(), "hello bob")
		if !ok || m.Pending() || m.ID() == "" {
			return false
		}
		confirmed = m
		return true
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, sent.LocalID, confirmed.LocalID)
	assert.Equal(t, domain.SendStatusSent, confirmed.Confirmation.SendStatus)

	require.Eventually(t, func() bool {
		m, ok := findContent(bob.Messages(), "hello bob")
		return ok && m.ID() == confirmed.ID()
	}, 2*time.Second, 10*time.Millisecond)

	var count int
	for _, m := range alice.Messages() {
		if m.Content == "hello bob" {
			count++
		}
	}
	assert.Equal(t, 1, count, "receipt and broadcast must not duplicate")

	history, err := aliceAPI.ChatHistory(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, confirmed.ID(), history[0].ID())
	assert.Equal(t, "alice", history[0].Sender)
}

func TestServer_ChatRejectsBadToken(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	cfg := b.chatConfig()
	cfg.Backoff.MaxAttempts = 0
	sess := chat.NewSession(cfg, chat.NewWebsocketDialer(chat.DefaultWebsocketConfig()), nil, chat.WithLogger(zerolog.Nop()))
	t.Cleanup(sess.Disconnect)

	err := sess.Connect(ctx, chat.Identity{Username: "mallory", Token: "not-a-token"})
	assert.ErrorIs(t, err, chat.ErrHandshake)
	assert.NotEqual(t, chat.StateConnected, sess.State())
}
