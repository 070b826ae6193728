package server

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/fin-dashboard/internal/chat"
	"github.com/weiawesome/fin-dashboard/internal/domain"
	"github.com/weiawesome/fin-dashboard/pkg/log"
	"github.com/weiawesome/fin-dashboard/pkg/middleware"
	"github.com/weiawesome/fin-dashboard/pkg/response"
)

const maxImportSize = 10 << 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler handles HTTP requests for the devbackend.
type Handler struct {
	auth           *AuthService
	finance        *FinanceService
	chat           *ChatService
	hub            *Hub
	wsCfg          chat.WebsocketConfig
	authMiddleware *middleware.AuthMiddleware
}

func NewHandler(auth *AuthService, finance *FinanceService, chatSvc *ChatService, hub *Hub, wsCfg chat.WebsocketConfig, authMiddleware *middleware.AuthMiddleware) *Handler {
	return &Handler{
		auth:           auth,
		finance:        finance,
		chat:           chatSvc,
		hub:            hub,
		wsCfg:          wsCfg,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.HandleWebSocket)

	api := r.Group("/api")
	{
		// Public routes
		api.GET("/health", h.Health)
		api.POST("/auth/login", h.Login)
		api.POST("/auth/register", h.Register)

		// Protected routes
		authed := api.Group("", h.authMiddleware.RequireAuth())
		authed.GET("/user/me", h.Me)
		authed.POST("/get", h.ListTransactions)
		summary := authed.Group("/get/summary", h.authMiddleware.RequireSelfOrRole("userId", domain.RoleAdmin, domain.RoleAccountant))
		summary.POST("/income/:userId", h.Summary(domain.TransactionIncome))
		summary.POST("/expense/:userId", h.Summary(domain.TransactionExpense))
		authed.POST("/post", h.AddTransaction)
		authed.PUT("/put/:id", h.UpdateTransaction)
		authed.DELETE("/delete/:id", h.DeleteTransaction)
		authed.POST("/import/csv", h.ImportCSV)
		authed.GET("/export/csv", h.ExportCSV)
		authed.GET("/categories", h.ListCategories)
		authed.POST("/categories", h.AddCategory)
		authed.GET("/chat/history", h.ChatHistory)
	}
}

func (h *Handler) Health(c *gin.Context) {
	response.Success(c, gin.H{
		"status":  "ok",
		"clients": h.hub.ClientCount(),
	})
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Email    string `json:"email"`
}

func (h *Handler) Register(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	user, err := h.auth.Register(ctx, req.Username, req.Password, req.Email)
	if err != nil {
		switch {
		case errors.Is(err, ErrUsernameExists):
			response.Conflict(c, err.Error())
		case errors.Is(err, ErrWeakPassword), errors.Is(err, ErrUsernameRequired):
			response.BadRequest(c, err.Error())
		default:
			l.Error().Err(err).Msg("failed to register user")
			response.InternalError(c, "failed to register user")
		}
		return
	}

	response.Created(c, user)
}

func (h *Handler) Login(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.auth.Login(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			response.Unauthorized(c, "invalid username or password")
			return
		}
		l.Error().Err(err).Msg("failed to login")
		response.InternalError(c, "failed to login")
		return
	}

	response.Success(c, result)
}

func (h *Handler) Me(c *gin.Context) {
	ctx := c.Request.Context()

	user, err := h.auth.Me(ctx, middleware.GetUserID(c))
	if err != nil {
		h.writeError(c, err, "failed to get user")
		return
	}
	response.Success(c, user)
}

func (h *Handler) ListTransactions(c *gin.Context) {
	txs, err := h.finance.ListTransactions(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.writeError(c, err, "failed to list transactions")
		return
	}
	response.Success(c, txs)
}

// Summary serves per-category totals of typ for the :userId path parameter.
func (h *Handler) Summary(typ domain.TransactionType) gin.HandlerFunc {
	return func(c *gin.Context) {
		target := c.Param("userId")
		totals, err := h.finance.Summary(c.Request.Context(), target, typ)
		if err != nil {
			h.writeError(c, err, "failed to summarize transactions")
			return
		}
		response.Success(c, totals)
	}
}

func (h *Handler) AddTransaction(c *gin.Context) {
	var tx domain.Transaction
	if err := c.ShouldBindJSON(&tx); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	out, err := h.finance.AddTransaction(c.Request.Context(), middleware.GetUserID(c), tx)
	if err != nil {
		h.writeError(c, err, "failed to add transaction")
		return
	}
	response.Created(c, out)
}

func (h *Handler) UpdateTransaction(c *gin.Context) {
	var tx domain.Transaction
	if err := c.ShouldBindJSON(&tx); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	out, err := h.finance.UpdateTransaction(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), tx)
	if err != nil {
		h.writeError(c, err, "failed to update transaction")
		return
	}
	response.Success(c, out)
}

func (h *Handler) DeleteTransaction(c *gin.Context) {
	if err := h.finance.DeleteTransaction(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		h.writeError(c, err, "failed to delete transaction")
		return
	}
	response.Success(c, gin.H{"id": c.Param("id")})
}

func (h *Handler) ImportCSV(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportSize)

	file, _, err := c.Request.FormFile("file")
	if err != nil {
		response.BadRequest(c, "missing csv file")
		return
	}
	defer file.Close()

	res, err := h.finance.ImportCSV(c.Request.Context(), middleware.GetUserID(c), file)
	if err != nil {
		h.writeError(c, err, "failed to import transactions")
		return
	}
	response.Success(c, res)
}

// ExportCSV renders the whole export before writing so failures still get
// an error envelope.
func (h *Handler) ExportCSV(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.finance.ExportCSV(c.Request.Context(), middleware.GetUserID(c), &buf); err != nil {
		h.writeError(c, err, "failed to export transactions")
		return
	}

	c.Header("Content-Disposition", `attachment; filename="transactions.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (h *Handler) ListCategories(c *gin.Context) {
	cats, err := h.finance.Categories(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.writeError(c, err, "failed to list categories")
		return
	}
	response.Success(c, cats)
}

func (h *Handler) AddCategory(c *gin.Context) {
	var cat domain.Category
	if err := c.ShouldBindJSON(&cat); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	out, err := h.finance.AddCategory(c.Request.Context(), middleware.GetUserID(c), cat)
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			response.Conflict(c, "category already exists")
			return
		}
		h.writeError(c, err, "failed to add category")
		return
	}
	response.Created(c, out)
}

func (h *Handler) ChatHistory(c *gin.Context) {
	response.Success(c, h.chat.History())
}

// HandleWebSocket upgrades the connection and attaches it to the hub. A
// bearer token on the upgrade request is remembered for CONNECT frames
// that carry none.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	l := log.Ctx(c.Request.Context())

	token := c.Query(middleware.TokenQueryKey)
	if auth := c.GetHeader(middleware.AuthHeaderKey); strings.HasPrefix(auth, middleware.BearerPrefix) {
		token = strings.TrimPrefix(auth, middleware.BearerPrefix)
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(uuid.New().String(), h.hub, conn, h.wsCfg, token)
	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump(h.chat.HandleFrame, h.chat.HandleClose)
}

// writeError maps service errors to envelope responses.
func (h *Handler) writeError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "not found")
	case errors.Is(err, ErrInvalidTransaction):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrDuplicate):
		response.Conflict(c, err.Error())
	default:
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg(msg)
		response.InternalError(c, msg)
	}
}
