// @title           Equity Positions API
// @version         1.0
// @description     Versioned trade transactions and real-time net positions per security
// @termsOfService  http://swagger.io/terms/

// @contact.name   API Support
// @contact.url    http://www.swagger.io/support
// @contact.email  support@swagger.io

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /api

package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	appinterfaces "github.com/shirish73/equityms/internal/application/interfaces"
	apppositions "github.com/shirish73/equityms/internal/application/service/positions"
	"github.com/shirish73/equityms/internal/application/service/seed"
	domain "github.com/shirish73/equityms/internal/domain/entity/positions"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const (
	transactionsBasePath = "/api/transactions"
	cacheKeyPrefix       = "cache:"
	cacheGenerationKey   = "cachegen:transactions"
	invalidateTimeout    = 2 * time.Second
)

var errInvalidRange = errors.New("after and limit must be non-negative integers")

type Handler struct {
	router    *gin.Engine
	positions *apppositions.Service
	cache     *redis.Client
	cacheTTL  time.Duration
	logger    *logrus.Entry
}

var _ appinterfaces.HTTPHandler = (*Handler)(nil)

func NewHandler(svc *apppositions.Service, cache *redis.Client, cacheTTL time.Duration, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	router := gin.New()
	router.Use(gin.Recovery())

	h := &Handler{
		router:    router,
		positions: svc,
		cache:     cache,
		cacheTTL:  cacheTTL,
		logger:    logger.WithField("component", "http"),
	}
	h.registerRoutes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	h.router.GET("/healthz", h.healthz)

	tx := h.router.Group(transactionsBasePath)
	if h.cache != nil {
		tx.Use(h.cacheMiddleware())
	}
	{
		tx.POST("", h.submitTransaction)
		tx.GET("", h.listTransactions)
		tx.GET("/positions", h.listPositions)
		tx.GET("/positions/:securityCode", h.getPosition)
		tx.POST("/sample-data", h.loadSampleData)
		tx.DELETE("/all", h.clearAll)
	}
}

// healthz reports liveness
// @Summary      Liveness probe
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /healthz [get]
func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// submitTransaction accepts one versioned trade transaction
// @Summary      Submit transaction
// @Description  Validate a candidate against its trade's state, append it to the ledger and update positions
// @Tags         transactions
// @Accept       json
// @Produce      json
// @Param        transaction  body      domain.Candidate  true  "Candidate transaction"
// @Success      201          {object}  domain.Transaction
// @Failure      400          {object}  map[string]string
// @Failure      404          {object}  map[string]string
// @Failure      409          {object}  map[string]string
// @Failure      503          {object}  map[string]string
// @Router       /transactions [post]
func (h *Handler) submitTransaction(c *gin.Context) {
	var candidate domain.Candidate
	if err := c.ShouldBindJSON(&candidate); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	tx, err := h.positions.Submit(c.Request.Context(), candidate)
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

// listTransactions returns the ledger
// @Summary      List transactions
// @Description  Ordered ledger, oldest first. after and limit select a range by transaction id.
// @Tags         transactions
// @Produce      json
// @Param        after  query     int  false  "Return transactions with id greater than this"
// @Param        limit  query     int  false  "Maximum number of transactions, 0 for no limit"
// @Success      200    {array}   domain.Transaction
// @Failure      400    {object}  map[string]string
// @Failure      503    {object}  map[string]string
// @Router       /transactions [get]
func (h *Handler) listTransactions(c *gin.Context) {
	ctx := c.Request.Context()
	if c.Query("after") == "" && c.Query("limit") == "" {
		txs, err := h.positions.Transactions(ctx)
		if err != nil {
			writeError(c, statusFor(err), err)
			return
		}
		c.JSON(http.StatusOK, nonNil(txs))
		return
	}

	after, err := parseOptionalInt64Query(c, "after")
	if err != nil || after < 0 {
		writeError(c, http.StatusBadRequest, errInvalidRange)
		return
	}
	limit, err := parseOptionalInt64Query(c, "limit")
	if err != nil || limit < 0 {
		writeError(c, http.StatusBadRequest, errInvalidRange)
		return
	}
	txs, err := h.positions.TransactionsAfter(ctx, after, int(limit))
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, nonNil(txs))
}

// listPositions returns every net position
// @Summary      List positions
// @Description  Net quantity per security code, sorted by code. Securities that returned to zero are kept.
// @Tags         positions
// @Produce      json
// @Success      200  {array}  domain.Position
// @Router       /transactions/positions [get]
func (h *Handler) listPositions(c *gin.Context) {
	c.JSON(http.StatusOK, domain.SortedPositions(h.positions.Positions()))
}

// getPosition returns one net position
// @Summary      Get position
// @Tags         positions
// @Produce      json
// @Param        securityCode  path      string  true  "Security code"
// @Success      200           {object}  domain.Position
// @Failure      404           {object}  map[string]string
// @Router       /transactions/positions/{securityCode} [get]
func (h *Handler) getPosition(c *gin.Context) {
	code := domain.NormalizeSecurityCode(c.Param("securityCode"))
	qty, ok := h.positions.Position(code)
	if !ok {
		writeError(c, http.StatusNotFound, fmt.Errorf("no position for security %q", code))
		return
	}
	c.JSON(http.StatusOK, domain.Position{SecurityCode: code, Quantity: qty})
}

// loadSampleData submits the demo sequence
// @Summary      Load sample data
// @Description  Submit the fixed sample transaction sequence in order
// @Tags         transactions
// @Produce      json
// @Success      201  {array}   domain.Transaction
// @Failure      409  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /transactions/sample-data [post]
func (h *Handler) loadSampleData(c *gin.Context) {
	txs, err := seed.Load(c.Request.Context(), h.positions)
	if err != nil {
		h.logger.WithError(err).WithField("accepted", len(txs)).Warn("sample data load stopped")
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusCreated, txs)
}

// clearAll resets the ledger and every position
// @Summary      Clear all
// @Description  Administrative reset of the ledger, snapshots and positions
// @Tags         transactions
// @Success      204  "No Content"
// @Failure      503  {object}  map[string]string
// @Router       /transactions/all [delete]
func (h *Handler) clearAll(c *gin.Context) {
	if err := h.positions.Clear(c.Request.Context()); err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.Status(http.StatusNoContent)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownTrade):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateInsert),
		errors.Is(err, domain.ErrTradeCancelled),
		errors.Is(err, domain.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, status int, err error) {
	if err == nil {
		status = http.StatusInternalServerError
		err = errors.New("unknown error")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func nonNil(txs []domain.Transaction) []domain.Transaction {
	if txs == nil {
		return []domain.Transaction{}
	}
	return txs
}

// cacheMiddleware caches GET responses in Redis. Keys carry the write
// generation read before the handler runs. Every mutating request bumps the
// generation once it has finished, so a GET that read state before a write
// completed can only populate a key no later GET will look up.
func (h *Handler) cacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.cache == nil {
			c.Next()
			return
		}
		if c.Request.Method != http.MethodGet {
			c.Next()
			h.invalidate()
			return
		}

		ctx := c.Request.Context()
		gen, err := h.cacheGeneration(ctx)
		if err != nil {
			h.logger.WithError(err).Debug("cache generation read failed, bypassing cache")
			c.Next()
			return
		}
		key := h.cacheKey(c, gen)

		if cached, err := h.cache.Get(ctx, key).Result(); err == nil {
			c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(cached))
			c.Abort()
			return
		}

		recorder := &responseRecorder{
			ResponseWriter: c.Writer,
			status:         http.StatusOK,
			body:           &bytes.Buffer{},
		}
		c.Writer = recorder

		c.Next()

		if recorder.status >= 200 && recorder.status < 300 && recorder.body.Len() > 0 {
			if err := h.cache.Set(ctx, key, recorder.body.Bytes(), h.cacheTTL).Err(); err != nil {
				h.logger.WithError(err).WithField("key", key).Debug("cache set failed")
			}
		}
	}
}

func (h *Handler) cacheGeneration(ctx context.Context) (int64, error) {
	gen, err := h.cache.Get(ctx, cacheGenerationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// invalidate bumps the write generation and drops cached entries. It runs
// detached from the request so a client hanging up does not leave stale
// entries behind.
func (h *Handler) invalidate() {
	ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
	defer cancel()

	if err := h.cache.Incr(ctx, cacheGenerationKey).Err(); err != nil {
		h.logger.WithError(err).Warn("cache generation bump failed")
	}

	var cursor uint64
	for {
		keys, next, err := h.cache.Scan(ctx, cursor, cacheKeyPrefix+"*", 100).Result()
		if err != nil {
			h.logger.WithError(err).Warn("cache invalidation scan failed")
			return
		}
		if len(keys) > 0 {
			if err := h.cache.Del(ctx, keys...).Err(); err != nil {
				h.logger.WithError(err).Warn("cache invalidation delete failed")
				return
			}
		}
		if next == 0 {
			return
		}
		cursor = next
	}
}

type responseRecorder struct {
	gin.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if len(data) > 0 {
		r.body.Write(data)
	}
	return r.ResponseWriter.Write(data)
}

// cacheKey uses the concrete path so each security code gets its own entry.
func (h *Handler) cacheKey(c *gin.Context, gen int64) string {
	return fmt.Sprintf("%s%d:%s:%s?%s", cacheKeyPrefix, gen, c.Request.Method, c.Request.URL.Path, c.Request.URL.RawQuery)
}

func parseOptionalInt64Query(c *gin.Context, key string) (int64, error) {
	value := c.Query(key)
	if value == "" {
		return 0, nil
	}
	return strconv.ParseInt(value, 10, 64)
}
