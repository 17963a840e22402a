package api

import (
	"errors"
	"net/http"
	"time"

	"FKSEngine/internal/domain/models"
	"FKSEngine/internal/service/ratelimit"
	"FKSEngine/internal/usecase"
	"FKSEngine/pkg/cache"
	xhttp "FKSEngine/pkg/http"
	"FKSEngine/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Handler exposes the engines over HTTP.
type Handler struct {
	query   *usecase.Query
	ingest  *usecase.Ingest
	proc    *usecase.BarProcessor
	limiter *ratelimit.Limiter
	cache   cache.Service
	ttl     time.Duration
	log     *logger.Logger
}

type Option func(*Handler)

// WithRateLimiter limits every /api route per client address.
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(h *Handler) { h.limiter = l }
}

// WithResponseCache caches overview responses for ttl.
func WithResponseCache(c cache.Service, ttl time.Duration) Option {
	return func(h *Handler) {
		h.cache = c
		h.ttl = ttl
	}
}

func NewHandler(query *usecase.Query, ingest *usecase.Ingest, proc *usecase.BarProcessor, log *logger.Logger, opts ...Option) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	h := &Handler{query: query, ingest: ingest, proc: proc, log: log}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Live)

	g := e.Group("/api", h.rateLimit)
	g.GET("/state", h.State)
	g.GET("/health", h.Health)
	g.GET("/parameters", h.Parameters)
	g.GET("/regimes", h.Regimes)
	g.GET("/composites", h.Composites)
	g.GET("/overview", h.Overview)
	g.POST("/bars", h.Bars)
	g.POST("/signals", h.Signals)
	g.POST("/outcomes", h.Outcomes)
	g.POST("/reset", h.Reset)
}

func (h *Handler) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.limiter != nil && !h.limiter.Allow(c.RealIP()) {
			return xhttp.ErrorResponse(c, xhttp.TooManyRequestsError("rate limit exceeded"))
		}
		return next(c)
	}
}

func (h *Handler) Live(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"status":  "ok",
		"symbols": h.proc.Engines().Symbols(),
	})
}

func (h *Handler) State(c echo.Context) error {
	req, verr := xhttp.Bind[models.StateQuery](c)
	if verr != nil {
		return xhttp.ErrorResponse(c, verr)
	}
	st, err := h.query.State(c.Request().Context(), req.Symbol)
	if err != nil {
		return h.fail(c, "state", err)
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *Handler) Health(c echo.Context) error {
	req, verr := xhttp.Bind[models.HealthQuery](c)
	if verr != nil {
		return xhttp.ErrorResponse(c, verr)
	}
	if req.Symbol == "" {
		reports := h.query.HealthAll()
		return xhttp.ListResponse(c, reports, len(reports))
	}
	rep, err := h.query.Health(req.Symbol)
	if err != nil {
		return h.fail(c, "health", err)
	}
	return xhttp.SuccessResponse(c, rep)
}

func (h *Handler) Parameters(c echo.Context) error {
	req, verr := xhttp.Bind[models.StateQuery](c)
	if verr != nil {
		return xhttp.ErrorResponse(c, verr)
	}
	p, err := h.query.Parameters(req.Symbol)
	if err != nil {
		return h.fail(c, "parameters", err)
	}
	return xhttp.SuccessResponse(c, p)
}

func (h *Handler) Regimes(c echo.Context) error {
	req, verr := xhttp.Bind[models.StateQuery](c)
	if verr != nil {
		return xhttp.ErrorResponse(c, verr)
	}
	snaps, err := h.query.Regimes(req.Symbol, req.Limit)
	if err != nil {
		return h.fail(c, "regimes", err)
	}
	return xhttp.ListResponse(c, snaps, len(snaps))
}

func (h *Handler) Composites(c echo.Context) error {
	req, verr := xhttp.Bind[models.StateQuery](c)
	if verr != nil {
		return xhttp.ErrorResponse(c, verr)
	}
	cs, err := h.query.Composites(c.Request().Context(), req.Symbol, req.Limit)
	if err != nil {
		return h.fail(c, "composites", err)
	}
	return xhttp.ListResponse(c, cs, len(cs))
}

func (h *Handler) Overview(c echo.Context) error {
	req, verr := xhttp.Bind[models.StateQuery](c)
	if verr != nil {
		return xhttp.ErrorResponse(c, verr)
	}
	ctx := c.Request().Context()
	key := cache.Key("overview", req.Symbol, req.Limit)
	if h.cache != nil {
		if ov, err := cache.GetAs[usecase.Overview](ctx, h.cache, key); err == nil {
			return xhttp.SuccessResponse(c, ov)
		}
	}
	ov, err := h.query.Overview(ctx, req.Symbol, req.Limit)
	if err != nil {
		return h.fail(c, "overview", err)
	}
	if h.cache != nil {
		if err := h.cache.Set(ctx, key, ov, h.ttl); err != nil {
			h.log.Debug("overview cache set failed", logger.String("symbol", req.Symbol), logger.Error(err))
		}
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=5")
	return xhttp.SuccessResponse(c, ov)
}

func (h *Handler) Bars(c echo.Context) error {
	req, verr := xhttp.Bind[models.BarRequest](c)
	if verr != nil {
		return xhttp.ErrorResponse(c, verr)
	}
	bar := req.ToBar()
	out, err := h.proc.ProcessBar(c.Request().Context(), &bar)
	if err != nil {
		return h.fail(c, "bars", err)
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *Handler) Signals(c echo.Context) error {
	req, verr := xhttp.Bind[models.SignalRequest](c)
	if verr != nil {
		return xhttp.ErrorResponse(c, verr)
	}
	res, err := h.ingest.Signal(*req)
	if err != nil {
		return h.fail(c, "signals", err)
	}
	return xhttp.AcceptedResponse(c, map[string]interface{}{
		"symbol":    req.Symbol,
		"component": req.Component,
		"state":     res.State,
		"composite": res.Composite,
	})
}

func (h *Handler) Outcomes(c echo.Context) error {
	req, verr := xhttp.Bind[models.OutcomeRequest](c)
	if verr != nil {
		return xhttp.ErrorResponse(c, verr)
	}
	if err := h.ingest.Outcome(*req); err != nil {
		return h.fail(c, "outcomes", err)
	}
	return xhttp.AcceptedResponse(c, map[string]string{"composite_id": req.CompositeID})
}

func (h *Handler) Reset(c echo.Context) error {
	req, verr := xhttp.Bind[models.ResetRequest](c)
	if verr != nil {
		return xhttp.ErrorResponse(c, verr)
	}
	if err := h.ingest.Reset(req.Symbol); err != nil {
		return h.fail(c, "reset", err)
	}
	h.log.Info("engine reset", logger.String("symbol", req.Symbol))
	return xhttp.AcceptedResponse(c, map[string]string{"symbol": req.Symbol})
}

func (h *Handler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.log.Error(op+" failed", logger.Error(err))
	}
	return xhttp.ErrorResponse(c, appErr)
}

// toAppError maps engine error kinds onto HTTP statuses.
func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, models.ErrOutcomeRecorded) {
		return xhttp.Errorf(http.StatusConflict, "ERR_DUPLICATE_OUTCOME", "%v", err).WithError(err)
	}
	switch models.KindOf(err) {
	case models.KindInvalidInput:
		return xhttp.BadRequestErrorf("%v", err).WithError(err)
	case models.KindInsufficientData:
		return xhttp.NotFoundErrorf("%v", err).WithError(err)
	case models.KindNoConsensus:
		return xhttp.UnprocessableErrorf("ERR_NO_CONSENSUS", "%v", err).WithError(err)
	default:
		return xhttp.InternalErrorf("internal error").WithError(err)
	}
}
