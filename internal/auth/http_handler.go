package auth

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type tok interface {
	Authorize(accessToken string) (time.Time, error)
	Status() Status
}

// HTTPHandler serves the loopback side-channel: health and token hand-off.
// It never exposes send functionality.
type HTTPHandler struct {
	tok     tok
	service string
	version string
	logger  *slog.Logger
}

// NewHTTPHandler creates the side-channel handler. service and version are
// reported by /health.
func NewHTTPHandler(tok tok, service, version string, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HTTPHandler{tok: tok, service: service, version: version, logger: logger}
}

// Router wires the handler into an echo instance with CORS for
// allowedOrigins. Patterns such as "chrome-extension://*" are accepted.
func (h *HTTPHandler) Router(allowedOrigins []string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetOutput(io.Discard)
	e.HTTPErrorHandler = h.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType},
		MaxAge:       600,
	}))

	e.GET("/health", h.Health)
	e.POST("/gmail-authorize", h.Authorize)

	return e
}

type healthResponse struct {
	Status      string  `json:"status"`
	Service     string  `json:"service"`
	Version     string  `json:"version"`
	TokenValid  bool    `json:"tokenValid"`
	TokenExpiry *string `json:"tokenExpiry"`
}

func (h *HTTPHandler) Health(c echo.Context) error {
	st := h.tok.Status()

	res := healthResponse{
		Status:     "ok",
		Service:    h.service,
		Version:    h.version,
		TokenValid: st.Valid,
	}
	if !st.Expiry.IsZero() {
		expiry := st.Expiry.UTC().Format(time.RFC3339)
		res.TokenExpiry = &expiry
	}
	return c.JSON(http.StatusOK, res)
}

type authorizeRequest struct {
	Token string `json:"token"`
}

type authorizeResponse struct {
	Success   bool   `json:"success"`
	ExpiresAt string `json:"expiresAt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Authorize stores a pushed token. Bodies other than application/json get 415.
func (h *HTTPHandler) Authorize(c echo.Context) error {
	mediaType, _, err := mime.ParseMediaType(c.Request().Header.Get(echo.HeaderContentType))
	if err != nil || mediaType != echo.MIMEApplicationJSON {
		h.logger.Warn("gmail-authorize: unsupported content type", "contentType", c.Request().Header.Get(echo.HeaderContentType))
		return c.JSON(http.StatusUnsupportedMediaType, errorResponse{Error: "Content-Type must be application/json"})
	}

	var req authorizeRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		h.logger.Warn("gmail-authorize: malformed body", "error", err)
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid JSON body"})
	}

	expiry, err := h.tok.Authorize(req.Token)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Missing token"})
	}

	h.logger.Info("gmail token authorized", "token", maskLeft(req.Token), "expires", expiry.Format(time.RFC3339))
	return c.JSON(http.StatusOK, authorizeResponse{
		Success:   true,
		ExpiresAt: expiry.UTC().Format(time.RFC3339),
	})
}

// handleError renders every failure as JSON. Unknown routes and methods are
// both reported as 404.
func (h *HTTPHandler) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}
	if code == http.StatusNotFound || code == http.StatusMethodNotAllowed {
		code, msg = http.StatusNotFound, "Not found"
	}
	if code >= http.StatusInternalServerError {
		h.logger.Error("side-channel request failed", "path", c.Request().URL.Path, "error", err)
	}

	if err := c.JSON(code, errorResponse{Error: msg}); err != nil {
		h.logger.Warn("c.JSON failed", "error", err)
	}
}

func maskLeft(s string) string {
	rs := []rune(s)
	for i := 0; i < len(rs)-4; i++ {
		rs[i] = 'X'
	}
	return string(rs)
}
