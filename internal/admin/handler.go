// Package admin serves the admin API. Book management is proxied to
// catalog-service; upstream failures arrive as *svcclient.Error and are
// answered without retrying again here.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/RassulYunussov/svcclient"
	"github.com/RassulYunussov/svcclient/internal/auth"
	"github.com/RassulYunussov/svcclient/internal/catalog"
	"github.com/RassulYunussov/svcclient/internal/requestid"
	"github.com/RassulYunussov/svcclient/internal/response"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodyBytes = 10 << 20

// Books is the catalog-service surface used by the handlers.
type Books interface {
	CreateBook(ctx context.Context, book json.RawMessage, requestID, authHeader string) (*catalog.Result, error)
	ListBooks(ctx context.Context, query url.Values, requestID, authHeader string) (*catalog.Result, error)
	GetBook(ctx context.Context, id, requestID, authHeader string) (*catalog.Result, error)
	UpdateBook(ctx context.Context, id string, update json.RawMessage, requestID, authHeader string) (*catalog.Result, error)
	DeleteBook(ctx context.Context, id, requestID, authHeader string) (*catalog.Result, error)
}

type Handler struct {
	serviceName string
	books       Books
	auth        *auth.Service
}

func NewHandler(serviceName string, books Books, authService *auth.Service) *Handler {
	return &Handler{serviceName: serviceName, books: books, auth: authService}
}

// Router wires the admin routes. gatherer backs /metrics.
func (h *Handler) Router(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Post("/auth/login", h.Login)
	r.Route("/api/catalog/books", func(r chi.Router) {
		r.Use(h.auth.RequireAdmin)
		r.Post("/", h.CreateBook)
		r.Get("/", h.ListBooks)
		r.Get("/{id}", h.GetBook)
		r.Put("/{id}", h.UpdateBook)
		r.Delete("/{id}", h.DeleteBook)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, "Route "+r.URL.Path+" not found", "NOT_FOUND", nil)
	})
	return r
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	response.Success(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"service":   h.serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}, "OK")
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body", "VALIDATION_ERROR", nil)
		return
	}
	token, err := h.auth.Login(req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		response.Error(w, http.StatusUnauthorized, "Invalid credentials", "UNAUTHORIZED", nil)
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, http.StatusOK, map[string]string{"token": token, "email": req.Email}, "Logged in successfully")
}

func (h *Handler) CreateBook(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON(w, r)
	if !ok {
		return
	}
	result, err := h.books.CreateBook(r.Context(), body, requestid.FromContext(r.Context()), r.Header.Get("Authorization"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, http.StatusCreated, result.Data, messageOr(result, "Book created successfully"))
}

func (h *Handler) ListBooks(w http.ResponseWriter, r *http.Request) {
	result, err := h.books.ListBooks(r.Context(), r.URL.Query(), requestid.FromContext(r.Context()), r.Header.Get("Authorization"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, http.StatusOK, result.Data, messageOr(result, "Books retrieved successfully"))
}

func (h *Handler) GetBook(w http.ResponseWriter, r *http.Request) {
	result, err := h.books.GetBook(r.Context(), chi.URLParam(r, "id"), requestid.FromContext(r.Context()), r.Header.Get("Authorization"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, http.StatusOK, result.Data, messageOr(result, "Book retrieved successfully"))
}

func (h *Handler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON(w, r)
	if !ok {
		return
	}
	result, err := h.books.UpdateBook(r.Context(), chi.URLParam(r, "id"), body, requestid.FromContext(r.Context()), r.Header.Get("Authorization"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, http.StatusOK, result.Data, messageOr(result, "Book updated successfully"))
}

func (h *Handler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	_, err := h.books.DeleteBook(r.Context(), chi.URLParam(r, "id"), requestid.FromContext(r.Context()), r.Header.Get("Authorization"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, http.StatusOK, nil, "Book deleted successfully")
}

// fail answers with the normalized upstream error, anything else is an internal error.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if e, ok := svcclient.AsError(err); ok {
		var fieldErrors any
		if len(e.FieldErrors) > 0 {
			fieldErrors = e.FieldErrors
		}
		response.Error(w, e.HTTPStatus(), e.Message, e.Code, fieldErrors)
		return
	}
	slog.ErrorContext(r.Context(), "request failed",
		slog.String("request_id", requestid.FromContext(r.Context())),
		slog.String("path", r.URL.Path),
		slog.Any("error", err))
	response.Error(w, http.StatusInternalServerError, "Internal server error", "INTERNAL_ERROR", nil)
}

func readJSON(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || !json.Valid(b) {
		response.Error(w, http.StatusBadRequest, "Request body must be valid JSON", "VALIDATION_ERROR", nil)
		return nil, false
	}
	return b, true
}

func messageOr(result *catalog.Result, fallback string) string {
	if result.Message != "" {
		return result.Message
	}
	return fallback
}
