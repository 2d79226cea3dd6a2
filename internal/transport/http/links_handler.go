package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/atalho/atalho-url/internal/config"
	"github.com/atalho/atalho-url/internal/constants"
	"github.com/atalho/atalho-url/internal/infrastructure/logger"
	appvalidation "github.com/atalho/atalho-url/internal/infrastructure/validation"
	"github.com/atalho/atalho-url/internal/processing/shortener"
	"github.com/atalho/atalho-url/pkg/httputils"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type LinksHandler struct {
	cfg *config.Config
	svc *shortener.Service
}

func NewLinksHandler(cfg *config.Config, svc *shortener.Service) *LinksHandler {
	return &LinksHandler{cfg: cfg, svc: svc}
}

type createLinkRequest struct {
	URL         string `json:"url" validate:"required,notblank,http_url"`
	CustomCode  string `json:"customCode,omitempty" validate:"omitempty,shortcode"`
	ExpiryHours *int64 `json:"expiryHours,omitempty" validate:"omitempty,gt=0"`
}

type linkResponse struct {
	Code          string     `json:"code"`
	URL           string     `json:"url"`
	ShortURL      string     `json:"shortUrl"`
	CreatedAt     time.Time  `json:"createdAt"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	ClickCount    int64      `json:"clickCount"`
	LastClickedAt *time.Time `json:"lastClickedAt,omitempty"`
}

func (h *LinksHandler) toResponse(link *shortener.Link) linkResponse {
	return linkResponse{
		Code:          link.Code,
		URL:           link.TargetURL,
		ShortURL:      strings.TrimRight(h.cfg.Shortener.BaseURL, "/") + "/" + link.Code,
		CreatedAt:     link.CreatedAt,
		ExpiresAt:     link.ExpiresAt,
		ClickCount:    link.ClickCount,
		LastClickedAt: link.LastClickedAt,
	}
}

func (h *LinksHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputils.WriteAPIError(w, r, constants.ErrInvalidRequestBody)
		return
	}
	if err := appvalidation.Validate(req); err != nil {
		apiErr := constants.ErrInvalidRequestBody
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			for _, e := range validationErrs {
				if e.Field() == "url" {
					apiErr = constants.ErrInvalidURL
					break
				}
				if e.Field() == "customCode" {
					apiErr = constants.ErrInvalidCode
					break
				}
				if e.Field() == "expiryHours" {
					apiErr = constants.ErrInvalidExpiry
					break
				}
			}
		}
		httputils.WriteAPIError(w, r, apiErr)
		return
	}

	link, err := h.svc.Create(r.Context(), shortener.CreateInput{
		TargetURL:   req.URL,
		CustomCode:  req.CustomCode,
		ExpiryHours: req.ExpiryHours,
	})
	if err != nil {
		switch {
		case errors.Is(err, shortener.ErrInvalidURL):
			httputils.WriteAPIError(w, r, constants.ErrInvalidURL)
		case errors.Is(err, shortener.ErrInvalidCode):
			httputils.WriteAPIError(w, r, constants.ErrInvalidCode)
		case errors.Is(err, shortener.ErrInvalidExpiry):
			httputils.WriteAPIError(w, r, constants.ErrInvalidExpiry)
		case errors.Is(err, shortener.ErrCodeTaken):
			httputils.WriteAPIError(w, r, constants.ErrCodeTaken)
		case errors.Is(err, shortener.ErrAllocationExhausted):
			httputils.WriteAPIError(w, r, constants.ErrAllocationExhausted)
		default:
			logger.Error("failed to create link", zap.Error(err))
			httputils.WriteAPIError(w, r, constants.ErrInternalError)
		}
		return
	}

	httputils.WriteAPISuccess(w, r, constants.SuccessLinkCreated, h.toResponse(link))
}

func (h *LinksHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	link, err := h.svc.Resolve(r.Context(), code)
	if err != nil {
		switch {
		case errors.Is(err, shortener.ErrNotFound):
			http.NotFound(w, r)
		default:
			logger.Error("failed to resolve code", zap.Error(err), zap.String("code", code))
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	http.Redirect(w, r, link.TargetURL, h.cfg.Shortener.RedirectStatus)
}

func (h *LinksHandler) Info(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	link, err := h.svc.Info(r.Context(), code)
	if err != nil {
		switch {
		case errors.Is(err, shortener.ErrNotFound):
			httputils.WriteAPIError(w, r, constants.ErrLinkNotFound)
		default:
			logger.Error("failed to fetch link info", zap.Error(err), zap.String("code", code))
			httputils.WriteAPIError(w, r, constants.ErrInternalError)
		}
		return
	}

	httputils.WriteAPISuccess(w, r, constants.SuccessLinkFound, h.toResponse(link))
}

func (h *LinksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	if err := h.svc.Delete(r.Context(), code); err != nil {
		switch {
		case errors.Is(err, shortener.ErrNotFound):
			httputils.WriteAPIError(w, r, constants.ErrLinkNotFound)
		default:
			logger.Error("failed to delete link", zap.Error(err), zap.String("code", code))
			httputils.WriteAPIError(w, r, constants.ErrInternalError)
		}
		return
	}

	httputils.WriteAPISuccess(w, r, constants.SuccessLinkDeleted, map[string]string{"code": code})
}

type listLinksResponse struct {
	Links   []linkResponse `json:"links"`
	Total   int64          `json:"total"`
	Limit   int64          `json:"limit"`
	Offset  int64          `json:"offset"`
	HasNext bool           `json:"has_next"`
	HasPrev bool           `json:"has_prev"`
}

func (h *LinksHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := queryInt64(r, "limit", 0)
	offset := queryInt64(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	page, err := h.svc.List(r.Context(), limit, offset)
	if err != nil {
		logger.Error("failed to list links", zap.Error(err))
		httputils.WriteAPIError(w, r, constants.ErrInternalError)
		return
	}

	out := listLinksResponse{
		Links:   make([]linkResponse, 0, len(page.Links)),
		Total:   page.Total,
		Limit:   page.Limit,
		Offset:  offset,
		HasNext: offset+int64(len(page.Links)) < page.Total,
		HasPrev: offset > 0,
	}
	for i := range page.Links {
		out.Links = append(out.Links, h.toResponse(&page.Links[i]))
	}

	httputils.WriteAPISuccess(w, r, constants.SuccessLinksListed, out)
}

func (h *LinksHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		logger.Error("failed to fetch stats", zap.Error(err))
		httputils.WriteAPIError(w, r, constants.ErrInternalError)
		return
	}

	httputils.WriteAPISuccess(w, r, constants.SuccessStatsFound, stats)
}

func queryInt64(r *http.Request, key string, fallback int64) int64 {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}
