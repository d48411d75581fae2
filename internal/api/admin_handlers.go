package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/jane-menu-proxy/internal/admin"
	"github.com/JakeFAU/jane-menu-proxy/internal/menu"
)

const (
	maxListNumber = 500
	adminTimeout  = 5 * time.Second
)

// listStoreConfigs handles GET /admin/store-configs?search=&offset=&number=&orderby=&order=.
// It returns {"store_configs": [...], "total": n}, 400 for invalid paging, or
// 500 when the repository fails.
func (s *Server) listStoreConfigs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Configs == nil {
		writeError(w, http.StatusServiceUnavailable, "config repository unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), adminTimeout)
	defer cancel()

	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	configs, total, err := s.deps.Configs.ListFiltered(ctx, filter)
	if err != nil {
		s.logger.Error("list store configs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list store configs")
		return
	}
	if configs == nil {
		configs = []menu.StoreConfig{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"store_configs": configs,
		"total":         total,
	})
}

// getStoreConfig handles GET /admin/store-configs/{id}. It returns
// {"store_config": {...}}, 400 for malformed ids, or 404 when missing.
func (s *Server) getStoreConfig(w http.ResponseWriter, r *http.Request) {
	if s.deps.Configs == nil {
		writeError(w, http.StatusServiceUnavailable, "config repository unavailable")
		return
	}
	id, err := parseConfigID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), adminTimeout)
	defer cancel()

	cfg, err := s.deps.Configs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, menu.ErrNotFound) {
			writeError(w, http.StatusNotFound, "store config not found")
			return
		}
		s.logger.Error("get store config failed", zap.Int64("config_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load store config")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"store_config": cfg})
}

// saveStoreConfig handles POST /admin/store-configs and PUT
// /admin/store-configs/{id}. Validation failures return 400 with the first
// error message. A saved config that fails verification returns 200 with
// "verified": false and the guidance message.
func (s *Server) saveStoreConfig(w http.ResponseWriter, r *http.Request) {
	if s.deps.Admin == nil {
		writeError(w, http.StatusServiceUnavailable, "admin service unavailable")
		return
	}
	var form admin.Form
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if chi.URLParam(r, "id") != "" {
		id, err := parseConfigID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		form.ID = id
	}

	res, err := s.deps.Admin.Save(r.Context(), form)
	var verr *admin.ValidationError
	switch {
	case err == nil:
		status := http.StatusOK
		if form.ID == 0 {
			status = http.StatusCreated
		}
		writeJSON(w, status, saveResponse{Result: res, Verified: true})
	case errors.Is(err, admin.ErrVerification):
		s.logger.Warn("store config saved but not verified", zap.Int64("config_id", res.ID), zap.Error(err))
		writeJSON(w, http.StatusOK, saveResponse{Result: res, Verified: false, Error: admin.VerificationMessage})
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, menu.ErrNotFound):
		writeError(w, http.StatusNotFound, "store config not found")
	default:
		s.logger.Error("save store config failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, admin.MsgSomethingWent)
	}
}

type saveResponse struct {
	admin.Result
	Verified bool   `json:"verified"`
	Error    string `json:"error,omitempty"`
}

type deleteRequest struct {
	IDs []int64 `json:"ids"`
}

// deleteStoreConfigs handles DELETE /admin/store-configs with a JSON body
// {"ids": [...]} or an ids=1,2 query.
func (s *Server) deleteStoreConfigs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Admin == nil {
		writeError(w, http.StatusServiceUnavailable, "admin service unavailable")
		return
	}
	ids, err := parseIDs(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Admin.Delete(r.Context(), ids); err != nil {
		s.logger.Error("delete store configs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete store configs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": ids})
}

type sitemapSetting struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) getSitemapSetting(w http.ResponseWriter, r *http.Request) {
	agg := s.primarySitemap()
	if agg == nil {
		writeError(w, http.StatusServiceUnavailable, "sitemap unavailable")
		return
	}
	enabled, err := agg.Enabled(r.Context())
	if err != nil {
		s.logger.Error("read sitemap flag failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read sitemap setting")
		return
	}
	exists, err := agg.Exists(r.Context())
	if err != nil {
		s.logger.Error("stat sitemap failed", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled": enabled,
		"exists":  exists,
		"url":     agg.URL(s.useTLS(r)),
	})
}

func (s *Server) putSitemapSetting(w http.ResponseWriter, r *http.Request) {
	if s.deps.Admin == nil {
		writeError(w, http.StatusServiceUnavailable, "admin service unavailable")
		return
	}
	var req sitemapSetting
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}
	if err := s.deps.Admin.SetSitemapEnabled(r.Context(), *req.Enabled); err != nil {
		s.logger.Error("update sitemap flag failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update sitemap setting")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": *req.Enabled, "message": "Settings Saved."})
}

func parseConfigID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	if raw == "" {
		return 0, errors.New("id is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func parseIDs(r *http.Request) ([]int64, error) {
	if raw := r.URL.Query().Get("ids"); raw != "" {
		parts := strings.Split(raw, ",")
		ids := make([]int64, 0, len(parts))
		for _, part := range parts {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil || id <= 0 {
				return nil, errors.New("invalid ids")
			}
			ids = append(ids, id)
		}
		return ids, nil
	}
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.New("ids are required")
	}
	for _, id := range req.IDs {
		if id <= 0 {
			return nil, errors.New("invalid ids")
		}
	}
	if len(req.IDs) == 0 {
		return nil, errors.New("ids are required")
	}
	return req.IDs, nil
}

func parseFilter(r *http.Request) (menu.ConfigFilter, error) {
	q := r.URL.Query()
	filter := menu.ConfigFilter{
		Search:  strings.TrimSpace(q.Get("search")),
		OrderBy: q.Get("orderby"),
		Order:   q.Get("order"),
	}
	if raw := q.Get("number"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val <= 0 {
			return menu.ConfigFilter{}, errors.New("invalid number")
		}
		filter.Number = min(val, maxListNumber)
	}
	if raw := q.Get("offset"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val < 0 {
			return menu.ConfigFilter{}, errors.New("invalid offset")
		}
		filter.Offset = val
	}
	return filter.WithDefaults(), nil
}
