package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/jane-menu-proxy/internal/admin"
)

type ajaxEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type ajaxMessage struct {
	Message string `json:"message"`
}

func ajaxSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, ajaxEnvelope{Success: true, Data: data})
}

func ajaxFailure(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, ajaxEnvelope{Success: false, Data: ajaxMessage{Message: msg}})
}

// ajaxError reports a validation message as a failure envelope and anything
// else as a 500.
func (s *Server) ajaxError(w http.ResponseWriter, op string, err error) {
	var verr *admin.ValidationError
	if errors.As(err, &verr) {
		ajaxFailure(w, verr.Message)
		return
	}
	s.logger.Error("ajax request failed", zap.String("op", op), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func formPageID(r *http.Request) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(r.FormValue("page_id")), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func (s *Server) ajaxReady(w http.ResponseWriter) bool {
	if s.deps.Admin == nil {
		writeError(w, http.StatusServiceUnavailable, "admin service unavailable")
		return false
	}
	return true
}

func (s *Server) ajaxPageRelativePath(w http.ResponseWriter, r *http.Request) {
	if !s.ajaxReady(w) {
		return
	}
	path, err := s.deps.Admin.PageRelativePath(r.Context(), formPageID(r))
	if err != nil {
		s.ajaxError(w, "page-relative-path", err)
		return
	}
	ajaxSuccess(w, path)
}

func (s *Server) ajaxPagePath(w http.ResponseWriter, r *http.Request) {
	if !s.ajaxReady(w) {
		return
	}
	path, err := s.deps.Admin.PagePath(r.Context(), formPageID(r))
	if err != nil {
		s.ajaxError(w, "page-path", err)
		return
	}
	ajaxSuccess(w, path)
}

func (s *Server) ajaxPostTypeItems(w http.ResponseWriter, r *http.Request) {
	if !s.ajaxReady(w) {
		return
	}
	postType := r.FormValue("post_type")
	pageID := formPageID(r)
	markup, err := s.deps.Admin.PostTypeItemsHTML(r.Context(), postType, pageID)
	if err != nil {
		s.logger.Error("post type picker failed", zap.String("post_type", postType), zap.Error(err))
		ajaxFailure(w, fmt.Sprintf("Error: we couldn't create the HTML for this field. ( post_type = %s, page_id = %d )", postType, pageID))
		return
	}
	ajaxSuccess(w, markup)
}

func (s *Server) ajaxPostTypes(w http.ResponseWriter, r *http.Request) {
	if !s.ajaxReady(w) {
		return
	}
	markup, err := s.deps.Admin.PostTypesHTML(r.Context(), formPageID(r))
	if err != nil {
		s.ajaxError(w, "post-types", err)
		return
	}
	ajaxSuccess(w, markup)
}

func (s *Server) ajaxVerifyStorePath(w http.ResponseWriter, r *http.Request) {
	if !s.ajaxReady(w) {
		return
	}
	valid := s.deps.Admin.VerifyStorePath(r.Context(), r.FormValue("proxy_url"), r.FormValue("store_path"))
	ajaxSuccess(w, map[string]bool{"valid": valid})
}
