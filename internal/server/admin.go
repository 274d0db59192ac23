package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"fasttrack/pkg/types"

	"github.com/sirupsen/logrus"
)

func (s *Service) handleGetDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	data := &types.DashboardPageData{
		BasePageData: types.BasePageData{
			Title:  "Dashboard",
			Notice: strings.TrimSpace(r.URL.Query().Get("notice")),
		},
	}

	summary, err := s.apiFromContext(ctx).Dashboard(ctx)
	if err != nil {
		if s.handleSessionExpired(w, r, err) {
			return
		}
		s.logger.WithError(err).Error("failed to fetch dashboard summary")
		data.Error = msgRegistrarUnreachable
	}
	data.Summary = summary

	if err := s.renderTemplate(w, r, "page.admin.dashboard", data); err != nil {
		s.logger.WithError(err).Error("failed to render dashboard page")
		s.internalServerError(w)
		return
	}
}

func (s *Service) handleGetRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var filter types.RequestFilter
	if err := decoder.Decode(&filter, r.URL.Query()); err != nil {
		s.logger.WithError(err).Warn("ignoring malformed request filter")
		filter = types.RequestFilter{Search: r.URL.Query().Get("search")}
	}
	filter.Search = strings.TrimSpace(filter.Search)

	data := &types.RequestsPageData{
		BasePageData: types.BasePageData{
			Title:  "Requests",
			Notice: strings.TrimSpace(r.URL.Query().Get("notice")),
			Error:  strings.TrimSpace(r.URL.Query().Get("error")),
		},
		Filter:   filter,
		Statuses: types.RequestStatuses,
	}

	requests, err := s.apiFromContext(ctx).ListRequests(ctx, filter)
	if err != nil {
		if s.handleSessionExpired(w, r, err) {
			return
		}
		s.logger.WithError(err).Error("failed to list requests")
		data.Error = msgRegistrarUnreachable
	}
	data.Requests = requests

	if err := s.renderTemplate(w, r, "page.admin.requests", data); err != nil {
		s.logger.WithError(err).Error("failed to render requests page")
		s.internalServerError(w)
		return
	}
}

func (s *Service) handlePostRequestStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	requestID, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || requestID <= 0 {
		http.NotFound(w, r)
		return
	}

	if err := r.ParseForm(); err != nil {
		s.logger.WithError(err).Error("failed to parse form")
		s.redirectWithError(w, r, "/admin/requests", "The form could not be read. Please try again.")
		return
	}

	statusID, _ := strconv.Atoi(r.PostForm.Get("status_id"))
	payload := types.UpdateStatusPayload{
		StatusID: types.RequestStatus(statusID),
		Remarks:  strings.TrimSpace(r.PostForm.Get("remarks")),
	}
	if !payload.StatusID.Valid() {
		s.redirectWithError(w, r, "/admin/requests", "Choose a status.")
		return
	}

	err = s.apiFromContext(ctx).UpdateRequestStatus(ctx, requestID, payload)
	if err != nil {
		if s.handleSessionExpired(w, r, err) {
			return
		}

		entry := s.logger.WithError(err).WithFields(logrus.Fields{
			"request_id": requestID,
			"status_id":  statusID,
		})

		var apiErr *types.APIError
		if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
			entry.Warn("registrar rejected status update")
			msg := apiErr.Message
			if msg == "" {
				msg = "The registrar rejected the status change."
			}
			s.redirectWithError(w, r, "/admin/requests", msg)
			return
		}

		entry.Error("failed to update request status")
		s.redirectWithError(w, r, "/admin/requests", msgRegistrarUnreachable)
		return
	}

	s.redirectWithNotice(w, r, "/admin/requests", fmt.Sprintf("Request #%d marked %s.", requestID, payload.StatusID))
}
