package server

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/ccxcon/ccxcon/internal/httperr"
	"github.com/ccxcon/ccxcon/server/database"
)

var ErrWebhookNotFound = errors.New("webhook not found")

type webhookRequest struct {
	URL     *string `json:"url"`
	Enabled *bool   `json:"enabled"`
}

type webhookResponse struct {
	ID        uuid.UUID `json:"id"`
	URL       string    `json:"url"`
	Secret    string    `json:"secret"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

func newWebhookResponse(webhook database.Webhook) webhookResponse {
	return webhookResponse{
		ID:        webhook.ID,
		URL:       webhook.URL,
		Secret:    webhook.Secret,
		Enabled:   webhook.Enabled,
		CreatedAt: webhook.CreatedAt,
	}
}

func validateWebhookURL(value string) error {
	u, err := url.Parse(value)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fieldError("url", ErrInvalidFieldType)
	}
	return nil
}

func webhookError(err error) error {
	if database.IsNotFound(err) {
		return httperr.NotFound(ErrWebhookNotFound)
	}
	return err
}

func (s *Server) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	webhooks, err := s.db.ListWebhooks(r.Context())
	if err != nil {
		s.error(w, r, err)
		return
	}

	response := make([]webhookResponse, 0, len(webhooks))
	for _, webhook := range webhooks {
		response = append(response, newWebhookResponse(webhook))
	}
	s.ok(w, r, response)
}

// PostWebhook registers a subscriber. The signing secret is generated here and returned once created.
func (s *Server) PostWebhook(w http.ResponseWriter, r *http.Request) {
	var rq webhookRequest
	if err := s.decode(r, &rq); err != nil {
		s.error(w, r, err)
		return
	}
	if err := requireString("url", rq.URL); err != nil {
		s.error(w, r, err)
		return
	}
	if err := validateWebhookURL(*rq.URL); err != nil {
		s.error(w, r, err)
		return
	}
	enabled := true
	if rq.Enabled != nil {
		enabled = *rq.Enabled
	}

	webhook, err := s.db.CreateWebhook(r.Context(), *rq.URL, enabled)
	if err != nil {
		s.error(w, r, err)
		return
	}
	s.json(w, r, newWebhookResponse(*webhook), http.StatusCreated)
}

func (s *Server) GetWebhook(w http.ResponseWriter, r *http.Request) {
	webhookID, err := uuidParam(r, "webhookID", ErrWebhookNotFound)
	if err != nil {
		s.error(w, r, err)
		return
	}

	webhook, err := s.db.GetWebhook(r.Context(), webhookID)
	if err != nil {
		s.error(w, r, webhookError(err))
		return
	}
	s.ok(w, r, newWebhookResponse(*webhook))
}

func (s *Server) PatchWebhook(w http.ResponseWriter, r *http.Request) {
	webhookID, err := uuidParam(r, "webhookID", ErrWebhookNotFound)
	if err != nil {
		s.error(w, r, err)
		return
	}

	var rq webhookRequest
	if err = s.decode(r, &rq); err != nil {
		s.error(w, r, err)
		return
	}
	if rq.URL != nil {
		if err = validateWebhookURL(*rq.URL); err != nil {
			s.error(w, r, err)
			return
		}
	}

	webhook, err := s.db.UpdateWebhook(r.Context(), webhookID, database.WebhookUpdate{
		URL:     rq.URL,
		Enabled: rq.Enabled,
	})
	if err != nil {
		s.error(w, r, webhookError(err))
		return
	}
	s.ok(w, r, newWebhookResponse(*webhook))
}

func (s *Server) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	webhookID, err := uuidParam(r, "webhookID", ErrWebhookNotFound)
	if err != nil {
		s.error(w, r, err)
		return
	}

	if err = s.db.DeleteWebhook(r.Context(), webhookID); err != nil {
		s.error(w, r, webhookError(err))
		return
	}
	s.ok(w, r, nil)
}
