// Package handler implements the sync HTTP endpoints: the full-sync init
// endpoint, its status endpoint, and the content platform webhook.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/audit"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/searchindex"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer/fullsync"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer/reconcile"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer/resolver"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer/status"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer/validator"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/webhook"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/tracing"
)

const defaultMaxBodyBytes = 1 << 20

// FullSyncer runs full syncs and reports their status.
type FullSyncer interface {
	Run(ctx context.Context, params fullsync.Params) ([]string, error)
	Status(ctx context.Context, key status.Key) (status.Status, error)
}

// DeliveryRunner resolves and applies one webhook delivery.
type DeliveryRunner interface {
	Run(ctx context.Context, target resolver.Target, notifications []webhook.Notification) (reconcile.Result, error)
}

// Config carries the handler's settings.
type Config struct {
	Secrets      config.Secrets
	MaxBodyBytes int64
	LogSpans     bool
}

// Handler serves the sync endpoints.
type Handler struct {
	cfg       Config
	fullSync  FullSyncer
	deliverer DeliveryRunner
	opener    searchindex.Opener
	publisher audit.Publisher
	limiter   *ratelimit.Limiter
	logger    *slog.Logger
}

// New creates a Handler. limiter may be nil to disable rate limiting.
func New(
	cfg Config,
	fullSync FullSyncer,
	deliverer DeliveryRunner,
	opener searchindex.Opener,
	publisher audit.Publisher,
	limiter *ratelimit.Limiter,
) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Handler{
		cfg:       cfg,
		fullSync:  fullSync,
		deliverer: deliverer,
		opener:    opener,
		publisher: publisher,
		limiter:   limiter,
		logger:    slog.Default().With("component", "sync-handler"),
	}
}

// Init runs a full sync of one language into one index.
func (h *Handler) Init(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		h.methodNotAllowed(w, http.MethodPost, http.MethodOptions)
		return
	}

	var req syncer.InitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateInitRequest(&req); err != nil {
		h.writeValidationError(w, err)
		return
	}
	if check := h.cfg.Secrets.Check(config.EnvAlgoliaAPIKey); !check.OK() {
		h.writeMissingConfig(w, check)
		return
	}
	if h.limiter != nil && !h.limiter.Allow(req.ProjectID) {
		h.writeError(w, apperrors.HTTPStatusCode(apperrors.ErrRateLimited), "too many full syncs for this project")
		return
	}

	ctx, span := h.startSpan(r.Context(), "init")
	defer h.endSpan(span)
	span.SetAttr("project_id", req.ProjectID)
	span.SetAttr("language", req.Language)
	log := logger.FromContext(ctx)

	ids, err := h.fullSync.Run(ctx, fullsync.Params{
		ProjectID:    req.ProjectID,
		Language:     req.Language,
		SlugCodename: req.SlugCodename,
		AppID:        req.AlgoliaAppID,
		APIKey:       h.cfg.Secrets.AlgoliaAPIKey,
		IndexName:    req.AlgoliaIndexName,
	})
	if err != nil {
		span.SetError(err)
		code := apperrors.HTTPStatusCode(err)
		log.Error("full sync failed",
			"project_id", req.ProjectID,
			"language", req.Language,
			"error", err,
			"status_code", code,
		)
		h.writeError(w, code, "full sync failed")
		return
	}
	h.writeJSON(w, http.StatusOK, ids)
}

// InitStatus reports the state of the last full sync of a target.
func (h *Handler) InitStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if err := validator.RequireParams(q, "projectId", "language", "algoliaAppId", "algoliaIndexName"); err != nil {
		h.writeValidationError(w, err)
		return
	}
	key := status.Key{
		ProjectID: q.Get("projectId"),
		Language:  q.Get("language"),
		AppID:     q.Get("algoliaAppId"),
		IndexName: q.Get("algoliaIndexName"),
	}
	st, err := h.fullSync.Status(r.Context(), key)
	if err != nil {
		logger.FromContext(r.Context()).Error("reading sync status failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

// Webhook reconciles the index after a delivery of change notifications.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.methodNotAllowed(w, http.MethodPost)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "body too large")
			return
		}
		h.writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		h.writeError(w, http.StatusBadRequest, "Missing Data")
		return
	}
	if check := h.cfg.Secrets.Check(config.EnvAlgoliaAPIKey, config.EnvWebhookSecret); !check.OK() {
		h.writeMissingConfig(w, check)
		return
	}
	log := logger.FromContext(r.Context())
	if err := webhook.Verify(body, r.Header.Get(webhook.SignatureHeader), h.cfg.Secrets.WebhookSecret); err != nil {
		log.Warn("webhook rejected", "error", err)
		h.writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}
	q := r.URL.Query()
	if err := validator.RequireParams(q, validator.ParamSlug, validator.ParamAppID, validator.ParamIndex); err != nil {
		h.writeValidationError(w, err)
		return
	}
	delivery, err := webhook.Parse(body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	target := searchindex.Target{
		AppID:     q.Get(validator.ParamAppID),
		APIKey:    h.cfg.Secrets.AlgoliaAPIKey,
		IndexName: q.Get(validator.ParamIndex),
	}
	idx, err := h.opener.Open(target)
	if err != nil {
		log.Error("opening index failed", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "index unavailable")
		return
	}

	ctx, span := h.startSpan(r.Context(), "webhook")
	defer h.endSpan(span)
	span.SetAttr("notifications", len(delivery.Notifications))

	result, err := h.deliverer.Run(ctx, resolver.Target{
		SlugCodename: q.Get(validator.ParamSlug),
		Index:        idx,
	}, delivery.Notifications)
	if err != nil {
		span.SetError(err)
		log.Error("webhook processing failed",
			"notifications", len(delivery.Notifications),
			"error", err,
		)
		h.writeError(w, http.StatusInternalServerError, "webhook processing failed")
		return
	}

	log.Info("webhook processed",
		"notifications", len(delivery.Notifications),
		"reindexed", len(result.ReIndexedObjectIDs),
		"deleted", len(result.DeletedObjectIDs),
	)
	if len(result.Touched()) > 0 {
		h.publishWebhookEvent(ctx, target, delivery, result)
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) publishWebhookEvent(ctx context.Context, target searchindex.Target, d webhook.Delivery, res reconcile.Result) {
	event := audit.NewEvent(ctx, audit.KindWebhook)
	for _, n := range d.Notifications {
		if event.ProjectID == "" {
			event.ProjectID = n.Message.Environment()
		}
		if event.Language == "" {
			event.Language = n.Data.System.Language
		}
	}
	event.AppID = target.AppID
	event.IndexName = target.IndexName
	event.ReindexedObjectIDs = res.ReIndexedObjectIDs
	event.DeletedObjectIDs = res.DeletedObjectIDs
	if err := h.publisher.Publish(ctx, event); err != nil {
		logger.FromContext(ctx).Warn("publishing sync event failed", "error", err)
	}
}

func (h *Handler) startSpan(ctx context.Context, name string) (context.Context, *tracing.Span) {
	return tracing.StartSpan(ctx, name, logger.RequestID(ctx))
}

func (h *Handler) endSpan(span *tracing.Span) {
	span.End()
	if h.cfg.LogSpans {
		span.Log(h.logger)
	}
}

func (h *Handler) methodNotAllowed(w http.ResponseWriter, allow ...string) {
	for _, m := range allow {
		w.Header().Add("Allow", m)
	}
	h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (h *Handler) writeValidationError(w http.ResponseWriter, err error) {
	var validationErr *validator.ValidationError
	if errors.As(err, &validationErr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": validationErr.Fields,
		})
		return
	}
	h.writeError(w, http.StatusBadRequest, err.Error())
}

func (h *Handler) writeMissingConfig(w http.ResponseWriter, check config.SecretCheck) {
	h.logger.Error("required secrets are not configured", "missing", check.Missing)
	h.writeJSON(w, http.StatusInternalServerError, map[string]any{
		"error":   "missing configuration",
		"missing": check.Missing,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
