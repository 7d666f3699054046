package main

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/classhub/messaging/pkg/apperr"
	"github.com/classhub/messaging/pkg/model"
	"github.com/classhub/messaging/pkg/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// ChannelsHandler serves the backfill surface under /channels/:
//
//	GET /channels/{id}/messages?limit=&before=   history page
//	GET /channels/{id}/pins                      pinned messages
//	GET /channels/{id}/users                     live presence
type ChannelsHandler struct {
	store store.MessageStore
	redis *redis.Client
}

func NewChannelsHandler(st store.MessageStore, rdb *redis.Client) *ChannelsHandler {
	return &ChannelsHandler{store: st, redis: rdb}
}

func (h *ChannelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, apperr.InvalidArg("method not allowed"))
		return
	}

	// Path shape: /channels/{id}/{resource}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[0] != "channels" || parts[1] == "" {
		writeError(w, http.StatusBadRequest, apperr.InvalidArg("invalid path"))
		return
	}
	channelID := parts[1]

	switch parts[2] {
	case "messages":
		h.serveHistory(w, r, channelID)
	case "pins":
		h.servePins(w, r, channelID)
	case "users":
		h.servePresence(w, r, channelID)
	default:
		writeError(w, http.StatusNotFound, apperr.NotFound("unknown resource"))
	}
}

// serveHistory mirrors the store's cursor pagination: pass the oldest
// returned ID back as ?before= to fetch the next older page.
func (h *ChannelsHandler) serveHistory(w http.ResponseWriter, r *http.Request, channelID string) {
	limit := defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, apperr.InvalidArg("limit must be a positive integer"))
			return
		}
		limit = min(n, maxPageSize)
	}

	var before int64
	if raw := r.URL.Query().Get("before"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, apperr.InvalidArg("before must be a message id"))
			return
		}
		before = n
	}

	messages, err := h.store.ListByChannel(r.Context(), channelID, limit, before)
	if err != nil {
		log.Printf("api: history for %s: %v", channelID, err)
		writeError(w, http.StatusInternalServerError, apperr.Internal("failed to retrieve history", nil))
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *ChannelsHandler) servePins(w http.ResponseWriter, r *http.Request, channelID string) {
	pinned, err := h.store.ListPinned(r.Context(), channelID)
	if err != nil {
		log.Printf("api: pins for %s: %v", channelID, err)
		writeError(w, http.StatusInternalServerError, apperr.Internal("failed to retrieve pins", nil))
		return
	}
	if pinned == nil {
		pinned = []model.Message{}
	}
	writeJSON(w, http.StatusOK, pinned)
}

func (h *ChannelsHandler) servePresence(w http.ResponseWriter, r *http.Request, channelID string) {
	if h.redis == nil {
		writeJSON(w, http.StatusOK, []string{})
		return
	}
	users, err := h.redis.SMembers(context.Background(), "channel:"+channelID+":users").Result()
	if err != nil {
		log.Printf("api: presence for %s: %v", channelID, err)
		writeError(w, http.StatusInternalServerError, apperr.Internal("failed to fetch presence", nil))
		return
	}
	writeJSON(w, http.StatusOK, users)
}
