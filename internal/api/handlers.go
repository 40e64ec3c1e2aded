// Package api exposes the lost-and-found engine over HTTP and MCP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/refind-app/refind/internal/engine"
	"github.com/refind-app/refind/internal/storage"
	"github.com/refind-app/refind/internal/vision"
)

const maxRequestBodySize = 10 << 20 // 10MB, images arrive base64-inlined

type AppDeps struct {
	Store  *storage.Store
	Engine *engine.Engine
	Vision vision.Analyzer // optional; if nil, photo analysis is skipped
	Token  string
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/items", handleCreateItem(deps))
		r.Get("/items", handleListItems(deps))
		r.Get("/items/{id}", handleGetItem(deps))
		r.Delete("/items/{id}", handleDeleteItem(deps))
		r.Post("/items/{id}/resolve", handleResolveItem(deps))
		r.Get("/matches", handleListMatches(deps))
		r.Get("/matches/{id}", handleGetMatch(deps))
		r.Post("/matches/{id}/confirm", handleConfirmMatch(deps))
		r.Post("/matches/{id}/reject", handleRejectMatch(deps))
		r.Post("/discover", handleDiscover(deps))
		r.Get("/notifications", handleListNotifications(deps))
		r.Post("/notifications/{id}/read", handleMarkNotificationRead(deps))
		r.Get("/stats", handleStats(deps))
	})

	return r
}

type ItemRequest struct {
	Type         string   `json:"type"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Category     string   `json:"category"`
	Location     string   `json:"location"`
	Color        string   `json:"color"`
	Brand        string   `json:"brand"`
	Size         string   `json:"size"`
	Reward       float64  `json:"reward"`
	Tags         []string `json:"tags"`
	UserID       string   `json:"user_id"`
	ContactName  string   `json:"contact_name"`
	ContactEmail string   `json:"contact_email"`
	ContactPhone string   `json:"contact_phone"`
	DateOccurred string   `json:"date_occurred"`
	ImageBase64  string   `json:"image_base64"`
}

type itemView struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	AIDescription string    `json:"ai_description,omitempty"`
	Category      string    `json:"category"`
	Location      string    `json:"location"`
	Color         string    `json:"color,omitempty"`
	Brand         string    `json:"brand,omitempty"`
	Size          string    `json:"size,omitempty"`
	Reward        float64   `json:"reward,omitempty"`
	Tags          []string  `json:"tags"`
	HasEmbedding  bool      `json:"has_embedding"`
	Status        string    `json:"status"`
	MatchedWith   string    `json:"matched_with,omitempty"`
	UserID        string    `json:"user_id,omitempty"`
	ContactName   string    `json:"contact_name"`
	ContactEmail  string    `json:"contact_email"`
	ContactPhone  string    `json:"contact_phone,omitempty"`
	DateOccurred  time.Time `json:"date_occurred"`
	DateReported  time.Time `json:"date_reported"`
}

type matchView struct {
	ID               string    `json:"id"`
	LostItemID       string    `json:"lost_item_id"`
	FoundItemID      string    `json:"found_item_id"`
	Score            float64   `json:"score"`
	MatchedFields    []string  `json:"matched_fields"`
	Status           string    `json:"status"`
	NotificationSent bool      `json:"notification_sent"`
	AIConfidence     float64   `json:"ai_confidence,omitempty"`
	ImageScore       float64   `json:"image_score,omitempty"`
	DateMatched      time.Time `json:"date_matched"`
}

type notificationView struct {
	ID        string    `json:"id"`
	MatchID   string    `json:"match_id,omitempty"`
	ItemID    string    `json:"item_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Recipient string    `json:"recipient"`
	Type      string    `json:"type"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Delivered bool      `json:"delivered"`
	IsRead    bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

func viewItem(it storage.Item) itemView {
	tags := []string{}
	_ = json.Unmarshal([]byte(it.Tags), &tags)
	return itemView{
		ID:            it.ID,
		Type:          it.Type,
		Title:         it.Title,
		Description:   it.Description,
		AIDescription: it.AIDescription,
		Category:      it.Category,
		Location:      it.Location,
		Color:         it.Color,
		Brand:         it.Brand,
		Size:          it.Size,
		Reward:        it.Reward,
		Tags:          tags,
		HasEmbedding:  len(it.Embedding) > 0,
		Status:        it.Status,
		MatchedWith:   it.MatchedWith,
		UserID:        it.UserID,
		ContactName:   it.ContactName,
		ContactEmail:  it.ContactEmail,
		ContactPhone:  it.ContactPhone,
		DateOccurred:  it.DateOccurred,
		DateReported:  it.DateReported,
	}
}

func viewMatch(m storage.Match) matchView {
	fields := []string{}
	_ = json.Unmarshal([]byte(m.MatchedFields), &fields)
	return matchView{
		ID:               m.ID,
		LostItemID:       m.LostItemID,
		FoundItemID:      m.FoundItemID,
		Score:            m.Score,
		MatchedFields:    fields,
		Status:           m.Status,
		NotificationSent: m.NotificationSent,
		AIConfidence:     m.AIConfidence,
		ImageScore:       m.ImageScore,
		DateMatched:      m.DateMatched,
	}
}

func viewNotification(n storage.Notification) notificationView {
	return notificationView{
		ID:        n.ID,
		MatchID:   n.MatchID,
		ItemID:    n.ItemID,
		UserID:    n.UserID,
		Recipient: n.Recipient,
		Type:      n.Type,
		Subject:   n.Subject,
		Body:      n.Body,
		Delivered: n.Delivered,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}

func handleHealth(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		code := http.StatusOK
		if err := deps.Store.Ping(); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}

func handleCreateItem(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ItemRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Type != storage.TypeLost && req.Type != storage.TypeFound {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "type must be %q or %q", storage.TypeLost, storage.TypeFound)
			return
		}
		for name, val := range map[string]string{
			"title":         req.Title,
			"description":   req.Description,
			"category":      req.Category,
			"location":      req.Location,
			"contact_email": req.ContactEmail,
		} {
			if val == "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%s is required", name)
				return
			}
		}

		occurred := time.Now().UTC()
		if req.DateOccurred != "" {
			t, err := time.Parse(time.RFC3339, req.DateOccurred)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid date_occurred: %v", err)
				return
			}
			occurred = t.UTC()
		}

		item := storage.Item{
			ID:           uuid.New().String(),
			Type:         req.Type,
			Title:        req.Title,
			Description:  req.Description,
			Category:     req.Category,
			Location:     req.Location,
			Color:        req.Color,
			Brand:        req.Brand,
			Size:         req.Size,
			Reward:       req.Reward,
			Status:       storage.StatusActive,
			UserID:       req.UserID,
			ContactName:  req.ContactName,
			ContactEmail: req.ContactEmail,
			ContactPhone: req.ContactPhone,
			DateOccurred: occurred,
			DateReported: time.Now().UTC(),
		}

		tags := req.Tags
		if req.ImageBase64 != "" && deps.Vision != nil {
			analysis, err := deps.Vision.Describe(r.Context(), req.ImageBase64)
			if err != nil {
				slog.Warn("photo analysis failed", "error", err)
			} else {
				item.AIDescription = analysis.Description
				tags = append(tags, analysis.Tags...)
				if item.Color == "" {
					item.Color = analysis.Color
				}
				if item.Brand == "" {
					item.Brand = analysis.Brand
				}
			}
			emb, err := deps.Vision.Embed(r.Context(), req.ImageBase64)
			if err != nil {
				slog.Warn("photo embedding failed", "error", err)
			} else {
				item.Embedding = emb
			}
		}
		if tags == nil {
			tags = []string{}
		}
		tagsJSON, err := json.Marshal(tags)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to marshal tags: %v", err)
			return
		}
		item.Tags = string(tagsJSON)

		result, err := deps.Engine.SubmitItem(r.Context(), item)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save item: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"item":      viewItem(item),
			"discovery": result,
		})
	}
}

func handleListItems(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemType := r.URL.Query().Get("type")
		status := r.URL.Query().Get("status")

		items, err := deps.Store.ListItems(itemType, status)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list items: %v", err)
			return
		}

		views := make([]itemView, 0, len(items))
		for _, it := range items {
			views = append(views, viewItem(it))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(views)
	}
}

func handleGetItem(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := deps.Store.GetItem(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "item not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get item: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(viewItem(item))
	}
}

func handleDeleteItem(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Engine.DeleteItem(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "item not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete item: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

func handleResolveItem(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := deps.Engine.ResolveItem(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "item not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to resolve item: %v", err)
			return
		}
		item, err := deps.Store.GetItem(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get item: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(viewItem(item))
	}
}

func handleListMatches(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		matches, err := deps.Store.ListMatches(r.URL.Query().Get("status"))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list matches: %v", err)
			return
		}
		views := make([]matchView, 0, len(matches))
		for _, m := range matches {
			views = append(views, viewMatch(m))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(views)
	}
}

func handleGetMatch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := deps.Store.GetMatch(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "match not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get match: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(viewMatch(m))
	}
}

func handleConfirmMatch(deps AppDeps) http.HandlerFunc {
	return matchTransition(func(id string) (storage.Match, error) { return deps.Engine.Confirm(id) })
}

func handleRejectMatch(deps AppDeps) http.HandlerFunc {
	return matchTransition(func(id string) (storage.Match, error) { return deps.Engine.Reject(id) })
}

func matchTransition(apply func(id string) (storage.Match, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := apply(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "match not found")
			return
		}
		if errors.Is(err, storage.ErrInvalidTransition) {
			httpError(w, http.StatusConflict, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update match: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(viewMatch(m))
	}
}

func handleDiscover(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := deps.Engine.RunDiscovery(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "discovery failed: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

func handleListNotifications(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 200)
		notifications, err := deps.Store.ListNotifications(r.URL.Query().Get("recipient"), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list notifications: %v", err)
			return
		}
		views := make([]notificationView, 0, len(notifications))
		for _, n := range notifications {
			views = append(views, viewNotification(n))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(views)
	}
}

func handleMarkNotificationRead(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Store.MarkNotificationRead(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "notification not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to mark notification read: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "read"})
	}
}

func handleStats(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Store.GetStats()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get stats: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
