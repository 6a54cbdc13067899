package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/oriys/localcloud/internal/domain"
)

// CacheValue 缓存键值对
type CacheValue struct {
	Key   string `json:"key,omitempty"`
	Value string `json:"value"`
}

// cacheAvailable 未配置缓存时写入 503 并返回 false
func (h *Handler) cacheAvailable(w http.ResponseWriter, r *http.Request) bool {
	if h.cache == nil {
		writeDomainError(w, r, domain.ErrCacheUnavailable)
		return false
	}
	return true
}

// CacheStatus 返回缓存连接状态与键数量。
// HTTP端点: GET /api/v1/cache/status
func (h *Handler) CacheStatus(w http.ResponseWriter, r *http.Request) {
	if !h.cacheAvailable(w, r) {
		return
	}
	writeData(w, h.cache.Status(r.Context()))
}

// CacheKeys 列出匹配模式的键，默认 "*"。
// HTTP端点: GET /api/v1/cache/keys?pattern=
func (h *Handler) CacheKeys(w http.ResponseWriter, r *http.Request) {
	if !h.cacheAvailable(w, r) {
		return
	}
	keys, err := h.cache.Keys(r.Context(), r.URL.Query().Get("pattern"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, keys)
}

// CacheGet 读取键的值。
// HTTP端点: GET /api/v1/cache/{key}
func (h *Handler) CacheGet(w http.ResponseWriter, r *http.Request) {
	if !h.cacheAvailable(w, r) {
		return
	}
	key := chi.URLParam(r, "key")
	value, err := h.cache.Get(r.Context(), key)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, CacheValue{Key: key, Value: value})
}

// CacheSet 写入键值。
// HTTP端点: PUT /api/v1/cache/{key}
//
// 请求体格式:
//
//	{"value": "hello"}
func (h *Handler) CacheSet(w http.ResponseWriter, r *http.Request) {
	if !h.cacheAvailable(w, r) {
		return
	}
	var req CacheValue
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	key := chi.URLParam(r, "key")
	if err := h.cache.Set(r.Context(), key, req.Value); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, CacheValue{Key: key, Value: req.Value})
}

// CacheDelete 删除键。
// HTTP端点: DELETE /api/v1/cache/{key}
func (h *Handler) CacheDelete(w http.ResponseWriter, r *http.Request) {
	if !h.cacheAvailable(w, r) {
		return
	}
	if err := h.cache.Delete(r.Context(), chi.URLParam(r, "key")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true})
}

// CacheFlush 清空缓存。
// HTTP端点: POST /api/v1/cache/flush
func (h *Handler) CacheFlush(w http.ResponseWriter, r *http.Request) {
	if !h.cacheAvailable(w, r) {
		return
	}
	if err := h.cache.Flush(r.Context()); err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.logWarn(r, "CacheFlush", "Cache flushed", logrus.Fields{})
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Cache flushed"})
}
