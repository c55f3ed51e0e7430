package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/solalog/solalog-server/internal/accrual"
	"github.com/solalog/solalog-server/internal/model"
	"github.com/solalog/solalog-server/internal/store"
	"github.com/solalog/solalog-server/internal/weather"
)

const (
	msgLogged          = "位置情報を記録しました"
	msgBadRequest      = "緯度と経度が必要です"
	msgUpstream        = "天気情報の取得に失敗しました"
	msgUserNotFound    = "ユーザーが見つかりません"
	msgServerError     = "サーバーエラーが発生しました"
	msgRankingError    = "ランキングの取得に失敗しました"
	msgUnauthorized    = "認証が必要です"
	msgTooManyRequests = "リクエストが多すぎます"
)

// maxBodyBytes caps the /log-location request body.
const maxBodyBytes = 1 << 12

type handler struct {
	svc Service
}

type logLocationResponse struct {
	Message    string           `json:"message"`
	Weather    weather.Category `json:"weather"`
	ScoreDelta float64          `json:"scoreDelta"`
	Score      float64          `json:"score"`
	City       string           `json:"city,omitempty"`
}

type statusResponse struct {
	Status           string                   `json:"status"`
	Score            float64                  `json:"score"`
	MissedTrainCount int                      `json:"missedTrainCount"`
	Counts           map[weather.Category]int `json:"counts"`
}

type usersLocationsResponse struct {
	Success bool                 `json:"success"`
	Users   []model.UserLocation `json:"users"`
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) logLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	var p model.Point
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&p); err != nil {
		writeMessage(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	res, err := h.svc.LogLocation(r.Context(), id, p)
	if err != nil {
		status, msg := errorStatus(err)
		if status == http.StatusBadRequest {
			writeJSON(w, status, map[string]string{"message": msg, "error": err.Error()})
			return
		}
		writeMessage(w, status, msg)
		return
	}

	writeJSON(w, http.StatusCreated, logLocationResponse{
		Message:    msgLogged,
		Weather:    res.Weather,
		ScoreDelta: res.ScoreDelta,
		Score:      res.Score,
		City:       res.PlaceName,
	})
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	st, err := h.svc.Status(r.Context(), id.UserID)
	if err != nil {
		status, msg := errorStatus(err)
		logFailure(r, "status failed", err)
		writeMessage(w, status, msg)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Status:           st.Title,
		Score:            st.Score,
		MissedTrainCount: st.MissedTrainCount,
		Counts:           st.Counts,
	})
}

func (h *handler) usersLocations(w http.ResponseWriter, r *http.Request) {
	locs, err := h.svc.LatestLocations(r.Context())
	if err != nil {
		logFailure(r, "users-locations failed", err)
		writeMessage(w, http.StatusInternalServerError, msgServerError)
		return
	}

	if locs == nil {
		locs = []model.UserLocation{}
	}
	writeJSON(w, http.StatusOK, usersLocationsResponse{Success: true, Users: locs})
}

func (h *handler) ranking(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Ranking(r.Context())
	if err != nil {
		logFailure(r, "ranking failed", err)
		writeMessage(w, http.StatusInternalServerError, msgRankingError)
		return
	}
	if entries == nil {
		entries = []model.RankEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// errorStatus maps a service error to an HTTP status and client message.
func errorStatus(err error) (int, string) {
	if errors.Is(err, store.ErrUserNotFound) {
		return http.StatusNotFound, msgUserNotFound
	}
	switch accrual.KindOf(err) {
	case accrual.KindInvalidInput:
		return http.StatusBadRequest, msgBadRequest
	case accrual.KindUpstream:
		return http.StatusBadGateway, msgUpstream
	default:
		return http.StatusInternalServerError, msgServerError
	}
}

func logFailure(r *http.Request, msg string, err error) {
	zap.L().Error(msg, zap.String("path", r.URL.Path), zap.Error(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
