package server

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"logserver/daterange"
	"logserver/logger"
	"logserver/storage"
)

type errorBody struct {
	Error string `json:"error"`
}

type latestBody struct {
	Time string        `json:"time"`
	Data storage.Value `json:"data"`
}

// rangeOf resolves the request's day/start/end parameters.
func (s *Server) rangeOf(r *http.Request) daterange.Range {
	return daterange.Resolve(daterange.ParamsFromQuery(r.URL.Query()), s.now())
}

// handleStatus reports how many readings landed in the range, across all
// streams.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	rng := s.rangeOf(r)
	n, err := s.store.CountInRange(r.Context(), rng)
	if err != nil {
		s.queryFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"COUNT(*)": n})
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	stream := r.URL.Query().Get("stream")
	rows, err := s.store.FetchInRange(r.Context(), stream, s.rangeOf(r))
	if err != nil {
		s.queryFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleMax(w http.ResponseWriter, r *http.Request) {
	stream := r.URL.Query().Get("stream")
	ext, err := s.store.MaxInRange(r.Context(), stream, s.rangeOf(r))
	if err != nil {
		s.queryFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"time": ext.Time, "MAX(data)": ext.Value})
}

func (s *Server) handleMin(w http.ResponseWriter, r *http.Request) {
	stream := r.URL.Query().Get("stream")
	ext, err := s.store.MinInRange(r.Context(), stream, s.rangeOf(r))
	if err != nil {
		s.queryFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"time": ext.Time, "MIN(data)": ext.Value})
}

func (s *Server) handleAvg(w http.ResponseWriter, r *http.Request) {
	stream := r.URL.Query().Get("stream")
	avg, err := s.store.AvgInRange(r.Context(), stream, s.rangeOf(r))
	if err != nil {
		s.queryFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*float64{"AVG(data)": avg})
}

// handleLatest ignores any range; an empty stream yields JSON null.
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	stream := r.URL.Query().Get("stream")
	rd, err := s.store.Latest(r.Context(), stream)
	if err != nil {
		s.queryFailed(w, r, err)
		return
	}
	if rd == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, latestBody{Time: rd.Time, Data: rd.Data})
}

// handleRange echoes the resolved range, which is handy when debugging
// dashboards that build their own query strings.
func (s *Server) handleRange(w http.ResponseWriter, r *http.Request) {
	rng := s.rangeOf(r)
	writeJSON(w, http.StatusOK, [2]string{rng.Start, rng.End})
}

// handleAppend logs one reading to the stream named by the path. The value
// comes from the data query parameter, not the body.
func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	stream := mux.Vars(r)["stream"]
	data := storage.ParseValue(queryParam(r.URL.Query(), "data"))

	if err := s.store.Append(r.Context(), stream, data); err != nil {
		logger.FromContext(r.Context(), s.log).Error("append failed",
			zap.String("stream", stream), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	s.metrics.appended.WithLabelValues(data.Kind().String()).Inc()
	w.WriteHeader(http.StatusOK)
}

func handleNotFound(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNotFound)
}

// queryFailed maps any read-path storage error onto a 400. Callers cannot
// tell bad parameters from an unavailable database.
func (s *Server) queryFailed(w http.ResponseWriter, r *http.Request, err error) {
	logger.FromContext(r.Context(), s.log).Warn("query failed",
		zap.String("path", r.URL.Path), zap.Error(err))
	writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func queryParam(q url.Values, key string) *string {
	if !q.Has(key) {
		return nil
	}
	v := q.Get(key)
	return &v
}
