package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/aiyoutube/topic-management-service/internal/domain"
	"github.com/aiyoutube/topic-management-service/internal/observability"
)

// Request validation constants.
const (
	minQueryLength     = 3
	maxQueryLength     = 10000
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
)

var validate = validator.New()

// createTopicRequest is the JSON request body for submitting a research topic.
type createTopicRequest struct {
	Query string `json:"query" validate:"required,min=3,max=10000"`
}

// createTopic handles POST /api/v1/topics.
//
// Submission is asynchronous: the response carries the accepted (or
// deduplicated) topic in its current state with 202 Accepted, and the
// pipeline fills in the rest over time.
func (s *Server) createTopic(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req createTopicRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	req.Query = strings.TrimSpace(req.Query)
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			switch verrs[0].Tag() {
			case "required":
				writeError(w, http.StatusBadRequest, "query is required")
			case "min":
				writeError(w, http.StatusBadRequest, fmt.Sprintf("query must be at least %d characters", minQueryLength))
			case "max":
				writeError(w, http.StatusBadRequest, fmt.Sprintf("query must be at most %d characters", maxQueryLength))
			default:
				writeError(w, http.StatusBadRequest, "invalid query")
			}
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	topic, err := s.topics.CreateTopicRequest(r.Context(), req.Query)
	if err != nil {
		log := observability.WithRequestContext(s.logger, observability.RequestIDFromContext(r.Context()))
		if errors.Is(err, domain.ErrUpstreamUnavailable) {
			log.Error().Err(err).Msg("normalizer unavailable")
			writeError(w, http.StatusServiceUnavailable, "query normalization is temporarily unavailable")
			return
		}
		log.Error().Err(err).Msg("failed to create topic")
		writeError(w, http.StatusInternalServerError, "failed to create topic")
		return
	}

	writeJSON(w, http.StatusAccepted, toTopicResponse(topic))
}

// getTopic handles GET /api/v1/topics/{topicID}.
func (s *Server) getTopic(w http.ResponseWriter, r *http.Request) {
	topicID, err := uuid.Parse(chi.URLParam(r, "topicID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid topic id")
		return
	}

	ctx := observability.WithTopicID(r.Context(), topicID.String())
	topic, err := s.topics.GetTopicDetails(ctx, topicID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "topic not found")
			return
		}
		s.logger.Error().Err(err).
			Str("topic_id", observability.TopicIDFromContext(ctx)).
			Msg("failed to get topic")
		writeError(w, http.StatusInternalServerError, "failed to get topic")
		return
	}

	writeJSON(w, http.StatusOK, toTopicResponse(topic))
}
