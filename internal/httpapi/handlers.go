package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/HMasataka/streamhub/pkg/domain"
	"github.com/HMasataka/streamhub/pkg/errors"
)

type establishRequest struct {
	DataType domain.DataType `json:"data_type"`
	ClientID domain.ClientID `json:"client_id"`
}

type publishRequest struct {
	Payload        map[string]any        `json:"payload"`
	SequenceNumber uint64                `json:"sequence_number"`
	Metadata       domain.StreamMetadata `json:"metadata"`
}

type subscribeRequest struct {
	ClientID domain.ClientID `json:"client_id"`
}

func streamID(r *http.Request) domain.StreamID {
	return domain.StreamID(chi.URLParam(r, "streamID"))
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.options.Health != nil {
		resp["hub"] = s.options.Health.GetStats()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) establish(w http.ResponseWriter, r *http.Request) {
	var req establishRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	stream, err := s.service.EstablishStream(r.Context(), req.DataType, req.ClientID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, stream)
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("client_id")
	if owner == "" {
		s.writeError(w, r, errors.InvalidRequest("client_id query parameter is required"))
		return
	}
	writeJSON(w, http.StatusOK, s.service.GetActiveStreams(r.Context(), domain.ClientID(owner)))
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	stream, err := s.service.GetStream(r.Context(), streamID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stream)
}

func (s *Server) statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.GetStreamStatistics(r.Context(), streamID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) publish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.service.PublishData(r.Context(), domain.StreamData{
		Payload:        req.Payload,
		SequenceNumber: req.SequenceNumber,
		Metadata:       req.Metadata,
	}, streamID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) subscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.service.GetSubscriptions(r.Context(), streamID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (s *Server) subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	sub, err := s.service.SubscribeToStream(r.Context(), streamID(r), req.ClientID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) unsubscribe(w http.ResponseWriter, r *http.Request) {
	clientID := domain.ClientID(chi.URLParam(r, "clientID"))
	if err := s.service.UnsubscribeFromStream(r.Context(), streamID(r), clientID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// transition replies with the stream after a status change
func (s *Server) transition(change func(context.Context, domain.StreamID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := streamID(r)
		if err := change(r.Context(), id); err != nil {
			s.writeError(w, r, err)
			return
		}

		stream, err := s.service.GetStream(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stream)
	}
}
