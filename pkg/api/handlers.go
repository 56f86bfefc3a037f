package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ssargent/dsusage/pkg/codec"
	"github.com/ssargent/dsusage/pkg/reporter"
	"github.com/ssargent/dsusage/pkg/storage"
	"github.com/ssargent/dsusage/pkg/transport"
	"github.com/ssargent/dsusage/pkg/usage"
)

const (
	defaultSnapshotLimit = 20
	maxSnapshotLimit     = 1000
)

// handleHealth reports that the server is up and which transport version it speaks
//
//	@Summary		Health check
//	@Description	Get the health status of the API and the transport version it speaks
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	APIResponse
//	@Security		ApiKeyAuth
//	@Router			/health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.metrics.RecordHealthCheck(true)
	sendSuccess(w, map[string]string{
		"status":            "healthy",
		"transport_version": s.version.String(),
	})
}

// handleGetUsage renders the latest report. ?format=yaml returns the bare
// document as YAML instead of the JSON envelope.
//
//	@Summary		Get the latest usage report
//	@Description	Render the latest usage report as a peer on the negotiated transport version sees it
//	@Tags			usage
//	@Produce		json,yaml
//	@Param			X-Transport-Version	header		string	false	"Caller transport version"
//	@Param			transport_version	query		string	false	"Caller transport version when the header is absent"
//	@Param			format				query		string	false	"json (default) or yaml"
//	@Success		200					{object}	UsageResponse
//	@Failure		400					{object}	APIResponse
//	@Failure		503					{object}	APIResponse
//	@Security		ApiKeyAuth
//	@Router			/usage [get]
func (s *Server) handleGetUsage(w http.ResponseWriter, r *http.Request) {
	version, ok := s.negotiate(w, r)
	if !ok {
		return
	}

	rep, err := s.latestReport(r)
	if err != nil {
		s.logger.Error("failed to produce usage report", zap.Error(err))
		sendError(w, fmt.Sprintf("Failed to produce usage report: %v", err), http.StatusServiceUnavailable)
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		w.Header().Set(headerTransportVersion, version.String())
		sendSuccess(w, newUsageResponse(rep.ID, rep.CollectedAt, rep.Usage, version))
	case "yaml":
		s.sendYAML(w, rep.Usage, version)
	default:
		sendError(w, fmt.Sprintf("Unsupported format %q", format), http.StatusBadRequest)
	}
}

// handleGetUsageWire returns the latest report in wire form
//
//	@Summary		Get the latest usage report in wire form
//	@Tags			usage
//	@Produce		octet-stream
//	@Param			X-Transport-Version	header		string	false	"Caller transport version"
//	@Success		200					{string}	byte
//	@Failure		400					{object}	APIResponse
//	@Failure		503					{object}	APIResponse
//	@Security		ApiKeyAuth
//	@Router			/usage/wire [get]
func (s *Server) handleGetUsageWire(w http.ResponseWriter, r *http.Request) {
	version, ok := s.negotiate(w, r)
	if !ok {
		return
	}

	rep, err := s.latestReport(r)
	if err != nil {
		s.logger.Error("failed to produce usage report", zap.Error(err))
		sendError(w, fmt.Sprintf("Failed to produce usage report: %v", err), http.StatusServiceUnavailable)
		return
	}

	s.sendWire(w, rep.Usage, version)
}

// handleRefreshUsage collects a fresh report
//
//	@Summary		Refresh the usage report
//	@Tags			usage
//	@Produce		json
//	@Param			X-Transport-Version	header		string	false	"Caller transport version"
//	@Success		200					{object}	UsageResponse
//	@Failure		500					{object}	APIResponse
//	@Security		ApiKeyAuth
//	@Router			/usage/refresh [post]
func (s *Server) handleRefreshUsage(w http.ResponseWriter, r *http.Request) {
	version, ok := s.negotiate(w, r)
	if !ok {
		return
	}

	rep, err := s.reporter.Report(r.Context())
	if err != nil {
		s.logger.Error("usage refresh failed", zap.Error(err))
		sendError(w, fmt.Sprintf("Failed to refresh usage: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set(headerTransportVersion, version.String())
	sendSuccess(w, newUsageResponse(rep.ID, rep.CollectedAt, rep.Usage, version))
}

// handleDecodeUsage decodes a wire-form report sent at the negotiated version
//
//	@Summary		Decode a usage report
//	@Tags			usage
//	@Accept			octet-stream
//	@Produce		json
//	@Param			X-Transport-Version	header		string	false	"Caller transport version"
//	@Param			body				body		[]byte	true	"Wire-form report"
//	@Success		200					{object}	UsageResponse
//	@Failure		400					{object}	APIResponse
//	@Failure		413					{object}	APIResponse
//	@Security		ApiKeyAuth
//	@Router			/usage/decode [post]
func (s *Server) handleDecodeUsage(w http.ResponseWriter, r *http.Request) {
	version, ok := s.negotiate(w, r)
	if !ok {
		return
	}

	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	u, err := usage.Unmarshal(body, version)
	s.metrics.RecordCodecOperation("decode", version.String(), err == nil, len(body))
	if err != nil {
		if usage.IsMalformed(err) {
			sendError(w, fmt.Sprintf("Malformed usage report: %v", err), http.StatusBadRequest)
			return
		}
		sendError(w, fmt.Sprintf("Failed to decode usage report: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set(headerTransportVersion, version.String())
	sendSuccess(w, newUsageResponse(ksuid.Nil, time.Time{}, u, version))
}

// handleEncodeUsage turns a rendered JSON report into wire form
//
//	@Summary		Encode a usage report
//	@Tags			usage
//	@Accept			json
//	@Produce		octet-stream
//	@Param			X-Transport-Version	header		string	false	"Caller transport version"
//	@Param			body				body		object	true	"Rendered report"
//	@Success		200					{string}	byte
//	@Failure		400					{object}	APIResponse
//	@Failure		413					{object}	APIResponse
//	@Security		ApiKeyAuth
//	@Router			/usage/encode [post]
func (s *Server) handleEncodeUsage(w http.ResponseWriter, r *http.Request) {
	version, ok := s.negotiate(w, r)
	if !ok {
		return
	}

	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	u, err := usage.ParseJSON(body)
	if err != nil {
		sendError(w, fmt.Sprintf("Invalid usage document: %v", err), http.StatusBadRequest)
		return
	}

	s.sendWire(w, u, version)
}

// handleListSnapshots lists stored reports, newest first
//
//	@Summary		List snapshots
//	@Tags			snapshots
//	@Produce		json
//	@Param			limit	query		int	false	"Maximum number of snapshots (1-1000, default 20)"
//	@Success		200		{array}		UsageResponse
//	@Failure		400		{object}	APIResponse
//	@Failure		404		{object}	APIResponse
//	@Security		ApiKeyAuth
//	@Router			/snapshots [get]
func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil {
		sendError(w, "Snapshot history is disabled", http.StatusNotFound)
		return
	}

	limit := defaultSnapshotLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxSnapshotLimit {
			sendError(w, fmt.Sprintf("limit must be between 1 and %d", maxSnapshotLimit), http.StatusBadRequest)
			return
		}
		limit = n
	}

	snaps, err := s.snapshots.List(limit)
	if err != nil {
		s.logger.Error("failed to list snapshots", zap.Error(err))
		sendError(w, fmt.Sprintf("Failed to list snapshots: %v", err), http.StatusInternalServerError)
		return
	}

	out := make([]UsageResponse, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, snapshotResponse(snap))
	}
	sendSuccess(w, out)
}

// handleGetSnapshot returns one stored report
//
//	@Summary		Get a snapshot
//	@Tags			snapshots
//	@Produce		json
//	@Param			id	path		string	true	"Snapshot ID"
//	@Success		200	{object}	UsageResponse
//	@Failure		400	{object}	APIResponse
//	@Failure		404	{object}	APIResponse
//	@Security		ApiKeyAuth
//	@Router			/snapshots/{id} [get]
func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil {
		sendError(w, "Snapshot history is disabled", http.StatusNotFound)
		return
	}

	id, err := ksuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		sendError(w, "Invalid snapshot id", http.StatusBadRequest)
		return
	}

	snap, err := s.snapshots.Get(id)
	if errors.Is(err, storage.ErrSnapshotNotFound) {
		sendError(w, "Snapshot not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("failed to read snapshot", zap.String("id", id.String()), zap.Error(err))
		sendError(w, fmt.Sprintf("Failed to read snapshot: %v", err), http.StatusInternalServerError)
		return
	}

	sendSuccess(w, snapshotResponse(*snap))
}

// negotiate picks the transport version for this request. On failure it has
// already written the error response.
func (s *Server) negotiate(w http.ResponseWriter, r *http.Request) (transport.Version, bool) {
	raw := r.Header.Get(headerTransportVersion)
	if raw == "" {
		raw = r.URL.Query().Get("transport_version")
	}
	if raw == "" {
		return s.version, true
	}

	remote, err := transport.Parse(raw)
	if err != nil {
		sendError(w, fmt.Sprintf("Invalid transport version: %v", err), http.StatusBadRequest)
		return transport.Version{}, false
	}
	return transport.Negotiate(s.version, remote), true
}

func (s *Server) latestReport(r *http.Request) (*reporter.Report, error) {
	if rep, ok := s.reporter.Latest(); ok {
		return rep, nil
	}
	return s.reporter.Report(r.Context())
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			sendError(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return nil, false
		}
		sendError(w, "Failed to read request body", http.StatusBadRequest)
		return nil, false
	}
	return body, true
}

func (s *Server) sendWire(w http.ResponseWriter, u usage.DataStreamsUsage, version transport.Version) {
	data, err := usage.Marshal(u, version)
	s.metrics.RecordCodecOperation("encode", version.String(), err == nil, len(data))
	if err != nil {
		s.logger.Error("failed to encode usage report", zap.Error(err))
		sendError(w, fmt.Sprintf("Failed to encode usage report: %v", err), http.StatusInternalServerError)
		return
	}

	masked := codec.MaskForVersion(u.Stats, version)
	w.Header().Set("Content-Type", contentTypeBinary)
	w.Header().Set(headerTransportVersion, version.String())
	w.Header().Set(headerUsageHash, formatHash(masked.Hash()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) sendYAML(w http.ResponseWriter, u usage.DataStreamsUsage, version transport.Version) {
	u.Stats = codec.MaskForVersion(u.Stats, version)
	data, err := yaml.Marshal(u.Render())
	if err != nil {
		sendError(w, fmt.Sprintf("Failed to render usage report: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentTypeYAML)
	w.Header().Set(headerTransportVersion, version.String())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// newUsageResponse renders u as a peer on version would see it
func newUsageResponse(id ksuid.KSUID, collectedAt time.Time, u usage.DataStreamsUsage, version transport.Version) UsageResponse {
	u.Stats = codec.MaskForVersion(u.Stats, version)

	resp := UsageResponse{
		TransportVersion: version.String(),
		Hash:             formatHash(u.Hash()),
		Usage:            u.Render(),
	}
	if id != ksuid.Nil {
		resp.ID = id.String()
	}
	if !collectedAt.IsZero() {
		resp.CollectedAt = &collectedAt
	}
	return resp
}

func snapshotResponse(snap storage.Snapshot) UsageResponse {
	return newUsageResponse(snap.ID, snap.Time(), snap.Usage, snap.Version)
}

func formatHash(h uint64) string {
	return fmt.Sprintf("%016x", h)
}
