// Package httpapi is the HTTP surface (spec §6.3): JSON scan-report
// ingestion for virtual/provenance sources, and REST-ish datasource
// list/state/control endpoints, all mounted on a shared gorilla/mux router
// so internal/remote can add its WebSocket upgrade route alongside it.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kismetwireless/kismet-datasource-core/internal/buildinfo"
	"github.com/kismetwireless/kismet-datasource-core/internal/kiserr"
	"github.com/kismetwireless/kismet-datasource-core/internal/printer"
	"github.com/kismetwireless/kismet-datasource-core/internal/protocol"
	"github.com/kismetwireless/kismet-datasource-core/internal/source"
	"github.com/kismetwireless/kismet-datasource-core/internal/tracker"
)

// Server bundles the router and its one collaborator, the tracker.
type Server struct {
	trk    *tracker.Tracker
	router *mux.Router
}

// New constructs a Server and mounts its routes on a fresh router. Call
// Router to retrieve it for additional mounts (e.g. internal/remote's
// websocket upgrade, or prometheus' promhttp.Handler).
func New(trk *tracker.Tracker) *Server {
	s := &Server{trk: trk, router: mux.NewRouter()}
	s.router.Use(versionHeaderMiddleware)
	s.routes()
	return s
}

// versionHeaderMiddleware stamps every response with the server's build
// version, so a CLI client (cmd/source.go) can flag a major-version mismatch
// via buildinfo.CompatibleWith before trusting the response body's shape.
func versionHeaderMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Kismet-Version", buildinfo.ReleaseVersion().String())
		next.ServeHTTP(w, r)
	})
}

// Router returns the underlying router so cmd/ can add more handles
// (/metrics, the remote WS upgrade) before starting http.Serve.
func (s *Server) Router() *mux.Router { return s.router }

func (s *Server) routes() {
	s.router.HandleFunc("/phy/phy80211/scan/scan_report", s.handleScanReport("DOT11SCAN")).Methods(http.MethodPost)
	s.router.HandleFunc("/phy/phybluetooth/scan/scan_report", s.handleScanReport("BLUETOOTHSCAN")).Methods(http.MethodPost)

	s.router.HandleFunc("/datasource/list_interfaces", s.handleListInterfaces).Methods(http.MethodGet)
	s.router.HandleFunc("/datasource/all_sources", s.handleAllSources).Methods(http.MethodGet)
	s.router.HandleFunc("/datasource/add_source", s.handleAddSource).Methods(http.MethodPost)

	s.router.HandleFunc("/datasource/by-uuid/{uuid}/source", s.handleGetSource).Methods(http.MethodGet)
	s.router.HandleFunc("/datasource/by-uuid/{uuid}/remove_source", s.handleRemoveSource).Methods(http.MethodPost)
	s.router.HandleFunc("/datasource/by-uuid/{uuid}/set_channel", s.handleSetChannel).Methods(http.MethodPost)
	s.router.HandleFunc("/datasource/by-uuid/{uuid}/set_channel_hop", s.handleSetHop).Methods(http.MethodPost)
	s.router.HandleFunc("/datasource/by-uuid/{uuid}/pause_source", s.handlePause).Methods(http.MethodPost)
	s.router.HandleFunc("/datasource/by-uuid/{uuid}/resume_source", s.handleResume).Methods(http.MethodPost)
}

// --- scan report ingestion (spec §6.3) ---------------------------------

type scanReportRequest struct {
	SourceUUID string           `json:"source_uuid"`
	SourceName string           `json:"source_name"`
	Reports    []scanReportItem `json:"reports"`
}

type scanReportItem struct {
	Timestamp float64         `json:"timestamp,omitempty"`
	Lat       *float64        `json:"lat,omitempty"`
	Lon       *float64        `json:"lon,omitempty"`
	Alt       *float64        `json:"alt,omitempty"`
	Signal    *int8           `json:"signal,omitempty"`
	FreqKHz   uint64          `json:"freqkhz,omitempty"`
	Channel   string          `json:"channel,omitempty"`
	Tags      json.RawMessage `json:"tags,omitempty"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Success bool   `json:"success"`
}

// handleScanReport injects one pseudo-packet per report element through a
// virtual source, tagged with schema so downstream consumers know which
// phy the scan came from (spec §6.3 scenario 5).
func (s *Server) handleScanReport(schema string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req scanReportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, statusResponse{Status: "malformed scan report: " + err.Error()})
			return
		}
		if req.SourceUUID == "" && req.SourceName == "" {
			writeJSON(w, http.StatusBadRequest, statusResponse{Status: "scan report missing source_uuid/source_name"})
			return
		}

		src, kerr := s.trk.GetOrCreateVirtual(req.SourceUUID, req.SourceName)
		if kerr != nil {
			writeJSON(w, http.StatusInternalServerError, statusResponse{Status: kerr.Error()})
			return
		}

		for _, item := range req.Reports {
			src.IngestReport(buildScanReport(schema, item))
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: "scan report accepted", Success: true})
	}
}

func buildScanReport(schema string, item scanReportItem) protocol.Report {
	raw, _ := json.Marshal(item)
	rep := protocol.Report{ID: protocol.RptJsonReport, JSON: protocol.JsonPayload{Schema: schema, JSON: string(raw)}}

	if item.Lat != nil && item.Lon != nil {
		fix := uint8(2)
		if item.Alt != nil {
			fix = 3
		}
		rep.GpsFix = &protocol.Gps{Lat: *item.Lat, Lon: *item.Lon, Alt: item.Alt, Fix: fix}
	}
	if item.Signal != nil || item.FreqKHz != 0 || item.Channel != "" {
		rep.Signal = &protocol.Signal{DBM: item.Signal, FreqKHz: item.FreqKHz, Channel: item.Channel}
	}
	return rep
}

// --- datasource list/state/control (spec §3, §6.1) ---------------------

func (s *Server) handleListInterfaces(w http.ResponseWriter, r *http.Request) {
	entries, kerr := s.trk.ListInterfaces()
	if kerr != nil {
		writeError(w, kerr)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleAllSources(w http.ResponseWriter, r *http.Request) {
	sources := s.trk.Iter()
	out := make([]sourceView, len(sources))
	for i, src := range sources {
		out[i] = viewOf(src)
	}
	writeJSON(w, http.StatusOK, out)
}

type addSourceRequest struct {
	Definition string `json:"definition"`
}

func (s *Server) handleAddSource(w http.ResponseWriter, r *http.Request) {
	var req addSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "malformed request: " + err.Error()})
		return
	}
	src, kerr := s.trk.AddSource(req.Definition)
	if kerr != nil {
		writeError(w, kerr)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(src))
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	src := s.sourceFromPath(w, r)
	if src == nil {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(src))
}

func (s *Server) handleRemoveSource(w http.ResponseWriter, r *http.Request) {
	uuid := mux.Vars(r)["uuid"]
	if kerr := s.trk.RemoveSource(uuid); kerr != nil {
		writeError(w, kerr)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "removing", Success: true})
}

type setChannelRequest struct {
	Channel string `json:"channel"`
}

func (s *Server) handleSetChannel(w http.ResponseWriter, r *http.Request) {
	src := s.sourceFromPath(w, r)
	if src == nil {
		return
	}
	var req setChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "malformed request: " + err.Error()})
		return
	}
	if kerr := src.SetChannel(req.Channel); kerr != nil {
		writeError(w, kerr)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "channel set", Success: true})
}

type setHopRequest struct {
	RateHz   float64  `json:"rate"`
	Channels []string `json:"channels"`
	Offset   uint32   `json:"offset"`
	Split    bool     `json:"split"`
	Shuffle  bool     `json:"shuffle"`
}

func (s *Server) handleSetHop(w http.ResponseWriter, r *http.Request) {
	src := s.sourceFromPath(w, r)
	if src == nil {
		return
	}
	var req setHopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "malformed request: " + err.Error()})
		return
	}
	if kerr := src.SetHop(req.RateHz, req.Channels, req.Offset, req.Split, req.Shuffle); kerr != nil {
		writeError(w, kerr)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "hop configured", Success: true})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	src := s.sourceFromPath(w, r)
	if src == nil {
		return
	}
	if kerr := src.Pause(); kerr != nil {
		writeError(w, kerr)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "paused", Success: true})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	src := s.sourceFromPath(w, r)
	if src == nil {
		return
	}
	if kerr := src.Resume(); kerr != nil {
		writeError(w, kerr)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "resumed", Success: true})
}

func (s *Server) sourceFromPath(w http.ResponseWriter, r *http.Request) *source.Source {
	uuid := mux.Vars(r)["uuid"]
	src := s.trk.FindByUUID(uuid)
	if src == nil {
		writeJSON(w, http.StatusNotFound, statusResponse{Status: "no such source: " + uuid})
		return nil
	}
	return src
}

// sourceView is the JSON projection of a Source entity (spec §3), flattened
// for the datasource list/per-source endpoints.
type sourceView struct {
	UUID          string   `json:"uuid"`
	Name          string   `json:"name"`
	Interface     string   `json:"interface"`
	CapInterface  string   `json:"capture_interface"`
	Definition    string   `json:"definition"`
	Hardware      string   `json:"hardware"`
	State         string   `json:"state"`
	DLT           int      `json:"dlt"`
	DLTName       string   `json:"dlt_name"`
	Channels      []string `json:"channels"`
	CurrentChan   string   `json:"channel"`
	Hopping       bool     `json:"hopping"`
	HopRate       float64  `json:"hop_rate"`
	Remote        bool     `json:"remote"`
	Paused        bool     `json:"paused"`
	Warning       string   `json:"warning"`
	LastError     string   `json:"last_error,omitempty"`
	RxPackets     uint64   `json:"num_packets"`
	RxErrors      uint64   `json:"num_error_packets"`
	PacketRRD     []float64 `json:"packets_rrd"`
	PacketSizeRRD []float64 `json:"packet_size_rrd"`
}

// viewOf flattens src into its JSON projection, labeling its numeric dlt
// field via the DLT registry carried in the source's fan-in processor (spec
// SUPPLEMENTED FEATURES: dlttracker.h).
func viewOf(src *source.Source) sourceView {
	hop := src.HopState()
	v := sourceView{
		UUID:          src.UUID(),
		Name:          src.Name(),
		Interface:     src.Interface(),
		CapInterface:  src.CapInterface(),
		Definition:    src.DefinitionString(),
		Hardware:      src.Hardware(),
		State:         src.State().String(),
		DLT:           src.DLT(),
		DLTName:       src.DLTName(),
		Channels:      src.Channels(),
		CurrentChan:   src.CurrentChannel(),
		Hopping:       hop.Hopping,
		HopRate:       hop.RateHz,
		Remote:        src.Remote(),
		Paused:        src.Paused(),
		Warning:       src.Warning(),
		RxPackets:     src.RxPackets(),
		RxErrors:      src.RxErrors(),
		PacketRRD:     src.PacketRRD(),
		PacketSizeRRD: src.PacketSizeRRD(),
	}
	if kerr := src.LastError(); kerr != nil {
		v.LastError = kerr.Error()
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		printer.Warningf("httpapi: failed to encode response: %v\n", err)
	}
}

func writeError(w http.ResponseWriter, kerr *kiserr.Error) {
	status := http.StatusInternalServerError
	switch kerr.Kind {
	case kiserr.KindBadDefinition:
		status = http.StatusBadRequest
	case kiserr.KindUnsupported:
		status = http.StatusNotImplemented
	}
	writeJSON(w, status, statusResponse{Status: kerr.Error()})
}
