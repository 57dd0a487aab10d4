package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kismetwireless/kismet-datasource-core/internal/buildinfo"
	"github.com/kismetwireless/kismet-datasource-core/internal/config"
	"github.com/kismetwireless/kismet-datasource-core/internal/dlt"
	"github.com/kismetwireless/kismet-datasource-core/internal/driver"
	"github.com/kismetwireless/kismet-datasource-core/internal/eventbus"
	"github.com/kismetwireless/kismet-datasource-core/internal/gps"
	"github.com/kismetwireless/kismet-datasource-core/internal/packetchain"
	"github.com/kismetwireless/kismet-datasource-core/internal/tracker"
)

type stubBuilder struct{ caps driver.Caps }

func (b stubBuilder) Caps() driver.Caps                     { return b.caps }
func (b stubBuilder) HelperArgs(definition string) []string { return nil }
func (b stubBuilder) DecapFrame(linkFrame []byte) []byte    { return nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)

	reg := driver.NewRegistry()
	reg.Register(stubBuilder{caps: driver.Caps{Name: "virtual", DefaultDLT: dlt.DLTKismetScan, OverrideDLT: dlt.DLTKismetScan}})

	bus := eventbus.New()
	chain := packetchain.NewMemoryChain(16)
	trk := tracker.New(reg, bus, chain, gps.NullTracker{}, cfg, nil, dlt.NewRegistry())
	return New(trk)
}

func doRequest(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	return rr
}

func TestHandleScanReportCreatesVirtualSourceAndIngestsEachReport(t *testing.T) {
	s := newTestServer(t)
	lat, lon := 40.0, -105.0
	rr := doRequest(t, s, http.MethodPost, "/phy/phy80211/scan/scan_report", scanReportRequest{
		SourceName: "scan-src",
		Reports: []scanReportItem{
			{Lat: &lat, Lon: &lon, Channel: "6"},
			{Lat: &lat, Lon: &lon, Channel: "11"},
		},
	})
	require.Equal(t, http.StatusOK, rr.Code)

	all := doRequest(t, s, http.MethodGet, "/datasource/all_sources", nil)
	require.Equal(t, http.StatusOK, all.Code)
	var views []sourceView
	require.NoError(t, json.Unmarshal(all.Body.Bytes(), &views))
	require.Len(t, views, 1)
	require.Equal(t, "scan-src", views[0].Name)
	require.Equal(t, uint64(2), views[0].RxPackets)
}

func TestEveryResponseCarriesVersionHeader(t *testing.T) {
	s := newTestServer(t)
	rr := doRequest(t, s, http.MethodGet, "/datasource/all_sources", nil)
	require.Equal(t, buildinfo.ReleaseVersion().String(), rr.Header().Get("X-Kismet-Version"))
}

func TestHandleScanReportReusesVirtualSourceForSameName(t *testing.T) {
	s := newTestServer(t)
	lat, lon := 1.0, 2.0
	doRequest(t, s, http.MethodPost, "/phy/phy80211/scan/scan_report", scanReportRequest{
		SourceName: "shared", Reports: []scanReportItem{{Lat: &lat, Lon: &lon}},
	})
	doRequest(t, s, http.MethodPost, "/phy/phybluetooth/scan/scan_report", scanReportRequest{
		SourceName: "shared", Reports: []scanReportItem{{Lat: &lat, Lon: &lon}},
	})

	all := doRequest(t, s, http.MethodGet, "/datasource/all_sources", nil)
	var views []sourceView
	require.NoError(t, json.Unmarshal(all.Body.Bytes(), &views))
	require.Len(t, views, 1, "both schemas should tag the same named virtual source rather than creating two")
	require.Equal(t, uint64(2), views[0].RxPackets)
}

func TestHandleScanReportRejectsMalformedJSON(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/phy/phy80211/scan/scan_report", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleScanReportRejectsMissingSourceIdentifiers(t *testing.T) {
	s := newTestServer(t)
	rr := doRequest(t, s, http.MethodPost, "/phy/phy80211/scan/scan_report", scanReportRequest{})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleAddSourceRejectsUnknownDriverType(t *testing.T) {
	s := newTestServer(t)
	rr := doRequest(t, s, http.MethodPost, "/datasource/add_source", addSourceRequest{Definition: "wlan0:type=nope"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleGetSourceNotFound(t *testing.T) {
	s := newTestServer(t)
	rr := doRequest(t, s, http.MethodGet, "/datasource/by-uuid/does-not-exist/source", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleSetChannelOnUnknownSourceIsNotFound(t *testing.T) {
	s := newTestServer(t)
	rr := doRequest(t, s, http.MethodPost, "/datasource/by-uuid/does-not-exist/set_channel", setChannelRequest{Channel: "6"})
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlePauseResumeRoundtripOnVirtualSource(t *testing.T) {
	s := newTestServer(t)
	lat, lon := 1.0, 2.0
	doRequest(t, s, http.MethodPost, "/phy/phy80211/scan/scan_report", scanReportRequest{
		SourceName: "pausable", Reports: []scanReportItem{{Lat: &lat, Lon: &lon}},
	})
	all := doRequest(t, s, http.MethodGet, "/datasource/all_sources", nil)
	var views []sourceView
	require.NoError(t, json.Unmarshal(all.Body.Bytes(), &views))
	require.Len(t, views, 1)
	uuid := views[0].UUID

	rr := doRequest(t, s, http.MethodPost, "/datasource/by-uuid/"+uuid+"/pause_source", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	got := doRequest(t, s, http.MethodGet, "/datasource/by-uuid/"+uuid+"/source", nil)
	var view sourceView
	require.NoError(t, json.Unmarshal(got.Body.Bytes(), &view))
	require.True(t, view.Paused)

	rr = doRequest(t, s, http.MethodPost, "/datasource/by-uuid/"+uuid+"/resume_source", nil)
	require.Equal(t, http.StatusOK, rr.Code)
}
