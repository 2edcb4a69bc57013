package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/psaab/slotstrike/pkg/logging"
	"github.com/psaab/slotstrike/pkg/rules"
	"github.com/psaab/slotstrike/pkg/telemetry"
)

const defaultListLimit = 50

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Response{Success: false, Error: msg})
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, map[string]string{"status": "ok"})
}

func (s *Server) statusHandler(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Uptime:       time.Since(s.startTime).Truncate(time.Second).String(),
		NetworkStack: string(s.mode),
		Describe:     s.describe,
	}
	if s.port != nil {
		resp.Ingress = s.port.Name()
		resp.IngressCounters = s.port.Counters().Snapshot()
	}
	if s.engine != nil {
		resp.Engine = s.engine.Snapshot()
	}
	if rb := s.ruleBook(); rb != nil {
		resp.MintRules = rb.Len(rules.KindMint)
		resp.DeployerRules = rb.Len(rules.KindDeployer)
	}
	if s.telemetry != nil {
		resp.TelemetryEnabled = s.telemetry.Enabled()
	}
	if s.eventBuf != nil {
		resp.RecordsTotal = s.eventBuf.Total()
	}
	writeOK(w, resp)
}

func (s *Server) telemetryHandler(w http.ResponseWriter, _ *http.Request) {
	if s.telemetry == nil {
		writeError(w, http.StatusServiceUnavailable, "telemetry not available")
		return
	}
	hops := s.telemetry.SnapshotAll()
	if hops == nil {
		hops = []telemetry.HopStats{}
	}
	writeOK(w, TelemetryResponse{
		Enabled:        s.telemetry.Enabled(),
		SLONs:          s.telemetry.SLONs(),
		DroppedSamples: s.telemetry.Dropped(),
		Hops:           hops,
	})
}

func (s *Server) rulesHandler(w http.ResponseWriter, _ *http.Request) {
	rb := s.ruleBook()
	if rb == nil {
		writeError(w, http.StatusServiceUnavailable, "rules not available")
		return
	}
	writeOK(w, RulesResponse{
		Mints:     ruleInfos(rb.Rules(rules.KindMint)),
		Deployers: ruleInfos(rb.Rules(rules.KindDeployer)),
	})
}

func (s *Server) rulesHistoryHandler(w http.ResponseWriter, _ *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "rule history not available")
		return
	}
	entries := s.history.List()
	out := make([]RuleHistoryEntry, 0, len(entries))
	for i, e := range entries {
		h := RuleHistoryEntry{Index: i, Timestamp: e.Timestamp}
		for _, c := range e.Changes {
			h.Changes = append(h.Changes, c.String())
		}
		out = append(out, h)
	}
	writeOK(w, out)
}

// candidatesHandler lists recent pool candidates, newest first.
// Supports ?limit=, ?strategy= and ?source=.
func (s *Server) candidatesHandler(w http.ResponseWriter, r *http.Request) {
	s.listRecords(w, r, logging.CategoryCandidate)
}

func (s *Server) alertsHandler(w http.ResponseWriter, r *http.Request) {
	s.listRecords(w, r, logging.CategoryAlert)
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request, category string) {
	if s.eventBuf == nil {
		writeError(w, http.StatusServiceUnavailable, "event buffer not available")
		return
	}
	q := r.URL.Query()
	f := logging.RecordFilter{
		Category: category,
		Strategy: q.Get("strategy"),
		Source:   q.Get("source"),
	}
	recs := s.eventBuf.LatestFiltered(queryInt(r, "limit", defaultListLimit), f)
	if recs == nil {
		recs = []logging.Record{}
	}
	writeOK(w, recs)
}

func (s *Server) ruleBook() *rules.RuleBook {
	if s.rules == nil {
		return nil
	}
	return s.rules.Load()
}

func ruleInfos(rs []rules.SnipeRule) []RuleInfo {
	out := make([]RuleInfo, 0, len(rs))
	for _, r := range rs {
		out = append(out, RuleInfo{
			Address:        r.Address.String(),
			SnipeHeightSOL: r.SnipeHeight.SOLString(),
			JitoTipSOL:     r.JitoTip.SOLString(),
			SlippagePct:    r.Slippage.PctString(),
		})
	}
	return out
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
