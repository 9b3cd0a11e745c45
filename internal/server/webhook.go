package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"git.home.luguber.info/inful/docsdeploy/internal/logfields"
	"git.home.luguber.info/inful/docsdeploy/internal/trigger"
)

// Push payload bodies are small; anything past this is rejected.
const maxWebhookBody = 1 << 20

// pushPayload is the forge push-event shape (GitHub, Gitea, Forgejo all
// deliver this structure for pushes).
type pushPayload struct {
	Ref     string `json:"ref"`
	After   string `json:"after"`
	Deleted bool   `json:"deleted"`
	Commits []struct {
		Added    []string `json:"added"`
		Modified []string `json:"modified"`
		Removed  []string `json:"removed"`
	} `json:"commits"`
}

// changedPaths flattens the per-commit file lists into one deduplicated set.
func (p *pushPayload) changedPaths() []string {
	seen := map[string]struct{}{}
	var paths []string
	add := func(list []string) {
		for _, f := range list {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			paths = append(paths, f)
		}
	}
	for _, c := range p.Commits {
		add(c.Added)
		add(c.Modified)
		add(c.Removed)
	}
	return paths
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) > maxWebhookBody {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	if s.cfg.Secret != "" {
		if !validSignature(s.cfg.Secret, body, r.Header.Get("X-Hub-Signature-256")) {
			slog.Warn("Webhook signature rejected", logfields.RemoteAddr(r.RemoteAddr))
			writeJSONError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	var payload pushPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if payload.Deleted {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ignored", "reason": "branch deletion"})
		return
	}
	branch := strings.TrimPrefix(payload.Ref, "refs/heads/")
	if branch == payload.Ref || branch == "" {
		// Tag pushes and malformed refs never deploy.
		writeJSON(w, http.StatusOK, map[string]any{"status": "ignored", "reason": "ref is not a branch"})
		return
	}

	ev := trigger.PushEvent{
		Branch:       branch,
		Commit:       payload.After,
		ChangedPaths: payload.changedPaths(),
		Source:       trigger.SourceWebhook,
		ReceivedAt:   time.Now(),
	}

	// The run can take minutes; acknowledge the delivery now and deploy in
	// the background. The decision is recomputed here only to shape the
	// response body.
	decision := s.dispatcher.Filter().Evaluate(ev)
	go func() {
		if _, err := s.dispatcher.HandleEvent(s.runCtx, ev); err != nil {
			slog.Error("Webhook-triggered run failed",
				logfields.Branch(ev.Branch),
				logfields.Commit(ev.Commit),
				logfields.Error(err))
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":    "accepted",
		"triggered": decision.Triggered,
		"reason":    decision.Reason,
	})
}

// validSignature checks the hex HMAC-SHA256 digest from the
// X-Hub-Signature-256 header against the raw body.
func validSignature(secret string, body []byte, header string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(sig), []byte(want))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write JSON response", logfields.Error(err))
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
