package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/bastionsec/bastion/internal/models"
	"github.com/bastionsec/bastion/internal/security"
	"github.com/bastionsec/bastion/internal/services"
	apphttp "github.com/bastionsec/bastion/pkg/http"
)

// maxInspectedBody bounds how much request body the guard will buffer
const maxInspectedBody = 1 << 20 // 1 MiB

// InjectionGuard is the request pipeline orchestrator: sanitize the input
// surfaces, run the detector over the original values, and divert detected
// requests to the deception engine. The attacker never sees a 4xx; they
// see a fabricated success.
type InjectionGuard struct {
	honeypot *services.HoneypotService
	events   *services.SecurityEventService
	ipConfig *apphttp.IPConfig
	logger   *slog.Logger
}

func NewInjectionGuard(honeypot *services.HoneypotService, events *services.SecurityEventService, ipConfig *apphttp.IPConfig, logger *slog.Logger) *InjectionGuard {
	return &InjectionGuard{
		honeypot: honeypot,
		events:   events,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// Guard wraps mutating endpoints. GET requests skip inspection by policy:
// read-only requests are assumed non-mutating and lower-risk. That gap is
// deliberate and documented, not an oversight.
func (g *InjectionGuard) Guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		body, bodyMap, ok := g.readBody(r)
		if !ok {
			apphttp.WriteBadRequest(w, "Invalid request body")
			return
		}

		// Detection runs over the original, pre-sanitization values
		if det := security.Inspect(bodyMap); det.Detected {
			g.divert(w, r, &det)
			return
		}
		query := r.URL.Query()
		if det := security.InspectValues(query); det.Detected {
			g.divert(w, r, &det)
			return
		}
		if det := security.Inspect(map[string]interface{}{"path": r.URL.Path}); det.Detected {
			g.divert(w, r, &det)
			return
		}

		// Clean request: pass sanitized values downstream
		if bodyMap != nil {
			sanitized := security.Sanitize(bodyMap)
			rewritten, err := json.Marshal(sanitized)
			if err != nil {
				g.logger.Error("failed to re-encode sanitized body", slog.Any("error", err))
				apphttp.WriteInternalError(w, "Internal server error")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(rewritten))
			r.ContentLength = int64(len(rewritten))
		} else if len(body) > 0 {
			r.Body = io.NopCloser(bytes.NewReader(body))
		}
		r.URL.RawQuery = url.Values(security.SanitizeValues(query)).Encode()

		next.ServeHTTP(w, r)
	})
}

// readBody buffers the body and decodes it as JSON when possible. A
// non-JSON body is passed through uninspected; a JSON body that does not
// parse is rejected before it reaches any handler.
func (g *InjectionGuard) readBody(r *http.Request) (raw []byte, decoded map[string]interface{}, ok bool) {
	if r.Body == nil {
		return nil, nil, true
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxInspectedBody))
	if err != nil {
		g.logger.Error("failed to read request body", slog.Any("error", err))
		return nil, nil, false
	}
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	if len(body) == 0 {
		return body, nil, true
	}

	var m map[string]interface{}
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, nil, false
	}
	return body, m, true
}

// divert hands the request to the deception engine and writes its
// fabricated result as a success
func (g *InjectionGuard) divert(w http.ResponseWriter, r *http.Request, det *security.Detection) {
	ip := apphttp.ExtractClientIP(r, g.ipConfig)

	g.events.RecordEvent(r.Context(), &models.SecurityEvent{
		Level:       models.LevelCritical,
		Event:       models.EventInjectionAttempt,
		IPAddress:   &ip,
		Description: "Injection pattern detected in request input",
		Tags:        []string{"injection", "detection"},
		Metadata: models.Metadata{
			"endpoint": r.URL.Path,
			"method":   r.Method,
			"field":    det.Field,
			"pattern":  det.Pattern,
		},
	})

	rows := g.honeypot.Divert(r.Context(), det, services.DetectionContext{
		IPAddress: ip,
		UserAgent: r.UserAgent(),
		Endpoint:  r.URL.Path,
		Method:    r.Method,
	})

	apphttp.WriteSuccess(w, http.StatusOK, "Query executed successfully", rows)
}
