package handlers

import (
	"context"
	"errors"
	"net/http"

	"devlink-realtime/internal/auth"
	"devlink-realtime/internal/metrics"
	"devlink-realtime/pkg/logger"

	"github.com/goccy/go-json"
)

// Authenticator is the admission gate consumed by the transport handlers.
type Authenticator interface {
	Authenticate(ctx context.Context, h auth.Handshake) (auth.Identity, error)
}

type gate struct {
	auth       Authenticator
	cookieName string
}

// admit authenticates one connection attempt and records the outcome.
func (g gate) admit(r *http.Request, transport string) (auth.Identity, error) {
	identity, err := g.auth.Authenticate(r.Context(), auth.HandshakeFromRequest(r, g.cookieName))
	if err != nil {
		metrics.RecordAdmission(rejectionLabel(err))
		var admission *auth.AdmissionError
		if errors.As(err, &admission) && admission.Cause != nil {
			logger.Warn("Rejected %s connection from %s: %v (%v)", transport, r.RemoteAddr, err, admission.Cause)
		} else {
			logger.Warn("Rejected %s connection from %s: %v", transport, r.RemoteAddr, err)
		}
		return auth.Identity{}, err
	}

	metrics.RecordAdmission(metrics.AdmissionAccepted)
	logger.Debug("Admitted %s connection for user %s (token from %s)", transport, identity.UserID, identity.Source)
	return identity, nil
}

// rejectionMessage is the connect_error text for err.
func rejectionMessage(err error) string {
	var admission *auth.AdmissionError
	if errors.As(err, &admission) {
		return admission.Error()
	}
	return "Authentication error: " + err.Error()
}

func rejectionLabel(err error) string {
	switch {
	case errors.Is(err, auth.ErrNoToken):
		return "no_token"
	case errors.Is(err, auth.ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, auth.ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, auth.ErrInvalidIdentity):
		return "invalid_identity"
	case errors.Is(err, auth.ErrUnknownUser):
		return "unknown_user"
	case errors.Is(err, auth.ErrLookupFailed):
		return "lookup_failed"
	}
	return "rejected"
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error writing response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
