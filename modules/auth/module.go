// Package auth guards the API with bearer tokens.
//
// A token is accepted if it is a row in api_tokens, or a JWT signed by the
// server's TokenIssuer. The first start generates one api_tokens row.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/marquee-cinema/marquee/engine"
)

type Module struct {
	db     *sql.DB
	issuer *engine.TokenIssuer
}

// New expects the core schema. issuer may be nil to accept only api_tokens.
func New(db *sql.DB, issuer *engine.TokenIssuer) (*Module, error) {
	var id int
	if err := db.QueryRow("SELECT id FROM api_tokens").Scan(&id); err != nil {
		slog.Info("generating initial API token...")
		token := uuid.Must(uuid.NewRandom()).String() + "-" + uuid.Must(uuid.NewRandom()).String()
		_, err = db.Exec("INSERT INTO api_tokens (label, token) VALUES ('Automatically generated', $1)", token)
		if err != nil {
			return nil, err
		}
	}
	return &Module{db: db, issuer: issuer}, nil
}

// WithAuthn implements engine.Authenticator.
func (m *Module) WithAuthn(next engine.Handler) engine.Handler {
	return func(r *http.Request, ps httprouter.Params) engine.Response {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			return engine.Unauthorized(errors.New("missing bearer token"))
		}
		if err := m.authenticate(r.Context(), token); err != nil {
			return engine.Unauthorized(err)
		}
		return next(r, ps)
	}
}

func (m *Module) authenticate(ctx context.Context, token string) error {
	if m.issuer != nil && strings.Count(token, ".") == 2 {
		_, err := m.issuer.Verify(token)
		return err
	}

	var id int
	return m.db.QueryRowContext(ctx, "SELECT id FROM api_tokens WHERE token = $1", token).Scan(&id)
}
