// File: internal/mcp/types.go
package mcp

import (
	"context"

	"github.com/xkilldash9x/nextron-mcp/internal/browser"
	"github.com/xkilldash9x/nextron-mcp/internal/portal"
)

// Tool names. They are part of the wire contract with existing clients.
const (
	ToolNewSession    = "new_session"
	ToolCloseSession  = "close_session"
	ToolListSessions  = "list_sessions"
	ToolLogin         = "login"
	ToolGerarProposta = "gerar_proposta"
	ToolBuscarCliente = "buscar_cliente"
	ToolHealth        = "health"
)

// Argument names.
const (
	argSessionID     = "session_id"
	argEmail         = "email"
	argPassword      = "password"
	argNomeCompleto  = "nome_completo"
	argTelefone      = "telefone"
	argValorContaBRL = "valor_conta_brl"
	argDistribuidora = "distribuidora"
)

// PortalService is what the tool handlers need from the portal layer.
type PortalService interface {
	NewSession(ctx context.Context) (string, error)
	CloseSession(id string) bool
	ListSessions() []browser.SessionInfo
	Health() portal.Health
	Login(ctx context.Context, id string, override portal.Credentials) (portal.LoginResult, error)
	GenerateProposal(ctx context.Context, id string, in portal.ProposalInput) (portal.Outcome, error)
	SearchClient(ctx context.Context, id, email string) (portal.SearchResult, error)
}

// SessionCreated is the new_session payload.
type SessionCreated struct {
	SessionID string `json:"session_id"`
}

// SessionClosed is the close_session payload. OK is false for unknown ids.
type SessionClosed struct {
	OK bool `json:"ok"`
}

// SessionList is the list_sessions payload.
type SessionList struct {
	Total    int                   `json:"total"`
	Sessions []browser.SessionInfo `json:"sessions"`
}
