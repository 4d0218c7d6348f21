// File: internal/mcp/handlers.go
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/xkilldash9x/nextron-mcp/internal/browser"
	"github.com/xkilldash9x/nextron-mcp/internal/portal"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Handlers adapts tool calls to the portal service.
type Handlers struct {
	log     *zap.Logger
	service PortalService
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(logger *zap.Logger, service PortalService) *Handlers {
	return &Handlers{
		log:     logger.Named("mcp_handlers"),
		service: service,
	}
}

// RegisterTools adds every tool to srv.
func (h *Handlers) RegisterTools(srv *server.MCPServer) {
	srv.AddTool(mcplib.NewTool(ToolNewSession,
		mcplib.WithDescription("Cria uma nova sessão de navegação isolada para operações paralelas. "+
			"Retorna `session_id`, que deve ser usado nas outras tools."),
	), h.HandleNewSession)

	srv.AddTool(mcplib.NewTool(ToolCloseSession,
		mcplib.WithDescription("Fecha e limpa a sessão indicada. Retorna ok=false se a sessão não existir."),
		mcplib.WithString(argSessionID, mcplib.Required(), mcplib.Description("ID retornado por new_session")),
	), h.HandleCloseSession)

	srv.AddTool(mcplib.NewTool(ToolListSessions,
		mcplib.WithDescription("Lista as sessões abertas com usuário autenticado, URL atual e horários de uso."),
	), h.HandleListSessions)

	srv.AddTool(mcplib.NewTool(ToolLogin,
		mcplib.WithDescription("Realiza login no Nextron usando a sessão informada. "+
			"Sem email/password, usa as credenciais configuradas no servidor."),
		mcplib.WithString(argSessionID, mcplib.Required(), mcplib.Description("ID retornado por new_session")),
		mcplib.WithString(argEmail, mcplib.Description("Email de login (opcional)")),
		mcplib.WithString(argPassword, mcplib.Description("Senha de login (opcional)")),
	), h.HandleLogin)

	srv.AddTool(mcplib.NewTool(ToolGerarProposta,
		mcplib.WithDescription("Cria uma proposta para um cliente na página de onboarding. "+
			"Falhas de validação do portal retornam ok=false com a mensagem exibida."),
		mcplib.WithString(argSessionID, mcplib.Required(), mcplib.Description("ID retornado por new_session")),
		mcplib.WithString(argNomeCompleto, mcplib.Required(), mcplib.Description("Nome completo do cliente")),
		mcplib.WithString(argEmail, mcplib.Required(), mcplib.Description("Email do cliente")),
		mcplib.WithString(argTelefone, mcplib.Required(), mcplib.Description("Telefone do cliente")),
		mcplib.WithNumber(argValorContaBRL, mcplib.Required(), mcplib.Description("Valor médio da conta de luz em BRL")),
		mcplib.WithString(argDistribuidora, mcplib.Description("Distribuidora de energia (opcional)")),
	), h.HandleGerarProposta)

	srv.AddTool(mcplib.NewTool(ToolBuscarCliente,
		mcplib.WithDescription("Busca clientes pelo email na listagem e retorna as linhas encontradas."),
		mcplib.WithString(argSessionID, mcplib.Required(), mcplib.Description("ID retornado por new_session")),
		mcplib.WithString(argEmail, mcplib.Required(), mcplib.Description("Email do cliente")),
	), h.HandleBuscarCliente)

	srv.AddTool(mcplib.NewTool(ToolHealth,
		mcplib.WithDescription("Retorna o status do servidor MCP."),
	), h.HandleHealth)
}

// HandleNewSession opens a browser session.
func (h *Handlers) HandleNewSession(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, err := h.service.NewSession(ctx)
	if err != nil {
		return h.toolError(ToolNewSession, err), nil
	}
	return h.respond(ToolNewSession, SessionCreated{SessionID: id}), nil
}

// HandleCloseSession closes a session. Unknown ids are reported, not failed.
func (h *Handlers) HandleCloseSession(_ context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, err := request.RequireString(argSessionID)
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	return h.respond(ToolCloseSession, SessionClosed{OK: h.service.CloseSession(id)}), nil
}

// HandleListSessions describes every open session.
func (h *Handlers) HandleListSessions(_ context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	sessions := h.service.ListSessions()
	if sessions == nil {
		sessions = []browser.SessionInfo{}
	}
	return h.respond(ToolListSessions, SessionList{Total: len(sessions), Sessions: sessions}), nil
}

// HandleLogin authenticates a session.
func (h *Handlers) HandleLogin(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, err := request.RequireString(argSessionID)
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	override := portal.Credentials{
		Email:    strings.TrimSpace(request.GetString(argEmail, "")),
		Password: request.GetString(argPassword, ""),
	}

	res, err := h.service.Login(ctx, id, override)
	if err != nil {
		return h.toolError(ToolLogin, err), nil
	}
	return h.respond(ToolLogin, res), nil
}

// HandleGerarProposta submits a proposal through a session.
func (h *Handlers) HandleGerarProposta(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, err := request.RequireString(argSessionID)
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	var in portal.ProposalInput
	if in.FullName, err = request.RequireString(argNomeCompleto); err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	if in.Email, err = request.RequireString(argEmail); err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	if in.Phone, err = request.RequireString(argTelefone); err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	if in.Amount, err = amountArgument(request.GetArguments()); err != nil {
		return h.toolError(ToolGerarProposta, err), nil
	}
	in.Distributor = strings.TrimSpace(request.GetString(argDistribuidora, ""))

	outcome, err := h.service.GenerateProposal(ctx, id, in)
	if err != nil {
		return h.toolError(ToolGerarProposta, err), nil
	}
	return h.respond(ToolGerarProposta, outcome), nil
}

// HandleBuscarCliente searches the client listing through a session.
func (h *Handlers) HandleBuscarCliente(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, err := request.RequireString(argSessionID)
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	email, err := request.RequireString(argEmail)
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}

	res, err := h.service.SearchClient(ctx, id, email)
	if err != nil {
		return h.toolError(ToolBuscarCliente, err), nil
	}
	return h.respond(ToolBuscarCliente, res), nil
}

// HandleHealth reports liveness.
func (h *Handlers) HandleHealth(_ context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	return h.respond(ToolHealth, h.service.Health()), nil
}

// amountArgument accepts the bill amount as a JSON number or as text. Text is
// validated later so the error message carries the raw value.
func amountArgument(args map[string]any) (string, error) {
	switch v := args[argValorContaBRL].(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case string:
		return v, nil
	case nil:
		return "", fmt.Errorf("%w: required argument %q not found", portal.ErrInvalidInput, argValorContaBRL)
	default:
		return fmt.Sprint(v), nil
	}
}

// toolError turns err into an IsError result. Caller mistakes and
// configuration problems are logged at warn; anything else at error.
func (h *Handlers) toolError(tool string, err error) *mcplib.CallToolResult {
	log := h.log.With(zap.String("tool", tool), zap.Error(err))
	switch {
	case errors.Is(err, browser.ErrInvalidSession),
		errors.Is(err, portal.ErrInvalidInput),
		errors.Is(err, portal.ErrMissingCredentials),
		errors.Is(err, browser.ErrSessionLimit):
		log.Warn("Tool call rejected.")
	case errors.Is(err, context.Canceled):
		log.Info("Tool call canceled.")
	default:
		log.Error("Tool call failed.")
	}
	return mcplib.NewToolResultError(err.Error())
}

// respond encodes payload as the text content of a successful result.
func (h *Handlers) respond(tool string, payload interface{}) *mcplib.CallToolResult {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("Failed to encode tool result", zap.String("tool", tool), zap.Error(err))
		return mcplib.NewToolResultError(fmt.Sprintf("encoding %s result: %v", tool, err))
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{
				Type: "text",
				Text: string(data),
			},
		},
	}
}
