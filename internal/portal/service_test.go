package portal

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/nextron-mcp/internal/browser"
	"github.com/xkilldash9x/nextron-mcp/internal/browser/browsertest"
	"github.com/xkilldash9x/nextron-mcp/internal/config"
)

// newTestService wires a Service to a fake engine whose pages are prepared by setup.
func newTestService(t *testing.T, cfg config.PortalConfig, setup func(*browsertest.Page)) (*Service, *browsertest.Launcher) {
	t.Helper()
	launcher := browsertest.NewLauncher()
	launcher.Engine.PageSetup = setup
	logger := zaptest.NewLogger(t)
	mgr := browser.NewManager(launcher.Launch, config.BrowserConfig{ViewportWidth: 1280, ViewportHeight: 720}, logger)
	svc := NewService(mgr, cfg, logger)
	t.Cleanup(func() { svc.Shutdown(context.Background()) })
	return svc, launcher
}

func TestService_InvalidAmountRejectedBeforeBrowser(t *testing.T) {
	svc, launcher := newTestService(t, testPortalConfig(), func(p *browsertest.Page) {
		scriptLoggedIn(p)
		scriptProposalForm(p)
	})
	ctx := context.Background()
	id, err := svc.NewSession(ctx)
	require.NoError(t, err)

	in := validProposal()
	in.Amount = "cento e cinquenta"

	_, err = svc.GenerateProposal(ctx, id, in)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "Valor da conta inválido: cento e cinquenta")

	_, err = svc.GenerateProposal(ctx, "does-not-exist", in)
	assert.ErrorIs(t, err, ErrInvalidInput, "input is validated before the session lookup")

	pages := launcher.Engine.Pages()
	require.Len(t, pages, 1)
	assert.Empty(t, pages[0].Navigations())
}

func TestService_UnknownSession(t *testing.T) {
	svc, _ := newTestService(t, testPortalConfig(), scriptLoggedIn)
	ctx := context.Background()

	_, err := svc.Login(ctx, "missing", Credentials{})
	assert.ErrorIs(t, err, browser.ErrInvalidSession)

	_, err = svc.GenerateProposal(ctx, "missing", validProposal())
	assert.ErrorIs(t, err, browser.ErrInvalidSession)

	_, err = svc.SearchClient(ctx, "missing", "a@example.com")
	assert.ErrorIs(t, err, browser.ErrInvalidSession)

	assert.False(t, svc.CloseSession("missing"))
}

func TestService_SearchClientRequiresEmail(t *testing.T) {
	svc, _ := newTestService(t, testPortalConfig(), scriptLoggedIn)
	_, err := svc.SearchClient(context.Background(), "any", "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestService_LoginRecordsPrincipal(t *testing.T) {
	svc, _ := newTestService(t, testPortalConfig(), func(p *browsertest.Page) {
		scriptLoginRequired(p, testBase+"hub/dashboard")
	})
	ctx := context.Background()
	id, err := svc.NewSession(ctx)
	require.NoError(t, err)

	res, err := svc.Login(ctx, id, Credentials{Email: "gerente@example.com", Password: "outra"})
	require.NoError(t, err)
	assert.Equal(t, LoginResult{OK: true, Message: MsgLoggedIn, Email: "gerente@example.com"}, res)

	infos := svc.ListSessions()
	require.Len(t, infos, 1)
	assert.Equal(t, id, infos[0].ID)
	assert.Equal(t, "gerente@example.com", infos[0].Principal)
	assert.Equal(t, testBase+"hub/dashboard", infos[0].CurrentURL)
}

func TestService_LoginOnAuthenticatedSessionKeepsPrincipal(t *testing.T) {
	svc, _ := newTestService(t, testPortalConfig(), func(p *browsertest.Page) {
		scriptLoginRequired(p, testBase+"hub/dashboard")
	})
	ctx := context.Background()
	id, err := svc.NewSession(ctx)
	require.NoError(t, err)

	_, err = svc.Login(ctx, id, Credentials{})
	require.NoError(t, err)

	res, err := svc.Login(ctx, id, Credentials{Email: "gerente@example.com", Password: "outra"})
	require.NoError(t, err)
	assert.Equal(t, "vendas@example.com", res.Email)

	infos := svc.ListSessions()
	require.Len(t, infos, 1)
	assert.Equal(t, "vendas@example.com", infos[0].Principal)
}

func TestService_MissingCredentials(t *testing.T) {
	cfg := testPortalConfig()
	cfg.Email, cfg.Password = "", ""
	svc, _ := newTestService(t, cfg, scriptLoggedIn)
	ctx := context.Background()
	id, err := svc.NewSession(ctx)
	require.NoError(t, err)

	_, err = svc.Login(ctx, id, Credentials{})
	assert.ErrorIs(t, err, ErrMissingCredentials)

	_, err = svc.SearchClient(ctx, id, "a@example.com")
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestService_GenerateProposalEndToEnd(t *testing.T) {
	svc, launcher := newTestService(t, testPortalConfig(), func(p *browsertest.Page) {
		scriptLoggedIn(p)
		scriptProposalForm(p)
	})
	ctx := context.Background()
	id, err := svc.NewSession(ctx)
	require.NoError(t, err)

	outcome, err := svc.GenerateProposal(ctx, id, validProposal())
	require.NoError(t, err)
	assert.True(t, outcome.OK)
	assert.Equal(t, MsgProposalCreated, outcome.Message)

	page := launcher.Engine.Pages()[0]
	assert.Equal(t, []string{
		testBase + "hub/sales/onboardings/save",
		testBase + "hub/sales/onboardings/save",
	}, page.Navigations(), "authentication check then the form itself")
}

func TestService_SearchClientEndToEnd(t *testing.T) {
	svc, _ := newTestService(t, testPortalConfig(), func(p *browsertest.Page) {
		scriptLoggedIn(p)
		scriptListing(p, sevenColumnRows(2), false)
	})
	ctx := context.Background()
	id, err := svc.NewSession(ctx)
	require.NoError(t, err)

	res, err := svc.SearchClient(ctx, id, " cliente@example.com ")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, 2, res.Total)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "row-1", *res.Results[0].DataID)
	assert.Equal(t, testBase+"sales/onboardings/row-2", *res.Results[1].Link)
}

func TestService_SameSessionCallsDoNotInterleave(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	svc, launcher := newTestService(t, testPortalConfig(), func(p *browsertest.Page) {
		scriptLoggedIn(p)
		scriptListing(p, sevenColumnRows(2), false)
		p.SetOpDelay(2 * time.Millisecond)
	})
	ctx := context.Background()
	id, err := svc.NewSession(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.SearchClient(ctx, id, "cliente@example.com")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	ops := launcher.Engine.Pages()[0].Ops()
	require.NotEmpty(t, ops)
	require.Zero(t, len(ops)%2)
	half := len(ops) / 2
	assert.Equal(t, ops[:half], ops[half:], "the second call starts only after the first finished")
}

func TestService_RateLimitPacesPortalOperations(t *testing.T) {
	cfg := testPortalConfig()
	cfg.RateLimit = 0.001
	cfg.RateBurst = 1
	svc, launcher := newTestService(t, cfg, scriptLoggedIn)
	ctx := context.Background()
	id, err := svc.NewSession(ctx)
	require.NoError(t, err)

	_, err = svc.Login(ctx, id, Credentials{})
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = svc.Login(short, id, Credentials{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "waiting for rate limiter")

	pages := launcher.Engine.Pages()
	require.Len(t, pages, 1)
	assert.Len(t, pages[0].Navigations(), 1, "the throttled call never reaches the page")
}

func TestService_Health(t *testing.T) {
	svc, _ := newTestService(t, testPortalConfig(), scriptLoggedIn)
	assert.Equal(t, Health{Status: "ok"}, svc.Health())

	_, err := svc.NewSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Health{Status: "ok", Sessions: 1, EngineRunning: true}, svc.Health())
}

func TestSearchResult_JSONShape(t *testing.T) {
	b, err := json.Marshal(SearchResult{OK: true, Results: []ExtractedRecord{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true,"total":0,"resultados":[]}`, string(b))

	b, err = json.Marshal(SearchResult{OK: true, Total: 1, Results: []ExtractedRecord{ParseRow("Eva")}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true,"total":1,"resultados":[{"raw":"Eva","data_id":null,"link":null,"nome":"Eva"}]}`, string(b))

	b, err = json.Marshal(Outcome{OK: false, Message: "Erro"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":false,"mensagem":"Erro"}`, string(b))
}
