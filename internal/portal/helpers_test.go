package portal

import (
	"time"

	"github.com/xkilldash9x/nextron-mcp/internal/browser/browsertest"
	"github.com/xkilldash9x/nextron-mcp/internal/config"
)

const testBase = "https://portal.test/"

func testPortalConfig() config.PortalConfig {
	return config.PortalConfig{
		BaseURL:        testBase,
		Email:          "vendas@example.com",
		Password:       "s3cret-pass",
		LoginMarker:    "login",
		ElementTimeout: time.Second,
		LoginTimeout:   time.Second,
		OptionTimeout:  time.Second,
	}
}

// gridRow is one scripted listing row.
type gridRow struct {
	id   string
	text string
}

// scriptLoggedIn makes every navigation land where it was sent, so the
// protected page check takes the fast path.
func scriptLoggedIn(p *browsertest.Page) {
	p.Redirect(func(url string) string { return url })
}

// scriptLoginRequired sends every navigation to the login page until the
// login form is submitted, after which the portal lets requests through.
func scriptLoginRequired(p *browsertest.Page, landing string) {
	loggedIn := false
	p.Redirect(func(url string) string {
		if loggedIn {
			return url
		}
		return testBase + "login"
	})
	p.Present(selLoginEmail, selLoginPassword, selSubmit)
	p.OnClick(selSubmit, func(p *browsertest.Page) {
		loggedIn = true
		p.SetURL(landing)
	})
}

// scriptProposalForm renders the proposal form. Opening the dialog reveals the amount field.
func scriptProposalForm(p *browsertest.Page) {
	p.Present(selContactName, selEmail, selTelephone)
	p.SetElements(browsertest.RoleKey(roleButton, labelOpenProposal), &browsertest.Element{Text: labelOpenProposal})
	p.OnClick(browsertest.RoleKey(roleButton, labelOpenProposal), func(p *browsertest.Page) {
		p.Present(selAmount)
	})
	p.SetElements(selSubmit, &browsertest.Element{Text: "Cancelar"}, &browsertest.Element{Text: labelSubmitProposal})
}

// scriptListing renders the client grid with the given rows. The column
// combobox supports select_option unless clickOnly is set.
func scriptListing(p *browsertest.Page, rows []gridRow, clickOnly bool) {
	p.Present(selFilterToggle, selFilterValue)
	combo := &browsertest.Element{Text: "Colunas"}
	if !clickOnly {
		combo.Options = []string{"nome", filterColumnEmail, "status"}
	}
	p.SetElements(browsertest.RoleKey(roleCombobox, ""), combo)
	p.SetElements(textSelector(filterColumnEmail), &browsertest.Element{Text: filterColumnEmail})

	els := make([]*browsertest.Element, 0, len(rows))
	for _, r := range rows {
		attrs := map[string]string{}
		if r.id != "" {
			attrs[rowIDAttr] = r.id
		}
		els = append(els, &browsertest.Element{Text: r.text, Attrs: attrs})
	}
	p.SetElements(selGridRows, els...)
}

func strPtr(s string) *string { return &s }
