package portal

import "strings"

// DOM hooks on the portal pages. They are tied to the portal's current markup.
const (
	selLoginEmail    = `input[name="email"]`
	selLoginPassword = `input[name="password"]`
	selSubmit        = `button[type="submit"]`

	selContactName = `input[name="contact_name"]`
	selEmail       = `input[name="email"]`
	selTelephone   = `input[name="telephone"]`
	// selDistributorInput is the distributor autocomplete's generated id; it is
	// unstable, which is why a combobox fallback exists.
	selDistributorInput = `#mui-41844491`
	selAmount           = `input[name="average_consumption_estimate_in_brl"]`
	selSnackbar         = `.MuiSnackbar-root`

	selFilterToggle = `button[aria-label="Exibir filtros"]`
	selFilterValue  = `input[placeholder='Filtrar valor']`
	selGridRows     = `.MuiDataGrid-virtualScrollerRenderZone div.MuiDataGrid-row`

	roleButton   = "button"
	roleCombobox = "combobox"

	labelOpenProposal   = "Gerar proposta"
	labelSubmitProposal = "Gerar Proposta"

	filterColumnEmail = "email"
	rowIDAttr         = "data-id"
)

// textSelector matches an element by its visible text.
func textSelector(text string) string {
	return "text=" + text
}

const (
	pathProposalForm = "hub/sales/onboardings/save"
	pathListing      = "sales/onboardings"
)

// Endpoints builds portal URLs from the configured base, which always ends with "/".
type Endpoints struct {
	Base string
}

// NewEndpoints normalizes base to end with a slash.
func NewEndpoints(base string) Endpoints {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return Endpoints{Base: base}
}

// ProposalForm is the new-client form. It doubles as the protected page used to detect a live login.
func (e Endpoints) ProposalForm() string { return e.Base + pathProposalForm }

// Listing is the client grid.
func (e Endpoints) Listing() string { return e.Base + pathListing }

// Record links to one client by its grid row id.
func (e Endpoints) Record(id string) string { return e.Base + pathListing + "/" + id }
