package portal

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/nextron-mcp/internal/browser"
	"github.com/xkilldash9x/nextron-mcp/internal/config"
)

// ExtractedRecord is one client row scraped from the listing grid. Positional
// fields the row did not provide are omitted from JSON.
type ExtractedRecord struct {
	Raw         string  `json:"raw"`
	DataID      *string `json:"data_id"`
	Link        *string `json:"link"`
	Name        string  `json:"nome,omitempty"`
	Email       string  `json:"email,omitempty"`
	Status      string  `json:"status,omitempty"`
	Distributor string  `json:"distribuidora,omitempty"`
	Origin      string  `json:"origem,omitempty"`
	CreatedAt   string  `json:"criado_em,omitempty"`
	UpdatedAt   string  `json:"atualizado_em,omitempty"`
}

// ParseRow splits a row's visible text into columns on newlines and "|" and
// assigns the first seven non-empty columns positionally. Short rows produce
// partial records; extra columns are ignored.
func ParseRow(text string) ExtractedRecord {
	raw := strings.TrimSpace(text)
	rec := ExtractedRecord{Raw: raw}

	var cols []string
	for _, c := range strings.Split(strings.ReplaceAll(raw, "\n", "|"), "|") {
		if c = strings.TrimSpace(c); c != "" {
			cols = append(cols, c)
		}
	}

	fields := []*string{
		&rec.Name, &rec.Email, &rec.Status, &rec.Distributor,
		&rec.Origin, &rec.CreatedAt, &rec.UpdatedAt,
	}
	for i, f := range fields {
		if i >= len(cols) {
			break
		}
		*f = cols[i]
	}
	return rec
}

// ClientListing drives the client grid.
type ClientListing struct {
	cfg    config.PortalConfig
	urls   Endpoints
	logger *zap.Logger
}

// NewClientListing creates a ClientListing for the configured portal.
func NewClientListing(cfg config.PortalConfig, logger *zap.Logger) *ClientListing {
	return &ClientListing{
		cfg:    cfg,
		urls:   NewEndpoints(cfg.BaseURL),
		logger: logger.Named("listing"),
	}
}

// Search filters the grid by email and returns the rendered rows. Only rows the
// grid has rendered are visible; an empty result is not an error.
func (l *ClientListing) Search(ctx context.Context, page browser.Page, email string) ([]ExtractedRecord, error) {
	log := l.logger.With(zap.String("email", email))

	if err := page.Goto(l.urls.Listing()); err != nil {
		return nil, fmt.Errorf("opening client listing: %w", err)
	}
	if err := page.Click(selFilterToggle); err != nil {
		return nil, fmt.Errorf("opening filters: %w", err)
	}

	winner, err := browser.FirstSuccess(ctx, "filter_column",
		browser.Strategy{Name: "select_option", Run: func(context.Context) error {
			return page.GetByRole(roleCombobox, "").SelectOption(filterColumnEmail, l.cfg.OptionTimeout)
		}},
		browser.Strategy{Name: "click_option", Run: func(context.Context) error {
			if err := page.GetByRole(roleCombobox, "").First().Click(l.cfg.OptionTimeout); err != nil {
				return err
			}
			return page.Locator(textSelector(filterColumnEmail)).First().Click(l.cfg.OptionTimeout)
		}},
	)
	if err != nil {
		return nil, fmt.Errorf("choosing filter column: %w", err)
	}
	log.Debug("Filter column selected.", zap.String("strategy", winner))

	if err := page.Fill(selFilterValue, email); err != nil {
		return nil, fmt.Errorf("filling filter value: %w", err)
	}
	if err := settle(ctx, l.cfg.GridSettle); err != nil {
		return nil, err
	}

	rows := page.Locator(selGridRows)
	count, err := rows.Count()
	if err != nil {
		return nil, fmt.Errorf("counting rows: %w", err)
	}
	log.Info("Search returned rows.", zap.Int("rows", count))

	records := make([]ExtractedRecord, 0, count)
	for i := 0; i < count; i++ {
		row := rows.Nth(i)
		id, err := row.GetAttribute(rowIDAttr)
		if err != nil {
			return nil, fmt.Errorf("reading row %d id: %w", i, err)
		}
		text, err := row.InnerText()
		if err != nil {
			return nil, fmt.Errorf("reading row %d text: %w", i, err)
		}

		rec := ParseRow(text)
		if id != "" {
			link := l.urls.Record(id)
			rec.DataID = &id
			rec.Link = &link
		}
		records = append(records, rec)
	}
	return records, nil
}
