package portal

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/nextron-mcp/internal/browser"
	"github.com/xkilldash9x/nextron-mcp/internal/config"
)

// Outcome messages reported to callers.
const (
	MsgProposalCreated  = "Proposta criada com sucesso"
	MsgUnexpectedURL    = "URL inesperada após gerar proposta"
	msgInvalidAmountFmt = "Valor da conta inválido: %s"
)

// decimalText is digits in groups joined by single "," or "." separators.
var decimalText = regexp.MustCompile(`^[0-9]+(?:[.,][0-9]+)*$`)

// ProposalInput is one proposal request.
type ProposalInput struct {
	FullName string
	Email    string
	Phone    string
	// Amount is the average monthly electricity bill in BRL, as supplied by the caller.
	Amount string
	// Distributor is optional and filled on a best-effort basis.
	Distributor string
}

// Validate checks the input without touching the browser.
func (in ProposalInput) Validate() error {
	switch {
	case strings.TrimSpace(in.FullName) == "":
		return fmt.Errorf("%w: nome_completo is required", ErrInvalidInput)
	case strings.TrimSpace(in.Email) == "":
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	case strings.TrimSpace(in.Phone) == "":
		return fmt.Errorf("%w: telefone is required", ErrInvalidInput)
	}
	_, err := ParseAmount(in.Amount)
	return err
}

// ParseAmount parses a non-negative BRL amount written as plain decimal text;
// exponents, hex, underscores and signs are rejected. The right-most of "," and "."
// is the decimal separator, so "1234.56", "1234,56", "1.234,56" and
// "1,234.56" are all accepted.
func ParseAmount(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSpace(strings.TrimPrefix(s, "R$"))
	if !decimalText.MatchString(s) {
		return 0, fmt.Errorf("%w: "+msgInvalidAmountFmt, ErrInvalidInput, raw)
	}

	lastComma, lastDot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	switch {
	case lastComma > lastDot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case lastComma >= 0:
		s = strings.ReplaceAll(s, ",", "")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, fmt.Errorf("%w: "+msgInvalidAmountFmt, ErrInvalidInput, raw)
	}
	return v, nil
}

// Outcome classifies a submitted proposal. A rejected proposal is a normal
// outcome with OK false, not an error.
type Outcome struct {
	OK      bool   `json:"ok"`
	Message string `json:"mensagem"`
	URL     string `json:"url,omitempty"`
}

// ProposalForm drives the new-client proposal form.
type ProposalForm struct {
	cfg    config.PortalConfig
	urls   Endpoints
	logger *zap.Logger
}

// NewProposalForm creates a ProposalForm for the configured portal.
func NewProposalForm(cfg config.PortalConfig, logger *zap.Logger) *ProposalForm {
	return &ProposalForm{
		cfg:    cfg,
		urls:   NewEndpoints(cfg.BaseURL),
		logger: logger.Named("proposal"),
	}
}

// Submit fills and submits the proposal form on an authenticated page. It does
// not retry; errors mean the form could not be driven to submission.
func (f *ProposalForm) Submit(ctx context.Context, page browser.Page, in ProposalInput) (Outcome, error) {
	amount, err := ParseAmount(in.Amount)
	if err != nil {
		return Outcome{}, err
	}
	log := f.logger.With(zap.String("contact_email", in.Email))

	if err := page.Goto(f.urls.ProposalForm()); err != nil {
		return Outcome{}, fmt.Errorf("opening proposal form: %w", err)
	}
	log.Debug("Proposal form opened.", zap.String("url", page.URL()))

	fields := []struct{ selector, value string }{
		{selContactName, in.FullName},
		{selEmail, in.Email},
		{selTelephone, in.Phone},
	}
	for _, field := range fields {
		if err := page.Fill(field.selector, field.value); err != nil {
			return Outcome{}, fmt.Errorf("filling %s: %w", field.selector, err)
		}
	}

	if in.Distributor != "" {
		f.fillDistributor(ctx, page, in.Distributor, log)
	}

	if err := page.GetByRole(roleButton, labelOpenProposal).Click(0); err != nil {
		return Outcome{}, fmt.Errorf("opening proposal dialog: %w", err)
	}
	if err := page.WaitForSelector(selAmount, f.cfg.ElementTimeout); err != nil {
		return Outcome{}, fmt.Errorf("waiting for amount field: %w", err)
	}
	if err := page.Fill(selAmount, strconv.FormatFloat(amount, 'f', 2, 64)); err != nil {
		return Outcome{}, fmt.Errorf("filling amount: %w", err)
	}

	submit, err := f.submitControl(page)
	if err != nil {
		return Outcome{}, err
	}
	if err := submit.Click(0); err != nil {
		return Outcome{}, fmt.Errorf("submitting proposal: %w", err)
	}
	log.Info("Proposal submitted; waiting for result.", zap.Duration("settle", f.cfg.SubmitSettle))

	if err := settle(ctx, f.cfg.SubmitSettle); err != nil {
		return Outcome{}, err
	}
	return f.classify(page, log)
}

// fillDistributor tries each way of setting the distributor. Failure is logged
// and does not affect the proposal.
func (f *ProposalForm) fillDistributor(ctx context.Context, page browser.Page, distributor string, log *zap.Logger) {
	winner, err := browser.FirstSuccess(ctx, "distributor",
		browser.Strategy{Name: "direct_input", Run: func(context.Context) error {
			return page.Locator(selDistributorInput).Fill(distributor, f.cfg.OptionTimeout)
		}},
		browser.Strategy{Name: "combobox_option", Run: func(context.Context) error {
			combo := page.GetByRole(roleCombobox, "").Nth(0)
			if err := combo.Click(f.cfg.OptionTimeout); err != nil {
				return err
			}
			if err := combo.Fill(distributor, f.cfg.OptionTimeout); err != nil {
				return err
			}
			return page.Locator(textSelector(distributor)).First().Click(f.cfg.OptionTimeout)
		}},
	)
	if err != nil {
		log.Warn("Could not fill distributor; continuing without it.",
			zap.String("distributor", distributor), zap.Error(err))
		return
	}
	log.Debug("Distributor filled.", zap.String("strategy", winner))
}

// submitControl prefers the form's submit button labelled for proposals and
// falls back to any button with that label.
func (f *ProposalForm) submitControl(page browser.Page) (browser.Locator, error) {
	buttons := page.Locator(selSubmit).Filter(labelSubmitProposal)
	n, err := buttons.Count()
	if err != nil {
		return nil, fmt.Errorf("locating submit button: %w", err)
	}
	if n == 0 {
		buttons = page.GetByRole(roleButton, labelSubmitProposal)
	}
	return buttons.First(), nil
}

func (f *ProposalForm) classify(page browser.Page, log *zap.Logger) (Outcome, error) {
	snackbar := page.Locator(selSnackbar)
	n, err := snackbar.Count()
	if err != nil {
		return Outcome{}, fmt.Errorf("checking for error notice: %w", err)
	}
	if n > 0 {
		text, err := snackbar.First().InnerText()
		if err != nil {
			return Outcome{}, fmt.Errorf("reading error notice: %w", err)
		}
		text = strings.TrimSpace(text)
		log.Warn("Portal rejected the proposal.", zap.String("notice", text))
		return Outcome{OK: false, Message: text}, nil
	}

	url := page.URL()
	if strings.Contains(url, pathProposalForm) {
		log.Info("Proposal created.")
		return Outcome{OK: true, Message: MsgProposalCreated, URL: url}, nil
	}
	log.Warn("Unexpected URL after submitting proposal.", zap.String("url", url))
	return Outcome{OK: false, Message: MsgUnexpectedURL, URL: url}, nil
}

// settle waits d for the UI to catch up, returning early if ctx is done.
func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
