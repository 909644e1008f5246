package templates

import (
	"strconv"
	"strings"

	"billing-reminder-backend/internal/calendar"
	"billing-reminder-backend/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Placeholder names recognised inside {{...}}.
const (
	VarName        = "nome"
	VarAmount      = "valor"
	VarDueDate     = "vencimento"
	VarLink        = "link"
	VarDaysOverdue = "diasAtraso"
)

// MissingLink stands in for an absent payment link.
const MissingLink = "#"

// Pair holds the two automated templates.
type Pair struct {
	Reminder string `json:"reminder"`
	Overdue  string `json:"overdue"`
}

// For returns the template used for kind; anything that is not an overdue
// notice uses the reminder text.
func (p Pair) For(kind models.MessageKind) string {
	if kind == models.KindOverdue {
		return p.Overdue
	}
	return p.Reminder
}

var ptBR = message.NewPrinter(language.BrazilianPortuguese)

// FormatCurrency renders amount as Brazilian reais, e.g. "R$ 1.234,56".
func FormatCurrency(amount decimal.Decimal) string {
	f, _ := amount.Round(2).Float64()
	return "R$ " + ptBR.Sprintf("%v", number.Decimal(f, number.Scale(2)))
}

// Variables binds the placeholder vocabulary to the invoice. daysOverdue is
// only supplied for overdue notices.
func Variables(inv models.Invoice, daysOverdue *int) map[string]string {
	link := strings.TrimSpace(inv.PaymentLink)
	if link == "" {
		link = MissingLink
	}
	days := "0"
	if daysOverdue != nil {
		days = strconv.Itoa(*daysOverdue)
	}
	return map[string]string{
		VarName:        inv.CustomerName,
		VarAmount:      FormatCurrency(inv.Amount),
		VarDueDate:     inv.DueDate.Format(calendar.DisplayLayout),
		VarLink:        link,
		VarDaysOverdue: days,
	}
}

// Render substitutes every {{key}} for each supplied key. Placeholders with
// no matching variable are left as written.
func Render(template string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(template, "{{") {
		return template
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// Subject is the e-mail subject line for a notice.
func Subject(kind models.MessageKind, customerName string) string {
	if kind == models.KindOverdue {
		return "Cobrança - Pagamento em Atraso - " + customerName
	}
	return "Lembrete de Pagamento - " + customerName
}
