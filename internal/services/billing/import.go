package billing

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"billing-reminder-backend/internal/calendar"
	"billing-reminder-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrEmptyFile      = errors.New("the spreadsheet is empty")
	ErrMissingColumns = errors.New("required columns not found")
	ErrNoValidRows    = errors.New("no valid invoice found in the spreadsheet")
)

type column int

const (
	colName column = iota
	colCode
	colAmount
	colDueDate
	colWhatsApp
	colEmail
	colLink
	colOrder
	numColumns
)

var columnKeywords = [numColumns][]string{
	colName:     {"nome", "cliente", "customer"},
	colCode:     {"código", "codigo", "code", "cod"},
	colAmount:   {"valor", "amount", "price"},
	colDueDate:  {"vencimento", "due", "data"},
	colWhatsApp: {"whatsapp", "telefone", "phone"},
	colEmail:    {"e-mail", "email"},
	colLink:     {"link", "pagamento", "payment"},
	colOrder:    {"pedido", "nf", "nota", "order"},
}

// Columns are claimed in this order so that a header like "Código do
// cliente" lands on the code and not on the name.
var resolveOrder = []column{colCode, colOrder, colLink, colWhatsApp, colEmail, colDueDate, colAmount, colName}

var (
	excelSerial = regexp.MustCompile(`^\d+$`)
	dayFirst    = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	yearFirst   = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	nonDigit    = regexp.MustCompile(`\D`)
	nonAmount   = regexp.MustCompile(`[^\d.,]`)

	utf8BOM = []byte("\xef\xbb\xbf")
)

type SkippedRow struct {
	Row          int             `json:"row"`
	CustomerName string          `json:"customer_name"`
	OrderNumber  string          `json:"order_number"`
	Amount       decimal.Decimal `json:"amount"`
}

type InvalidRow struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

type ImportResult struct {
	File       string           `json:"file"`
	Rows       int              `json:"rows"`
	Imported   []models.Invoice `json:"imported"`
	Skipped    []SkippedRow     `json:"skipped"`
	Invalid    []InvalidRow     `json:"invalid"`
	MarkedPaid []uuid.UUID      `json:"marked_paid"`
}

// ImportInvoices loads invoices from a CSV export. Rows whose order number
// matches an unpaid invoice are skipped. When at least one invoice was
// imported, unpaid invoices whose order number no longer appears in the file
// are considered settled and marked paid.
func (s *BillingService) ImportInvoices(ctx context.Context, file io.Reader, filename string) (*ImportResult, error) {
	reader, err := newCSVReader(file)
	if err != nil {
		return nil, err
	}
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read CSV header: %w", err)
	}
	cols := resolveColumns(header)
	var missing []string
	for _, c := range []column{colName, colAmount, colDueDate} {
		if cols[c] < 0 {
			missing = append(missing, columnKeywords[c][0])
		}
	}
	if cols[colWhatsApp] < 0 && cols[colEmail] < 0 {
		missing = append(missing, columnKeywords[colWhatsApp][0])
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	existing, err := s.invoiceRepo.ListUnpaidWithOrder()
	if err != nil {
		return nil, err
	}
	openOrders := make(map[string]bool, len(existing))
	for _, inv := range existing {
		openOrders[inv.OrderNumber] = true
	}

	res := &ImportResult{
		File:       filename,
		Imported:   []models.Invoice{},
		Skipped:    []SkippedRow{},
		Invalid:    []InvalidRow{},
		MarkedPaid: []uuid.UUID{},
	}
	present := map[string]bool{}
	rowNum := 1

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		rowNum++
		if err != nil {
			res.Invalid = append(res.Invalid, InvalidRow{Row: rowNum, Reason: err.Error()})
			continue
		}
		if strings.TrimSpace(strings.Join(record, "")) == "" {
			continue
		}
		res.Rows++

		get := func(c column) string {
			i := cols[c]
			if i < 0 || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		order := get(colOrder)
		if order != "" {
			present[order] = true
		}

		inv, reason := s.rowInvoice(get)
		if reason != "" {
			res.Invalid = append(res.Invalid, InvalidRow{Row: rowNum, Reason: reason})
			continue
		}

		if order != "" && openOrders[order] {
			res.Skipped = append(res.Skipped, SkippedRow{
				Row:          rowNum,
				CustomerName: inv.CustomerName,
				OrderNumber:  order,
				Amount:       inv.Amount,
			})
			continue
		}

		if err := s.invoiceRepo.Create(inv); err != nil {
			return nil, fmt.Errorf("row %d: %w", rowNum, err)
		}
		if order != "" {
			openOrders[order] = true
		}
		res.Imported = append(res.Imported, *inv)
	}

	if res.Rows == 0 {
		return nil, ErrEmptyFile
	}
	if len(res.Imported) == 0 && len(res.Skipped) == 0 {
		return res, ErrNoValidRows
	}

	if len(res.Imported) > 0 {
		for _, inv := range existing {
			if present[inv.OrderNumber] {
				continue
			}
			if _, changed, err := s.invoiceRepo.MarkPaid(inv.ID, s.now(), "import:"+filename, models.AuditReasonImport); err != nil {
				s.logger.Error().Err(err).Str("invoice_id", inv.ID.String()).Msg("failed to settle invoice missing from import")
			} else if changed {
				res.MarkedPaid = append(res.MarkedPaid, inv.ID)
			}
		}
	}

	s.logger.Info().
		Str("file", filename).
		Int("rows", res.Rows).
		Int("imported", len(res.Imported)).
		Int("skipped", len(res.Skipped)).
		Int("invalid", len(res.Invalid)).
		Int("marked_paid", len(res.MarkedPaid)).
		Msg("invoice import finished")
	return res, nil
}

// rowInvoice builds the invoice of one CSV row, or explains why it cannot.
func (s *BillingService) rowInvoice(get func(column) string) (*models.Invoice, string) {
	name := get(colName)
	amountStr := get(colAmount)
	dueStr := get(colDueDate)
	phoneStr := get(colWhatsApp)
	email := get(colEmail)

	if name == "" || amountStr == "" || dueStr == "" || (phoneStr == "" && email == "") {
		return nil, "incomplete row"
	}
	amount, err := parseAmount(amountStr)
	if err != nil {
		return nil, fmt.Sprintf("invalid amount %q", amountStr)
	}
	due, err := parseDueDate(dueStr)
	if err != nil {
		return nil, fmt.Sprintf("invalid due date %q", dueStr)
	}

	inv := &models.Invoice{
		ID:           uuid.New(),
		CustomerName: name,
		CustomerCode: get(colCode),
		Amount:       amount,
		DueDate:      due,
		PaymentLink:  get(colLink),
		OrderNumber:  get(colOrder),
		Email:        email,
		CreatedAt:    s.now(),
	}
	if phoneStr != "" {
		number, ok := normalizePhone(phoneStr)
		if ok {
			inv.WhatsAppNumber = number
		} else if email == "" {
			return nil, fmt.Sprintf("invalid whatsapp number %q", phoneStr)
		}
	}
	inv.ContactChannel = models.ChannelWhatsApp
	if inv.WhatsAppNumber == "" {
		inv.ContactChannel = models.ChannelEmail
	}
	return inv, ""
}

func resolveColumns(header []string) [numColumns]int {
	var cols [numColumns]int
	for i := range cols {
		cols[i] = -1
	}
	claimed := make([]bool, len(header))
	for _, c := range resolveOrder {
	keywords:
		for _, k := range columnKeywords[c] {
			for i, h := range header {
				if !claimed[i] && strings.Contains(strings.ToLower(strings.TrimSpace(h)), k) {
					cols[c] = i
					claimed[i] = true
					break keywords
				}
			}
		}
	}
	return cols
}

// newCSVReader picks the delimiter from the header line; spreadsheet
// exports in pt-BR locales use ';'.
func newCSVReader(file io.Reader) (*csv.Reader, error) {
	br := bufio.NewReader(file)
	sample, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, err
	}
	hasBOM := bytes.HasPrefix(sample, utf8BOM)
	sample = bytes.TrimPrefix(sample, utf8BOM)
	if len(bytes.TrimSpace(sample)) == 0 {
		return nil, ErrEmptyFile
	}

	first := sample
	if i := bytes.IndexByte(sample, '\n'); i >= 0 {
		first = sample[:i]
	}
	comma := ','
	best := bytes.Count(first, []byte{','})
	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(first, []byte(string(d))); n > best {
			comma, best = d, n
		}
	}

	if hasBOM {
		_, _ = br.Discard(len(utf8BOM))
	}
	reader := csv.NewReader(br)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return reader, nil
}

// parseAmount accepts "150", "150.5", "1.234,56" and "R$ 1.234,56".
func parseAmount(raw string) (decimal.Decimal, error) {
	clean := nonAmount.ReplaceAllString(raw, "")
	lastComma := strings.LastIndex(clean, ",")
	lastDot := strings.LastIndex(clean, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			clean = strings.ReplaceAll(clean, ".", "")
			clean = strings.Replace(clean, ",", ".", 1)
		} else {
			clean = strings.ReplaceAll(clean, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(clean, ",") > 1 {
			return decimal.Decimal{}, fmt.Errorf("ambiguous amount %q", raw)
		}
		clean = strings.Replace(clean, ",", ".", 1)
	case strings.Count(clean, ".") > 1:
		clean = strings.ReplaceAll(clean, ".", "")
	}
	amount, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !amount.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("amount must be positive")
	}
	return amount.Round(2), nil
}

// excelEpoch is day zero of spreadsheet serial dates as counted from 1970.
const excelEpoch = 25569

// parseDueDate accepts a spreadsheet serial day, DD/MM/YYYY or YYYY-MM-DD.
func parseDueDate(raw string) (calendar.Date, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case excelSerial.MatchString(raw):
		n, err := strconv.Atoi(raw)
		if err != nil {
			return calendar.Date{}, err
		}
		return calendar.MustNew(1970, time.January, 1).AddDays(n - excelEpoch), nil
	case dayFirst.MatchString(raw):
		m := dayFirst.FindStringSubmatch(raw)
		return dateFromParts(m[3], m[2], m[1])
	case yearFirst.MatchString(raw):
		m := yearFirst.FindStringSubmatch(raw)
		return dateFromParts(m[1], m[2], m[3])
	}
	return calendar.Parse(raw)
}

func dateFromParts(y, m, d string) (calendar.Date, error) {
	year, _ := strconv.Atoi(y)
	month, _ := strconv.Atoi(m)
	day, _ := strconv.Atoi(d)
	return calendar.New(year, time.Month(month), day)
}

// normalizePhone keeps digits and prefixes the Brazilian country code.
func normalizePhone(raw string) (string, bool) {
	digits := nonDigit.ReplaceAllString(raw, "")
	if digits == "" {
		return "", false
	}
	if !strings.HasPrefix(digits, "55") {
		digits = "55" + digits
	}
	return digits, len(digits) >= 10
}
