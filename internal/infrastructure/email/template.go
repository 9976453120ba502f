package email

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"regexp"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const fallbackSubject = "感謝你的慷慨參與 — 因著你的奉獻，我們一起贏得城市的 1%"

const fallbackBody = "<p>感謝你在這個 FORWARD 季節中的慷慨參與。</p>"

// subjectPattern extracts the subject line embedded in the template file as
// an HTML comment: <!-- subject: ... -->
var subjectPattern = regexp.MustCompile(`(?i)<!--\s*subject:(.*?)-->`)

// TemplateContext holds the values substituted into the confirmation email.
type TemplateContext struct {
	Greeting      string
	AmountDisplay string
	PaymentMethod string
	GivingDate    string
}

// Template is the parsed confirmation email template. It is loaded once at
// process startup so a broken template file fails fast instead of surfacing
// on the first send.
type Template struct {
	subject string
	tmpl    *template.Template
}

// LoadTemplate reads and parses the template file. When the file is missing
// or unreadable the fallback copy is used so the notifier stays functional.
func LoadTemplate(path string) (*Template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		t, parseErr := template.New("giving_success").Parse(fallbackBody)
		if parseErr != nil {
			return nil, parseErr
		}
		return &Template{subject: fallbackSubject, tmpl: t}, fmt.Errorf("failed to read email template %s: %w", path, err)
	}

	return ParseTemplate(string(raw))
}

// ParseTemplate parses template source with an optional embedded subject.
func ParseTemplate(source string) (*Template, error) {
	subject := fallbackSubject
	if m := subjectPattern.FindStringSubmatch(source); m != nil {
		subject = strings.TrimSpace(m[1])
		source = strings.TrimLeft(strings.Replace(source, m[0], "", 1), "\n\r ")
	}

	t, err := template.New("giving_success").Parse(source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse email template: %w", err)
	}

	return &Template{subject: subject, tmpl: t}, nil
}

// Subject returns the template's subject line.
func (t *Template) Subject() string {
	return t.subject
}

// Render produces the HTML body for the given context.
func (t *Template) Render(ctx TemplateContext) (string, error) {
	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("failed to render email template: %w", err)
	}
	return buf.String(), nil
}

var displayPrinter = message.NewPrinter(language.TraditionalChinese)

// FormatCurrencyDisplay renders an amount for the confirmation email, e.g.
// NT$1,000 for TWD.
func FormatCurrencyDisplay(amount int64, currencyCode string) string {
	grouped := displayPrinter.Sprintf("%d", amount)
	if strings.EqualFold(currencyCode, "TWD") {
		return "NT$" + grouped
	}
	return currencyCode + " " + grouped
}

// FormatDisplayDate converts a YYYY-MM-DD civil date to YYYY/MM/DD.
func FormatDisplayDate(date string) string {
	parts := strings.SplitN(date, "-", 3)
	if len(parts) == 3 && parts[0] != "" && parts[1] != "" && parts[2] != "" {
		return strings.Join(parts, "/")
	}
	return date
}

// FormatPaymentMethod turns a raw payment type like "credit_card" into
// "CREDIT CARD".
func FormatPaymentMethod(method string) string {
	if method == "" {
		return ""
	}
	return strings.ToUpper(strings.ReplaceAll(method, "_", " "))
}

// GreetingFor picks the greeting name: the trimmed receipt name, or the
// generic fallback used for anonymous donors.
func GreetingFor(receiptName string) string {
	if name := strings.TrimSpace(receiptName); name != "" {
		return name
	}
	return "家人"
}
