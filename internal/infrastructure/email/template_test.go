package email

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTemplate = `<!-- subject: 感謝你的奉獻 -->
<html><body>
<p>{{.Greeting}}，平安！</p>
<p>金額：{{.AmountDisplay}}</p>
<p>方式：{{.PaymentMethod}}</p>
<p>日期：{{.GivingDate}}</p>
</body></html>`

func TestParseTemplateExtractsSubject(t *testing.T) {
	tmpl, err := ParseTemplate(sampleTemplate)

	require.NoError(t, err)
	assert.Equal(t, "感謝你的奉獻", tmpl.Subject())
}

func TestParseTemplateWithoutSubjectUsesFallback(t *testing.T) {
	tmpl, err := ParseTemplate(`<p>{{.Greeting}}</p>`)

	require.NoError(t, err)
	assert.Equal(t, fallbackSubject, tmpl.Subject())
}

func TestParseTemplateInvalidSource(t *testing.T) {
	_, err := ParseTemplate(`{{.Broken`)

	assert.Error(t, err)
}

func TestRenderSubstitutesContext(t *testing.T) {
	tmpl, err := ParseTemplate(sampleTemplate)
	require.NoError(t, err)

	body, err := tmpl.Render(TemplateContext{
		Greeting:      "王小明",
		AmountDisplay: "NT$1,000",
		PaymentMethod: "CREDIT CARD",
		GivingDate:    "2024/01/01",
	})

	require.NoError(t, err)
	assert.Contains(t, body, "王小明，平安！")
	assert.Contains(t, body, "NT$1,000")
	assert.Contains(t, body, "CREDIT CARD")
	assert.Contains(t, body, "2024/01/01")
	assert.NotContains(t, body, "subject:")
}

func TestLoadTemplateFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "giving_success.html")
	require.NoError(t, os.WriteFile(path, []byte(sampleTemplate), 0o644))

	tmpl, err := LoadTemplate(path)

	require.NoError(t, err)
	assert.Equal(t, "感謝你的奉獻", tmpl.Subject())
}

func TestLoadTemplateMissingFileFallsBack(t *testing.T) {
	tmpl, err := LoadTemplate(filepath.Join(t.TempDir(), "missing.html"))

	require.Error(t, err)
	require.NotNil(t, tmpl)
	assert.Equal(t, fallbackSubject, tmpl.Subject())

	body, renderErr := tmpl.Render(TemplateContext{})
	require.NoError(t, renderErr)
	assert.NotEmpty(t, body)
}

func TestFormatCurrencyDisplay(t *testing.T) {
	assert.Equal(t, "NT$1,000", FormatCurrencyDisplay(1000, "TWD"))
	assert.Equal(t, "NT$100", FormatCurrencyDisplay(100, "twd"))
	assert.Equal(t, "NT$1,234,567", FormatCurrencyDisplay(1234567, "TWD"))
	assert.Equal(t, "USD 2,500", FormatCurrencyDisplay(2500, "USD"))
}

func TestFormatDisplayDate(t *testing.T) {
	assert.Equal(t, "2024/01/05", FormatDisplayDate("2024-01-05"))
	assert.Equal(t, "2024-01", FormatDisplayDate("2024-01"))
	assert.Equal(t, "", FormatDisplayDate(""))
	assert.Equal(t, "whatever", FormatDisplayDate("whatever"))
}

func TestFormatPaymentMethod(t *testing.T) {
	assert.Equal(t, "CREDIT CARD", FormatPaymentMethod("credit_card"))
	assert.Equal(t, "LINE PAY", FormatPaymentMethod("line_pay"))
	assert.Equal(t, "", FormatPaymentMethod(""))
}

func TestGreetingFor(t *testing.T) {
	assert.Equal(t, "王小明", GreetingFor("王小明"))
	assert.Equal(t, "王小明", GreetingFor("  王小明  "))
	assert.Equal(t, "家人", GreetingFor(""))
	assert.Equal(t, "家人", GreetingFor("   "))
}
