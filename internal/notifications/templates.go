package notifications

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Template identifies a customer message layout.
type Template string

const (
	TemplateOrderConfirmation Template = "order_confirmation"
	TemplateFinalPayment      Template = "final_payment"
	TemplateServiceCompleted  Template = "service_completed"
	TemplateOrderCancelled    Template = "order_cancelled"
	TemplateInvoiceSent       Template = "invoice_sent"
)

// Placeholder keys understood by the templates.
const (
	VarName          = "name"
	VarOrderNumber   = "orderNumber"
	VarScheduledDate = "scheduledDate"
	VarDepositPaid   = "depositPaid"
	VarDocuments     = "documents"
	VarAmount        = "amount"
	VarPaymentLink   = "paymentLink"
	VarInvoiceNumber = "invoiceNumber"
	VarDeliveryNote  = "deliveryNote"
)

// ErrUnknownTemplate is returned when Render is asked for a template that does not exist.
var ErrUnknownTemplate = errors.New("notifications: unknown template")

// DefaultLocale is used when the customer locale is empty or unsupported.
var DefaultLocale = language.BrazilianPortuguese

var supportedLocales = []language.Tag{language.BrazilianPortuguese, language.English}

var matcher = language.NewMatcher(supportedLocales)

var catalog = map[language.Tag]map[Template]string{
	language.BrazilianPortuguese: {
		TemplateOrderConfirmation: `Olá {name}!

Seu agendamento #{orderNumber} foi confirmado!

Datas:
{scheduledDate}
Sinal pago: {depositPaid}

DOCUMENTOS NECESSÁRIOS:
{documents}

Em breve nossa equipe entrará em contato para confirmar os detalhes finais.

Obrigado por escolher nossa empresa!`,
		TemplateFinalPayment: `Olá {name}!

Está na hora de finalizar seu pagamento.

Valor restante: {amount}

Clique no link abaixo para pagar:
{paymentLink}

Qualquer dúvida, estamos à disposição!`,
		TemplateServiceCompleted: `Olá {name}!

Seu serviço #{orderNumber} foi concluído com sucesso!

Esperamos que tenha aproveitado bastante. Avalie nossa experiência e volte sempre!`,
		TemplateOrderCancelled: `Olá {name},

Seu pedido #{orderNumber} foi cancelado.

Caso tenha sido realizado algum pagamento, o reembolso será processado em até 10 dias úteis.

Em caso de dúvidas, entre em contato conosco.`,
		TemplateInvoiceSent: `Olá {name}!

Sua Nota Fiscal referente ao pedido #{orderNumber} foi emitida!

Número da NF-e: {invoiceNumber}
Valor: {amount}

{deliveryNote}

Obrigado pela preferência!`,
	},
	language.English: {
		TemplateOrderConfirmation: `Hi {name}!

Your booking #{orderNumber} is confirmed!

Dates:
{scheduledDate}
Deposit paid: {depositPaid}

REQUIRED DOCUMENTS:
{documents}

Our team will contact you shortly to confirm the final details.

Thank you for choosing us!`,
		TemplateFinalPayment: `Hi {name}!

It is time to complete your payment.

Remaining amount: {amount}

Use the link below to pay:
{paymentLink}

Let us know if you have any questions!`,
		TemplateServiceCompleted: `Hi {name}!

Your service #{orderNumber} has been completed.

We hope you enjoyed it. Rate your experience and come back soon!`,
		TemplateOrderCancelled: `Hi {name},

Your order #{orderNumber} has been cancelled.

Any payment made will be refunded within 10 business days.

Contact us if you have any questions.`,
		TemplateInvoiceSent: `Hi {name}!

The invoice for order #{orderNumber} has been issued.

Invoice number: {invoiceNumber}
Amount: {amount}

{deliveryNote}

Thank you!`,
	},
}

// SetDefaultLocale changes the fallback locale. Only supported locales are accepted; call it once
// during startup.
func SetDefaultLocale(locale string) error {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		return fmt.Errorf("notifications: invalid default locale %q: %w", locale, err)
	}
	for _, supported := range supportedLocales {
		if supported == tag {
			DefaultLocale = tag
			return nil
		}
	}
	return fmt.Errorf("notifications: unsupported default locale %q", locale)
}

// Templates lists every known template in a stable order.
func Templates() []Template {
	out := make([]Template, 0, len(catalog[DefaultLocale]))
	for tmpl := range catalog[DefaultLocale] {
		out = append(out, tmpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MatchLocale resolves a customer locale (BCP 47 or Accept-Language style) to a supported tag.
func MatchLocale(locale string) language.Tag {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return DefaultLocale
	}
	tags, _, err := language.ParseAcceptLanguage(locale)
	if err != nil || len(tags) == 0 {
		return DefaultLocale
	}
	_, idx, confidence := matcher.Match(tags...)
	if confidence == language.No {
		return DefaultLocale
	}
	return supportedLocales[idx]
}

// Render fills the template for locale with vars. Unknown placeholders are left untouched.
func Render(tmpl Template, locale string, vars map[string]string) (string, error) {
	tag := MatchLocale(locale)
	text, ok := catalog[tag][tmpl]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, tmpl)
	}
	if len(vars) == 0 {
		return text, nil
	}
	keys := make([]string, 0, len(vars))
	for key := range vars {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(vars)*2)
	for _, key := range keys {
		pairs = append(pairs, "{"+key+"}", vars[key])
	}
	return strings.NewReplacer(pairs...).Replace(text), nil
}

// FormatAmount renders centavos as a BRL amount using the locale's number separators.
func FormatAmount(centavos int64, locale string) string {
	printer := message.NewPrinter(MatchLocale(locale))
	return printer.Sprintf("R$ %.2f", float64(centavos)/100)
}

// FormatPhone normalises a Brazilian phone number to E.164, adding the +55 country code when absent.
func FormatPhone(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	cleaned := digits.String()
	if cleaned == "" {
		return ""
	}
	if strings.HasPrefix(cleaned, "55") {
		return "+" + cleaned
	}
	return "+55" + cleaned
}
