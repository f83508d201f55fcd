package invoicing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL    = "https://api.focusnfe.com.br/v2"
	maxPDFSize        = 10 << 20
	maxResponseLength = 1 << 20
)

// FocusNFeConfig configures the FocusNFe client.
type FocusNFeConfig struct {
	BaseURL     string
	Token       string
	CompanyCNPJ string
	// MunicipalRegistration and ServiceCode identify the provider and the LC 116 service item.
	MunicipalRegistration string
	ServiceCode           string
	HTTPClient            *http.Client
	Timeout               time.Duration
}

// FocusNFeClient issues NFS-e through the FocusNFe REST API.
type FocusNFeClient struct {
	baseURL *url.URL
	token   string
	cnpj    string
	im      string
	code    string
	client  *http.Client
	timeout time.Duration
}

var _ Issuer = (*FocusNFeClient)(nil)

// APIError is returned when FocusNFe rejects a request.
type APIError struct {
	StatusCode int
	Code       string `json:"codigo"`
	Message    string `json:"mensagem"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("focusnfe: status %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// NewFocusNFeClient validates cfg and constructs the client.
func NewFocusNFeClient(cfg FocusNFeConfig) (*FocusNFeClient, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("focusnfe: api token is required")
	}
	raw := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if raw == "" {
		raw = defaultBaseURL
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("focusnfe: invalid base url %q", cfg.BaseURL)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FocusNFeClient{
		baseURL: base,
		token:   token,
		cnpj:    digitsOnly(cfg.CompanyCNPJ),
		im:      strings.TrimSpace(cfg.MunicipalRegistration),
		code:    strings.TrimSpace(cfg.ServiceCode),
		client:  client,
		timeout: timeout,
	}, nil
}

func (c *FocusNFeClient) Mock() bool { return false }

type nfseItem struct {
	Number      int    `json:"numero_item"`
	Description string `json:"descricao"`
	Quantity    int    `json:"quantidade"`
	UnitPrice   string `json:"valor_unitario"`
	GrossValue  string `json:"valor_bruto"`
}

type nfsePayload struct {
	Reference         string     `json:"ref"`
	NatureOfOperation string     `json:"natureza_operacao"`
	DocumentType      string     `json:"tipo_documento"`
	Purpose           string     `json:"finalidade_emissao"`
	IssuerCNPJ        string     `json:"cnpj_emitente,omitempty"`
	IssuerIM          string     `json:"inscricao_municipal_emitente,omitempty"`
	ServiceCode       string     `json:"codigo_servico,omitempty"`
	CustomerName      string     `json:"nome_destinatario"`
	CustomerCPF       string     `json:"cpf_destinatario,omitempty"`
	CustomerEmail     string     `json:"email_destinatario,omitempty"`
	Items             []nfseItem `json:"items"`
	Total             string     `json:"valor_total"`
}

type nfseResponse struct {
	ID      string `json:"id"`
	Number  string `json:"numero"`
	Status  string `json:"status"`
	PDFPath string `json:"caminho_pdf_nota_fiscal"`
	XMLPath string `json:"caminho_xml_nota_fiscal"`
}

// Issue posts the invoice to /nfse and maps the authority response.
func (c *FocusNFeClient) Issue(ctx context.Context, req Request) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}
	payload := nfsePayload{
		Reference:         req.Reference,
		NatureOfOperation: natureOfOperation,
		DocumentType:      "1",
		Purpose:           "1",
		IssuerCNPJ:        c.cnpj,
		IssuerIM:          c.im,
		ServiceCode:       c.code,
		CustomerName:      strings.TrimSpace(req.CustomerName),
		CustomerCPF:       digitsOnly(req.CustomerTaxID),
		CustomerEmail:     strings.TrimSpace(req.CustomerEmail),
		Total:             formatDecimal(req.Total),
	}
	for i, item := range req.Items {
		payload.Items = append(payload.Items, nfseItem{
			Number:      i + 1,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   formatDecimal(item.UnitPrice),
			GrossValue:  formatDecimal(item.UnitPrice * int64(item.Quantity)),
		})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("focusnfe: encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.JoinPath("nfse").String(), bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("focusnfe: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("focusnfe: issue: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseLength))
	if err != nil {
		return Result{}, fmt.Errorf("focusnfe: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return Result{}, apiErr
	}
	var decoded nfseResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Result{}, fmt.Errorf("focusnfe: decode response: %w", err)
	}
	return Result{
		ExternalID: decoded.ID,
		Number:     decoded.Number,
		Status:     decoded.Status,
		PDFURL:     c.resolve(decoded.PDFPath),
		XMLURL:     c.resolve(decoded.XMLPath),
	}, nil
}

// DownloadPDF fetches the invoice PDF with the API token.
func (c *FocusNFeClient) DownloadPDF(ctx context.Context, pdfURL string) ([]byte, error) {
	pdfURL = strings.TrimSpace(pdfURL)
	if pdfURL == "" {
		return nil, ErrNoDocument
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(pdfURL), nil)
	if err != nil {
		return nil, fmt.Errorf("focusnfe: build download: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("focusnfe: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFSize+1))
	if err != nil {
		return nil, fmt.Errorf("focusnfe: read pdf: %w", err)
	}
	if len(data) > maxPDFSize {
		return nil, errors.New("focusnfe: pdf exceeds size limit")
	}
	return data, nil
}

// resolve turns the relative document paths FocusNFe returns into absolute URLs on the API host.
func (c *FocusNFeClient) resolve(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	ref, err := url.Parse(path)
	if err != nil {
		return path
	}
	if ref.IsAbs() {
		return path
	}
	host := &url.URL{Scheme: c.baseURL.Scheme, Host: c.baseURL.Host}
	return host.ResolveReference(ref).String()
}
