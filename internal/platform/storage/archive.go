package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"

	"github.com/GuilhermeDesoler/BACK-TURISMO/internal/platform/auth"
)

const (
	defaultDownloadTTL = 5 * time.Minute
	maxDownloadTTL     = 15 * time.Minute
	pdfContentType     = "application/pdf"
)

var (
	// ErrPermissionDenied is returned when the caller may not download the invoice.
	ErrPermissionDenied = errors.New("storage: permission denied")
	// ErrNotConfigured is returned when no bucket or signer was configured.
	ErrNotConfigured = errors.New("storage: invoice archive not configured")

	errExpiryTooLong = errors.New("storage: expiry exceeds permitted maximum")
)

// ObjectWriter persists a single object. The Cloud Storage implementation is GCSWriter.
type ObjectWriter interface {
	WriteObject(ctx context.Context, bucket, object string, data []byte, attrs ObjectAttrs) error
}

// ObjectAttrs are the metadata written with an archived object.
type ObjectAttrs struct {
	ContentType string
	Metadata    map[string]string
}

// GCSWriter writes objects through the Cloud Storage client.
type GCSWriter struct {
	client *gcs.Client
}

// NewGCSWriter wraps a Cloud Storage client.
func NewGCSWriter(client *gcs.Client) (*GCSWriter, error) {
	if client == nil {
		return nil, errors.New("storage: cloud storage client is required")
	}
	return &GCSWriter{client: client}, nil
}

// WriteObject uploads data, refusing to overwrite an existing object.
func (w *GCSWriter) WriteObject(ctx context.Context, bucket, object string, data []byte, attrs ObjectAttrs) error {
	obj := w.client.Bucket(bucket).Object(object).If(gcs.Conditions{DoesNotExist: true})
	writer := obj.NewWriter(ctx)
	writer.ContentType = attrs.ContentType
	writer.Metadata = attrs.Metadata
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("storage: write %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("storage: finalise %s: %w", object, err)
	}
	return nil
}

// InvoiceArchive keeps issued invoice PDFs in a private bucket and hands out short-lived download URLs.
type InvoiceArchive struct {
	writer ObjectWriter
	signer Signer
	bucket string
	ttl    time.Duration
	now    func() time.Time
}

// ArchiveOption customises an InvoiceArchive.
type ArchiveOption func(*InvoiceArchive)

// WithDownloadTTL sets the signed URL lifetime. Values above 15 minutes are rejected at signing time.
func WithDownloadTTL(ttl time.Duration) ArchiveOption {
	return func(a *InvoiceArchive) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithClock injects the time source.
func WithClock(clock func() time.Time) ArchiveOption {
	return func(a *InvoiceArchive) {
		if clock != nil {
			a.now = clock
		}
	}
}

// NewInvoiceArchive builds the archive. A nil signer leaves archiving available but disables download URLs.
func NewInvoiceArchive(writer ObjectWriter, signer Signer, bucket string, opts ...ArchiveOption) (*InvoiceArchive, error) {
	bucket = strings.TrimSpace(bucket)
	if writer == nil || bucket == "" {
		return nil, ErrNotConfigured
	}
	a := &InvoiceArchive{
		writer: writer,
		signer: signer,
		bucket: bucket,
		ttl:    defaultDownloadTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a, nil
}

// InvoiceFile is a rendered invoice ready to archive.
type InvoiceFile struct {
	OrderID  string
	Number   string
	IssuedAt time.Time
	PDF      []byte
}

// Store writes the PDF and returns its object name.
func (a *InvoiceArchive) Store(ctx context.Context, file InvoiceFile) (string, error) {
	if a == nil {
		return "", ErrNotConfigured
	}
	if len(file.PDF) == 0 {
		return "", errors.New("storage: invoice pdf is empty")
	}
	issuedAt := file.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = a.now()
	}
	object, err := InvoiceObjectPath(file.OrderID, file.Number, issuedAt)
	if err != nil {
		return "", err
	}
	attrs := ObjectAttrs{
		ContentType: pdfContentType,
		Metadata: map[string]string{
			"orderId":       strings.TrimSpace(file.OrderID),
			"invoiceNumber": strings.TrimSpace(file.Number),
		},
	}
	if err := a.writer.WriteObject(ctx, a.bucket, object, file.PDF, attrs); err != nil {
		return "", err
	}
	return object, nil
}

// SignedURL is a time-limited download link.
type SignedURL struct {
	URL       string
	ExpiresAt time.Time
}

// DownloadURL signs a GET URL for object. The identity must own the order or be an operator.
func (a *InvoiceArchive) DownloadURL(ctx context.Context, object string, identity *auth.Identity, ownerID string) (SignedURL, error) {
	if a == nil || a.signer == nil || strings.TrimSpace(a.signer.Email()) == "" {
		return SignedURL{}, ErrNotConfigured
	}
	if err := AuthorizeDownload(identity, ownerID); err != nil {
		return SignedURL{}, err
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return SignedURL{}, errors.New("storage: object name is required")
	}
	if a.ttl > maxDownloadTTL {
		return SignedURL{}, errExpiryTooLong
	}

	expires := a.now().Add(a.ttl)
	fileName := object[strings.LastIndex(object, "/")+1:]
	signed, err := gcs.SignedURL(a.bucket, object, &gcs.SignedURLOptions{
		GoogleAccessID: a.signer.Email(),
		Scheme:         gcs.SigningSchemeV4,
		Method:         "GET",
		Expires:        expires,
		QueryParameters: url.Values{
			"response-content-disposition": {fmt.Sprintf("attachment; filename=%q", fileName)},
			"response-content-type":        {pdfContentType},
		},
		SignBytes: func(payload []byte) ([]byte, error) {
			return a.signer.SignBytes(ctx, payload)
		},
	})
	if err != nil {
		return SignedURL{}, fmt.Errorf("storage: sign download url: %w", err)
	}
	return SignedURL{URL: signed, ExpiresAt: expires}, nil
}

// AuthorizeDownload allows the order owner and operators.
func AuthorizeDownload(identity *auth.Identity, ownerID string) error {
	if identity == nil {
		return ErrPermissionDenied
	}
	if ownerID != "" && identity.UID == ownerID {
		return nil
	}
	if identity.IsOperator() {
		return nil
	}
	return ErrPermissionDenied
}

// InvoiceObjectPath lays invoices out as invoices/YYYY/MM/<orderID>/<number>.pdf.
func InvoiceObjectPath(orderID, number string, issuedAt time.Time) (string, error) {
	orderID, err := validateSegment("orderID", orderID)
	if err != nil {
		return "", err
	}
	number, err = validateSegment("invoice number", number)
	if err != nil {
		return "", err
	}
	issuedAt = issuedAt.UTC()
	return fmt.Sprintf("invoices/%04d/%02d/%s/%s.pdf", issuedAt.Year(), int(issuedAt.Month()), orderID, number), nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") || strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	return value, nil
}
