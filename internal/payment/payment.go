// Package payment renders the UPI deep link and QR code for a payment record.
package payment

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/printrelay/backend/internal/models"
)

// Scheme and host of the deep link understood by UPI apps.
const (
	Scheme = "upi"
	Host   = "pay"
)

var (
	ErrNoPayee       = errors.New("payee id is required")
	ErrInvalidAmount = errors.New("amount must be positive")
)

// BuildURI returns upi://pay?pa=..&pn=..&am=..&cu=INR&tn=.. for the payee.
// pn and tn are omitted when empty.
func BuildURI(payeeID, payeeName string, amount float64, note string) (string, error) {
	payeeID = strings.TrimSpace(payeeID)
	if payeeID == "" {
		return "", ErrNoPayee
	}
	if amount <= 0 {
		return "", fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}

	q := url.Values{}
	q.Set("pa", payeeID)
	if payeeName != "" {
		q.Set("pn", payeeName)
	}
	q.Set("am", strconv.FormatFloat(amount, 'f', 2, 64))
	q.Set("cu", "INR")
	if note != "" {
		q.Set("tn", note)
	}

	u := url.URL{Scheme: Scheme, Host: Host, RawQuery: encode(q)}
	return u.String(), nil
}

// URIFor builds the link for a payment record. Only INR is supported by UPI.
func URIFor(rec models.PaymentRecord, note string) (string, error) {
	if rec.Currency != "" && !strings.EqualFold(rec.Currency, "INR") {
		return "", fmt.Errorf("unsupported currency %q", rec.Currency)
	}
	return BuildURI(rec.PayeeID, rec.PayeeName, rec.Amount, note)
}

// QRCode renders uri as a PNG of size x size pixels.
func QRCode(uri string, size int) ([]byte, error) {
	if uri == "" {
		return nil, errors.New("empty payment uri")
	}
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(uri, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}

// encode keeps UPI's fixed parameter order; url.Values.Encode sorts keys.
func encode(q url.Values) string {
	var b strings.Builder
	for _, k := range []string{"pa", "pn", "am", "cu", "tn"} {
		v := q.Get(k)
		if v == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strings.ReplaceAll(url.QueryEscape(v), "+", "%20"))
	}
	return b.String()
}
