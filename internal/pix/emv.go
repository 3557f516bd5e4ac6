// Package pix builds and inspects EMV/BR Code payloads for PIX
// merchant-presented QR codes.
//
// A payload is a flat sequence of TLV fields ("TTLLVVV..."), two of which
// (merchant account information and additional data) nest their own TLV
// sequences. The final field carries a CRC-16/CCITT-FALSE over everything
// before it, including its own "6304" header.
package pix

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	idPayloadFormat        = "00"
	idPointOfInitiation    = "01"
	idMerchantAccountInfo  = "26"
	idMerchantCategoryCode = "52"
	idTransactionCurrency  = "53"
	idTransactionAmount    = "54"
	idCountryCode          = "58"
	idMerchantName         = "59"
	idMerchantCity         = "60"
	idAdditionalData       = "62"
	idCRC                  = "63"

	subGUI       = "00"
	subPixKey    = "01"
	subReference = "05"

	// GUI registered for PIX inside the merchant account info template.
	pixGUI = "br.gov.bcb.pix"

	currencyBRL = "986"
	countryBR   = "BR"

	maxMerchantName = 25
	maxMerchantCity = 15
	maxReference    = 25

	// A 2-digit decimal length prefix caps every value at 99 characters.
	// The GUI sub-field occupies 18 of the account template's budget.
	maxValueLen = 99
	maxKeyLen   = maxValueLen - len(pixGUI) - 8

	// MinPayloadLen and MaxPayloadLen bound a structurally sane payload.
	MinPayloadLen = 50
	MaxPayloadLen = 512
)

// Options are the inputs for one payload.
type Options struct {
	// Key is the receiving PIX key (EVP, CPF/CNPJ, phone or email).
	Key string

	MerchantName string
	MerchantCity string

	// Amount in BRL. A zero amount produces a static code with the
	// amount field omitted; the payer types the value.
	Amount decimal.Decimal

	// Reference becomes the txid in the additional data template.
	// Truncated to 25 characters.
	Reference string
}

// Encode builds the payload. It is pure: identical options produce an
// identical string.
func Encode(opts Options) (string, error) {
	if opts.Key == "" {
		return "", fmt.Errorf("pix key is required")
	}
	if len(opts.Key) > maxKeyLen {
		return "", fmt.Errorf("pix key exceeds %d characters", maxKeyLen)
	}
	if opts.MerchantName == "" || opts.MerchantCity == "" {
		return "", fmt.Errorf("merchant name and city are required")
	}
	if opts.Amount.IsNegative() {
		return "", fmt.Errorf("amount cannot be negative")
	}

	initiation := "12"
	if opts.Amount.IsZero() {
		initiation = "11"
	}

	reference := truncate(opts.Reference, maxReference)
	if reference == "" {
		reference = "***"
	}

	var b strings.Builder
	b.WriteString(tlv(idPayloadFormat, "01"))
	b.WriteString(tlv(idPointOfInitiation, initiation))
	b.WriteString(tlv(idMerchantAccountInfo, tlv(subGUI, pixGUI)+tlv(subPixKey, opts.Key)))
	b.WriteString(tlv(idMerchantCategoryCode, "0000"))
	b.WriteString(tlv(idTransactionCurrency, currencyBRL))
	if !opts.Amount.IsZero() {
		b.WriteString(tlv(idTransactionAmount, opts.Amount.StringFixed(2)))
	}
	b.WriteString(tlv(idCountryCode, countryBR))
	b.WriteString(tlv(idMerchantName, truncate(opts.MerchantName, maxMerchantName)))
	b.WriteString(tlv(idMerchantCity, truncate(opts.MerchantCity, maxMerchantCity)))
	b.WriteString(tlv(idAdditionalData, tlv(subReference, reference)))

	payload := b.String() + idCRC + "04"
	payload += fmt.Sprintf("%04X", CRC16(payload))

	if len(payload) < MinPayloadLen || len(payload) > MaxPayloadLen {
		return "", fmt.Errorf("payload length %d outside [%d, %d]",
			len(payload), MinPayloadLen, MaxPayloadLen)
	}
	return payload, nil
}

// CRC16 computes CRC-16/CCITT-FALSE: polynomial 0x1021, initial value
// 0xFFFF, no final XOR.
func CRC16(data string) uint16 {
	crc := uint16(0xFFFF)
	for i := 0; i < len(data); i++ {
		crc ^= uint16(data[i]) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// Field is one decoded TLV field. Template fields 26 and 62 carry their
// nested fields in Sub.
type Field struct {
	ID    string
	Value string
	Sub   []Field
}

// Parse decodes a payload back into its ordered field list.
func Parse(payload string) ([]Field, error) {
	fields, err := parseTLV(payload)
	if err != nil {
		return nil, err
	}
	for i, f := range fields {
		if f.ID != idMerchantAccountInfo && f.ID != idAdditionalData {
			continue
		}
		sub, err := parseTLV(f.Value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.ID, err)
		}
		fields[i].Sub = sub
	}
	return fields, nil
}

func parseTLV(s string) ([]Field, error) {
	var out []Field
	for i := 0; i < len(s); {
		if i+4 > len(s) {
			return nil, fmt.Errorf("truncated field header at offset %d", i)
		}
		id := s[i : i+2]
		length, err := strconv.Atoi(s[i+2 : i+4])
		if err != nil {
			return nil, fmt.Errorf("invalid length for field %s", id)
		}
		if i+4+length > len(s) {
			return nil, fmt.Errorf("field %s overruns payload", id)
		}
		out = append(out, Field{ID: id, Value: s[i+4 : i+4+length]})
		i += 4 + length
	}
	return out, nil
}

// Get returns the first field with the given id.
func Get(fields []Field, id string) (Field, bool) {
	for _, f := range fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

// Validate checks the structural contract of a payload: length bounds,
// the fixed prefix, the PIX GUI marker, the required fields and a correct
// CRC tail.
func Validate(payload string) error {
	if len(payload) < MinPayloadLen || len(payload) > MaxPayloadLen {
		return fmt.Errorf("payload length %d outside [%d, %d]",
			len(payload), MinPayloadLen, MaxPayloadLen)
	}
	if !strings.HasPrefix(payload, "000201") {
		return fmt.Errorf("payload does not start with the format indicator")
	}
	if !strings.Contains(strings.ToLower(payload), pixGUI) {
		return fmt.Errorf("payload does not carry the PIX GUI")
	}
	if payload[len(payload)-8:len(payload)-4] != idCRC+"04" {
		return fmt.Errorf("payload does not end with a CRC field")
	}
	want := fmt.Sprintf("%04X", CRC16(payload[:len(payload)-4]))
	if got := payload[len(payload)-4:]; got != want {
		return fmt.Errorf("crc mismatch: got %s, want %s", got, want)
	}

	fields, err := Parse(payload)
	if err != nil {
		return err
	}
	required := []string{
		idPayloadFormat, idPointOfInitiation, idMerchantAccountInfo,
		idMerchantCategoryCode, idTransactionCurrency, idCountryCode,
		idMerchantName, idMerchantCity,
	}
	for _, id := range required {
		if _, ok := Get(fields, id); !ok {
			return fmt.Errorf("missing required field %s", id)
		}
	}
	return nil
}

func tlv(id, value string) string {
	return fmt.Sprintf("%s%02d%s", id, len(value), value)
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
