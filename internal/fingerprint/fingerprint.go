// Package fingerprint derives the checkout key used to detect retried or
// duplicated checkout submissions.
//
// The key is a SHA-256 over a canonical JSON encoding of the checkout. Every
// value that goes into the encoding is a struct with a fixed field order, so
// the bytes never depend on map iteration order.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/fjod/tavros-checkout/internal/domain"
)

const nullMarker = "null"

// canonicalString encodes like a JSON string, except that every byte outside
// valid UTF-8 is written as a lone surrogate escape \udcXX. Valid UTF-8 never
// encodes to a surrogate, so distinct byte strings keep distinct encodings
// instead of all collapsing to U+FFFD.
type canonicalString string

func (s canonicalString) MarshalJSON() ([]byte, error) {
	if utf8.ValidString(string(s)) {
		return json.Marshal(string(s))
	}
	var buf bytes.Buffer
	buf.WriteByte('"')
	rest := string(s)
	for len(rest) > 0 {
		r, size := utf8.DecodeRuneInString(rest)
		if r == utf8.RuneError && size == 1 {
			fmt.Fprintf(&buf, `\udc%02x`, rest[0])
		} else {
			quoted, err := json.Marshal(rest[:size])
			if err != nil {
				return nil, err
			}
			buf.Write(quoted[1 : len(quoted)-1])
		}
		rest = rest[size:]
	}
	buf.WriteByte('"')
	return buf.Bytes(), nil
}

type canonicalLine struct {
	ProductID *canonicalString `json:"productId"`
	Slug      *canonicalString `json:"slug"`
	Price     float64          `json:"price"`
	Qty       float64          `json:"qty"`
	Size      *canonicalString `json:"size"`
	Color     *canonicalString `json:"color"`
}

type canonicalAddress struct {
	Street     canonicalString `json:"street"`
	City       canonicalString `json:"city"`
	PostalCode canonicalString `json:"postalCode"`
	Country    canonicalString `json:"country"`
}

type canonicalCustomer struct {
	FirstName canonicalString   `json:"firstName"`
	LastName  canonicalString   `json:"lastName"`
	Phone     canonicalString   `json:"phone"`
	Address   *canonicalAddress `json:"address"`
}

type canonicalCheckout struct {
	Email          canonicalString    `json:"email"`
	UserID         *canonicalString   `json:"userId"`
	ShippingMethod canonicalString    `json:"shippingMethod"`
	ShippingCost   float64            `json:"shippingCost"`
	Currency       canonicalString    `json:"currency"`
	Customer       *canonicalCustomer `json:"customer"`
	Items          []canonicalLine    `json:"items"`
}

// ComputeCheckoutKey returns the hex SHA-256 fingerprint of a checkout attempt.
// Line order, surrounding whitespace and the letter case of email and currency
// do not affect the result. It never fails: malformed numbers count as 0.
func ComputeCheckoutKey(in domain.CheckoutFingerprintInput) string {
	payload := canonicalCheckout{
		Email:          lowered(in.Email),
		UserID:         trimmedOrNil(in.UserID),
		ShippingMethod: trimmed(in.ShippingMethod),
		ShippingCost:   ToNumber(in.ShippingCost),
		Currency:       lowered(in.Currency),
		Customer:       normalizeCustomer(in.Customer),
		Items:          normalizeLines(in.Items),
	}

	// Only strings, float64s that are always finite, and pointers to those.
	// Marshal cannot fail on this shape; canonicalString always yields a
	// valid JSON string.
	encoded, _ := json.Marshal(payload)

	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

func normalizeLines(lines []domain.CheckoutLine) []canonicalLine {
	out := make([]canonicalLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, canonicalLine{
			ProductID: trimmedOrNil(l.ProductID),
			Slug:      trimmedOrNil(l.Slug),
			Price:     ToNumber(l.Price),
			Qty:       ToNumber(l.Qty),
			Size:      trimmedOrNil(l.Size),
			Color:     trimmedOrNil(l.Color),
		})
	}

	type keyed struct {
		sortKey string
		full    string
		line    canonicalLine
	}
	ks := make([]keyed, len(out))
	for i, l := range out {
		full, _ := json.Marshal(l)
		ks[i] = keyed{sortKey: lineSortKey(l), full: string(full), line: l}
	}
	sort.SliceStable(ks, func(i, j int) bool {
		if ks[i].sortKey != ks[j].sortKey {
			return ks[i].sortKey < ks[j].sortKey
		}
		return ks[i].full < ks[j].full
	})

	for i := range ks {
		out[i] = ks[i].line
	}
	return out
}

// lineSortKey is productId-slug-size-color-price. Go string comparison is
// bytewise, which matches code-point order for valid UTF-8.
func lineSortKey(l canonicalLine) string {
	return strings.Join([]string{
		orNull(l.ProductID),
		orNull(l.Slug),
		orNull(l.Size),
		orNull(l.Color),
		strconv.FormatFloat(l.Price, 'f', -1, 64),
	}, "-")
}

func normalizeCustomer(c *domain.Customer) *canonicalCustomer {
	if c == nil {
		return nil
	}
	out := &canonicalCustomer{
		FirstName: trimmed(c.FirstName),
		LastName:  trimmed(c.LastName),
		Phone:     trimmed(c.Phone),
	}
	if c.Address != nil {
		out.Address = &canonicalAddress{
			Street:     trimmed(c.Address.Street),
			City:       trimmed(c.Address.City),
			PostalCode: trimmed(c.Address.PostalCode),
			Country:    trimmed(c.Address.Country),
		}
	}
	return out
}

// ToNumber coerces a loosely typed JSON value to a finite float64. Anything
// that is not a finite number or a numeric string becomes 0.
func ToNumber(v any) float64 {
	var f float64
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	// collapse -0 so it hashes like 0
	if f == 0 {
		return 0
	}
	return f
}

func trimmed(s string) canonicalString {
	return canonicalString(strings.TrimSpace(s))
}

// lowered lowercases rune by rune; strings.ToLower would turn invalid bytes
// into U+FFFD.
func lowered(s string) canonicalString {
	s = strings.TrimSpace(s)
	if utf8.ValidString(s) {
		return canonicalString(strings.ToLower(s))
	}
	var b strings.Builder
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError && size == 1 {
			b.WriteByte(s[0])
		} else {
			b.WriteString(strings.ToLower(s[:size]))
		}
		s = s[size:]
	}
	return canonicalString(b.String())
}

func trimmedOrNil(s *string) *canonicalString {
	if s == nil {
		return nil
	}
	t := trimmed(*s)
	return &t
}

func orNull(s *canonicalString) string {
	if s == nil {
		return nullMarker
	}
	return string(*s)
}
