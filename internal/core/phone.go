package core

// phone.go splits free-text phone fields into at most two canonical numbers.
//
// Source phone data mixes 10-digit mobile numbers with landlines stored as a
// separated 3-digit area code and 8-digit local number, across inconsistent
// whitespace and line-break separators. Classification is purely positional
// on token lengths; anything ambiguous resolves to NoValue.

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// Output attributes written by phone normalization.
const (
	ContactNumber1 = "contact number 1"
	ContactNumber2 = "contact number 2"
)

// NoValue is written to a contact slot that could not be resolved.
const NoValue = "None"

// Token lengths recognised by the classifier.
const (
	mobileLen    = 10
	areaCodeLen  = 3
	localLineLen = 8
)

var lineBreaks = strings.NewReplacer(
	"\r\n", " ",
	`\r\n`, " ",
	"\n", " ",
	"\r", " ",
)

// Tokenize normalizes a raw phone value and splits it into tokens: surrounding
// whitespace is stripped, periods removed, line breaks collapsed to spaces,
// then the value is split on whitespace.
func Tokenize(raw string) []string {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, ".", "")
	s = lineBreaks.Replace(s)
	return strings.Fields(s)
}

// ClassifyTokens walks tokens in order, collecting mobile numbers and
// area-code+local landline numbers.
//
// An 8-length token following a 3-length token forms a landline. An 8-length
// token two places after a 3-length token, with an 8-length token between,
// forms a second landline that reuses the same area code: "044 11111111
// 22222222" yields 04411111111 and 04422222222.
func ClassifyTokens(tokens []string) (mobiles, phones []string) {
	n := make([]int, len(tokens))
	for i, t := range tokens {
		n[i] = utf8.RuneCountInString(t)
	}

	for k, tok := range tokens {
		switch n[k] {
		case mobileLen:
			mobiles = append(mobiles, tok)
		case localLineLen:
			if k > 0 && n[k-1] == areaCodeLen {
				phones = append(phones, tokens[k-1]+tok)
			}
			if k > 1 && n[k-2] == areaCodeLen && n[k-1] == localLineLen {
				phones = append(phones, tokens[k-2]+tok)
			}
		}
	}
	return mobiles, phones
}

// ResolveContacts maps the classified candidates onto the two output slots.
// Combinations other than the five recognised ones yield NoValue in both slots.
func ResolveContacts(mobiles, phones []string) (string, string) {
	switch {
	case len(mobiles) == 1 && len(phones) == 1:
		return mobiles[0], phones[0]
	case len(mobiles) == 2 && len(phones) == 0:
		return mobiles[0], mobiles[1]
	case len(mobiles) == 0 && len(phones) == 2:
		return phones[0], phones[1]
	case len(mobiles) == 1 && len(phones) == 0:
		return mobiles[0], NoValue
	case len(mobiles) == 0 && len(phones) == 1:
		return phones[0], NoValue
	default:
		return NoValue, NoValue
	}
}

// NormalizePhone resolves one raw phone value into two contact slots.
func NormalizePhone(raw string) (string, string) {
	return ResolveContacts(ClassifyTokens(Tokenize(raw)))
}

// NormalizePhones applies phone normalization for each attribute: the two
// contact attributes are written and the raw attribute removed. A null raw
// value resolves to NoValue in both slots. An attribute no record declares is
// reported as a *RuleApplicationError and skipped; the others still apply.
// With several attributes the last one's contacts win, as each write replaces
// the previous contact columns.
func NormalizePhones(batch Batch, attributes []string) (Batch, error) {
	out := batch
	var errs []error

	for _, attr := range attributes {
		if len(out) > 0 && !batchDeclares(out, attr) {
			errs = append(errs, &RuleApplicationError{
				Stage:     StagePhoneNormalized,
				Attribute: attr,
				Err:       ErrAttributeMissing,
			})
			continue
		}

		next := make(Batch, len(out))
		for i, rec := range out {
			c1, c2 := NoValue, NoValue
			if v, ok := rec.Get(attr); ok && v.Valid {
				c1, c2 = NormalizePhone(v.String)
			}
			next[i] = rec.With(ContactNumber1, Text(c1)).
				With(ContactNumber2, Text(c2)).
				Without(attr)
		}
		out = next
	}

	return out, errors.Join(errs...)
}

func batchDeclares(b Batch, attr string) bool {
	for _, r := range b {
		if r.Has(attr) {
			return true
		}
	}
	return false
}
