package engine

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Resolver maps raw lesion labels onto stable identities for one run.
// Two labels resolve to the same identity when their normalized keys match
// exactly, or when both parse into the same descriptor pattern with the
// same trailing identifier ("Lesão A" and "lesao a", "Nódulo II" and
// "nodulo 2"). Different identifiers never merge.
type Resolver struct {
	identities []*LesionIdentity
	byKey      map[string]*LesionIdentity
	byPattern  map[string]*LesionIdentity
}

// NewResolver returns an empty resolver. One instance serves one run; no
// state survives across runs.
func NewResolver() *Resolver {
	return &Resolver{
		byKey:     make(map[string]*LesionIdentity),
		byPattern: make(map[string]*LesionIdentity),
	}
}

// labelPattern matches a lesion descriptor followed by a short identifier,
// after diacritics are stripped.
var labelPattern = regexp.MustCompile(`\b(lesao|nodulo|metastase|massa|tumor)\b[\s:]*([a-z0-9]{1,4})\b`)

var romanNumerals = map[string]string{
	"i": "1", "ii": "2", "iii": "3", "iv": "4", "v": "5",
	"vi": "6", "vii": "7", "viii": "8", "ix": "9", "x": "10",
}

// Resolve returns the identity for rawLabel, creating one when nothing
// matches. A label that fits no descriptor pattern and first appears after
// firstExamDate is flagged as ambiguous; it still becomes a new identity.
func (r *Resolver) Resolve(rawLabel string, examDate, firstExamDate time.Time) (*LesionIdentity, *Diagnostic) {
	key := normalizeKey(rawLabel)
	if id, ok := r.byKey[key]; ok {
		id.addAlias(rawLabel)
		return id, nil
	}

	patKey, patterned := patternKey(key)
	if patterned {
		if id, ok := r.byPattern[patKey]; ok {
			id.addAlias(rawLabel)
			r.byKey[key] = id
			return id, nil
		}
	}

	id := &LesionIdentity{ID: canonicalName(rawLabel)}
	id.addAlias(rawLabel)
	r.identities = append(r.identities, id)
	r.byKey[key] = id
	if patterned {
		r.byPattern[patKey] = id
	}

	var diag *Diagnostic
	if !patterned && !firstExamDate.IsZero() && examDate.After(firstExamDate) {
		diag = &Diagnostic{
			Kind:   DiagAmbiguousLesionLabel,
			Label:  rawLabel,
			Date:   examDate,
			Detail: fmt.Sprintf("label %q matches no known lesion and no naming pattern; treated as a new lesion", rawLabel),
		}
	}
	return id, diag
}

// Identities returns every identity created so far, in first-seen order.
func (r *Resolver) Identities() []*LesionIdentity {
	return r.identities
}

// Lookup returns the identity a label would resolve to, without creating
// one. Used by the allow-list filter.
func (r *Resolver) Lookup(rawLabel string) (*LesionIdentity, bool) {
	key := normalizeKey(rawLabel)
	if id, ok := r.byKey[key]; ok {
		return id, true
	}
	if patKey, ok := patternKey(key); ok {
		if id, found := r.byPattern[patKey]; found {
			return id, true
		}
	}
	return nil, false
}

func (id *LesionIdentity) addAlias(raw string) {
	for _, a := range id.Aliases {
		if a == raw {
			return
		}
	}
	id.Aliases = append(id.Aliases, raw)
}

// patternKey reduces a normalized label to "descriptor identifier" form,
// with roman numeral identifiers rewritten as arabic.
func patternKey(key string) (string, bool) {
	m := labelPattern.FindStringSubmatch(key)
	if m == nil {
		return "", false
	}
	ident := m[2]
	if arabic, ok := romanNumerals[ident]; ok {
		ident = arabic
	}
	return m[1] + " " + ident, true
}

var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeKey lowercases, strips diacritics, and collapses whitespace.
func normalizeKey(s string) string {
	s = strings.ToLower(s)
	if out, _, err := transform.String(diacriticStripper, s); err == nil {
		s = out
	}
	return strings.Join(strings.Fields(s), " ")
}

// canonicalName cleans a raw label for display: trimmed, single-spaced,
// words capitalized.
func canonicalName(raw string) string {
	words := strings.Fields(raw)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
