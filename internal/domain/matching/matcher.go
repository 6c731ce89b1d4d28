// Package matching decides whether a free-text staff identifier refers to the
// same person as one of several loosely formatted candidate fields.
//
// Upstream systems record assignments as internal ids, "First Last",
// "Last, First" or email logins. Matches applies a fixed sequence of
// increasingly tolerant rules and stops at the first that succeeds.
package matching

import (
	"sort"
	"strings"
	"unicode"
)

// MinTokenLen is the shortest word kept by Tokens.
const MinTokenLen = 2

// minEmailFragmentLen is the shortest email local-part fragment considered.
const minEmailFragmentLen = 3

// Candidate is one record's identity fields. ID is compared exactly; Fields
// are free text.
type Candidate struct {
	ID     string
	Fields []string
}

// Matches reports whether needle identifies c. It never panics and an empty
// needle never matches.
func Matches(needle string, c Candidate) bool {
	n := strings.TrimSpace(needle)
	if n == "" {
		return false
	}

	if id := strings.TrimSpace(c.ID); id != "" && strings.EqualFold(id, n) {
		return true
	}

	lower := strings.ToLower(n)
	for _, f := range c.Fields {
		if f != "" && strings.Contains(strings.ToLower(f), lower) {
			return true
		}
	}

	norm := Normalize(n)
	normFields := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		normFields[i] = Normalize(f)
	}
	if containedIn(norm, normFields) {
		return true
	}

	if tokenSubset(Tokens(n), normFields) {
		return true
	}

	if strings.Contains(n, "@") {
		frags := EmailFragments(n)
		if len(frags) == 0 {
			return false
		}
		joined := Normalize(strings.Join(frags, " "))
		if containedIn(joined, normFields) {
			return true
		}
		if tokenSubset(frags, normFields) {
			return true
		}
	}

	return false
}

// MatchesAny is Matches against a candidate with no id field.
func MatchesAny(needle string, fields ...string) bool {
	return Matches(needle, Candidate{Fields: fields})
}

func containedIn(norm string, normFields []string) bool {
	if norm == "" {
		return false
	}
	for _, f := range normFields {
		if f != "" && strings.Contains(f, norm) {
			return true
		}
	}
	return false
}

// tokenSubset is true when needle has at least two tokens and every one of
// them appears as a whole word in a single field.
func tokenSubset(tokens []string, normFields []string) bool {
	if len(tokens) < 2 {
		return false
	}
	for _, f := range normFields {
		words := make(map[string]struct{})
		for _, w := range strings.Fields(f) {
			words[w] = struct{}{}
		}
		all := true
		for _, t := range tokens {
			if _, ok := words[t]; !ok {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// Normalize lowercases s, collapses every run of non-alphanumeric characters
// into a single space and trims the result.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		pendingSpace = true
	}
	return b.String()
}

// Tokens returns the normalized words of s that are at least MinTokenLen long.
func Tokens(s string) []string {
	var out []string
	for _, w := range strings.Fields(Normalize(s)) {
		if len([]rune(w)) >= MinTokenLen {
			out = append(out, w)
		}
	}
	return out
}

// EmailFragments splits the local part of an email on . _ + - and keeps the
// normalized fragments of at least three characters. Non-emails yield nil.
func EmailFragments(s string) []string {
	local, _, ok := strings.Cut(strings.TrimSpace(s), "@")
	if !ok {
		return nil
	}
	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '+' || r == '-'
	})
	var out []string
	for _, p := range parts {
		n := Normalize(p)
		if len([]rune(n)) >= minEmailFragmentLen {
			out = append(out, n)
		}
	}
	return out
}

// IsEmail is a cheap shape check, not validation.
func IsEmail(s string) bool {
	local, domain, ok := strings.Cut(strings.TrimSpace(s), "@")
	return ok && local != "" && strings.Contains(domain, ".")
}

// SearchKeys derives the lookup keys stored with a record: each field's
// normalized form, its tokens and, for emails, the local-part fragments.
// The result is sorted and free of duplicates.
func SearchKeys(fields ...string) []string {
	set := make(map[string]struct{})
	for _, f := range fields {
		if strings.TrimSpace(f) == "" {
			continue
		}
		if n := Normalize(f); n != "" {
			set[n] = struct{}{}
		}
		for _, t := range Tokens(f) {
			set[t] = struct{}{}
		}
		if strings.Contains(f, "@") {
			for _, frag := range EmailFragments(f) {
				set[frag] = struct{}{}
			}
		}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RankCandidates derives at most max lookup tokens from needles, longest
// first. Email needles contribute their local-part fragments only, so the
// mail domain never becomes a lookup key.
func RankCandidates(needles []string, max int) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(t string) {
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	for _, n := range needles {
		if IsEmail(n) {
			for _, f := range EmailFragments(n) {
				add(f)
			}
			continue
		}
		for _, t := range Tokens(n) {
			add(t)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		li, lj := len([]rune(out[i])), len([]rune(out[j]))
		if li != lj {
			return li > lj
		}
		return out[i] < out[j]
	})
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}
