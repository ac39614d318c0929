// Package langcode resolves free-form language names to ISO 639-1 codes.
//
// Users type language names, not codes, and they type them imperfectly:
// "Jpanese", "portugese", "mandarin". The resolver accepts a code directly,
// an exact name or alias, and falls back to a two-stage fuzzy match:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     the input and for each known language name. Names sharing a code with
//     the input become phonetic candidates.
//
//  2. Jaro-Winkler ranking: among candidates, the name with the highest
//     Jaro-Winkler similarity wins, provided its score exceeds the phonetic
//     threshold. When no phonetic candidate exists, a pure similarity pass
//     over all names applies a stricter fuzzy threshold.
package langcode

import (
	"errors"
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"
)

// ErrUnknownLanguage indicates the input could not be resolved to any known
// language, even fuzzily.
var ErrUnknownLanguage = errors.New("langcode: unknown language")

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Language is one resolvable language.
type Language struct {
	// Code is the ISO 639-1 code ("en", "ja", ...).
	Code string

	// Name is the canonical English name ("English", "Japanese", ...).
	Name string
}

// languages is the resolver's knowledge base. Aliases cover common
// alternative names; the resolver lowercases everything, so casing here is
// presentational only.
var languages = []struct {
	Language
	Aliases []string
}{
	{Language{"en", "English"}, nil},
	{Language{"zh", "Chinese"}, []string{"mandarin", "cantonese", "chinese simplified", "chinese traditional"}},
	{Language{"ja", "Japanese"}, nil},
	{Language{"ko", "Korean"}, nil},
	{Language{"fr", "French"}, nil},
	{Language{"de", "German"}, []string{"deutsch"}},
	{Language{"es", "Spanish"}, []string{"castilian", "espanol"}},
	{Language{"it", "Italian"}, nil},
	{Language{"pt", "Portuguese"}, []string{"brazilian portuguese"}},
	{Language{"ru", "Russian"}, nil},
	{Language{"ar", "Arabic"}, nil},
	{Language{"nl", "Dutch"}, []string{"flemish"}},
	{Language{"pl", "Polish"}, nil},
	{Language{"tr", "Turkish"}, nil},
	{Language{"sv", "Swedish"}, nil},
	{Language{"da", "Danish"}, nil},
	{Language{"no", "Norwegian"}, []string{"bokmal", "nynorsk"}},
	{Language{"fi", "Finnish"}, nil},
	{Language{"el", "Greek"}, nil},
	{Language{"cs", "Czech"}, nil},
	{Language{"hu", "Hungarian"}, nil},
	{Language{"ro", "Romanian"}, nil},
	{Language{"uk", "Ukrainian"}, nil},
	{Language{"he", "Hebrew"}, nil},
	{Language{"hi", "Hindi"}, nil},
	{Language{"th", "Thai"}, nil},
	{Language{"vi", "Vietnamese"}, nil},
	{Language{"id", "Indonesian"}, []string{"bahasa indonesia"}},
	{Language{"ms", "Malay"}, []string{"bahasa melayu"}},
}

// Option is a functional option for configuring a [Resolver].
type Option func(*Resolver)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched name to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(r *Resolver) {
		r.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match is found and the resolver falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(r *Resolver) {
		r.fuzzyThreshold = threshold
	}
}

// Resolver maps free-form language names to [Language] values. All methods
// are safe for concurrent use; the Resolver is read-only after construction.
type Resolver struct {
	phoneticThreshold float64
	fuzzyThreshold    float64

	byCode  map[string]Language
	byAlias map[string]Language
}

// NewResolver returns a Resolver configured with the supplied options.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
		byCode:            make(map[string]Language, len(languages)),
		byAlias:           make(map[string]Language, len(languages)*2),
	}
	for _, o := range opts {
		o(r)
	}
	for _, l := range languages {
		r.byCode[l.Code] = l.Language
		r.byAlias[strings.ToLower(l.Name)] = l.Language
		for _, a := range l.Aliases {
			r.byAlias[a] = l.Language
		}
	}
	return r
}

// Resolve maps input to a Language. It accepts an ISO code ("ja"), an exact
// name or alias ("Japanese", "mandarin"), or a close misspelling
// ("Jpanese"). Returns [ErrUnknownLanguage] when nothing matches.
func (r *Resolver) Resolve(input string) (Language, error) {
	q := strings.ToLower(strings.TrimSpace(input))
	if q == "" {
		return Language{}, fmt.Errorf("%w: empty input", ErrUnknownLanguage)
	}

	if l, ok := r.byCode[q]; ok {
		return l, nil
	}
	if l, ok := r.byAlias[q]; ok {
		return l, nil
	}

	if l, ok := r.fuzzyResolve(q); ok {
		return l, nil
	}
	return Language{}, fmt.Errorf("%w: %q", ErrUnknownLanguage, input)
}

// fuzzyResolve runs the two-stage phonetic/similarity match over every name
// and alias in the knowledge base.
func (r *Resolver) fuzzyResolve(q string) (Language, bool) {
	inputCodes := metaphoneCodes(q)

	type candidate struct {
		lang     Language
		score    float64
		phonetic bool
	}
	var best candidate

	for alias, lang := range r.byAlias {
		phonetic := codesOverlap(inputCodes, metaphoneCodes(alias))
		score := matchr.JaroWinkler(q, alias, false)

		if phonetic {
			if score >= r.phoneticThreshold && (!best.phonetic || score > best.score) {
				best = candidate{lang: lang, score: score, phonetic: true}
			}
		} else if !best.phonetic {
			if score >= r.fuzzyThreshold && score > best.score {
				best = candidate{lang: lang, score: score, phonetic: false}
			}
		}
	}

	if best.lang.Code == "" {
		return Language{}, false
	}
	return best.lang, true
}

// metaphoneCodes returns the union of Double Metaphone codes for each token.
func metaphoneCodes(s string) map[string]struct{} {
	codes := make(map[string]struct{}, 4)
	for _, t := range strings.Fields(s) {
		p, sec := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if sec != "" {
			codes[sec] = struct{}{}
		}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
