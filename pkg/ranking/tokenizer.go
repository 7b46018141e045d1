package ranking

import (
	"regexp"
	"strings"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
	"github.com/reiver/go-porterstemmer"
)

// stopwords are dropped from English input. Sign-specific filler ("sign",
// "road", "japan") is included since nearly every catalog name carries it.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "of": true,
	"in": true, "on": true, "at": true, "for": true, "to": true, "by": true,
	"with": true, "and": true, "or": true, "this": true, "that": true,
	"sign": true, "signs": true, "road": true, "japan": true, "japanese": true,
	"traffic": true, "image": true, "picture": true, "photo": true, "svg": true, "png": true,
}

// ignoredPOS lists kagome primary parts of speech that carry no matching signal.
var ignoredPOS = map[string]bool{
	"助詞":  true, // particle
	"助動詞": true, // auxiliary verb
	"記号":  true, // symbol
}

var (
	japaneseRun = regexp.MustCompile(`[\p{Han}\p{Hiragana}\p{Katakana}ー]+`)
	latinRun    = regexp.MustCompile(`[\p{Latin}\d]+`)
)

// Tokenizer turns bilingual sign text into a set of comparable tokens.
// English words are lower-cased and Porter-stemmed; Japanese runs are
// segmented with kagome and reduced to their dictionary form.
//
// Building the kagome dictionary is expensive, so construct one Tokenizer
// per process and share it. Tokenize is safe for concurrent use.
type Tokenizer struct {
	ja *tokenizer.Tokenizer
}

// NewTokenizer loads the IPA dictionary.
func NewTokenizer() (*Tokenizer, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, err
	}
	return &Tokenizer{ja: t}, nil
}

// Tokenize returns the unique tokens of s.
func (t *Tokenizer) Tokenize(s string) map[string]struct{} {
	set := make(map[string]struct{})
	if strings.TrimSpace(s) == "" {
		return set
	}

	// Filenames use underscores and hyphens as word separators.
	s = strings.NewReplacer("_", " ", "-", " ").Replace(strings.ToLower(s))

	for _, word := range latinRun.FindAllString(s, -1) {
		if stopwords[word] || (len(word) < 2 && !isDigits(word)) {
			continue
		}
		if isDigits(word) {
			set[word] = struct{}{}
			continue
		}
		set[porterstemmer.StemString(word)] = struct{}{}
	}

	for _, run := range japaneseRun.FindAllString(s, -1) {
		for _, tok := range t.ja.Tokenize(run) {
			if tok.Class == tokenizer.DUMMY {
				continue
			}
			features := tok.Features()
			if len(features) > 0 && ignoredPOS[features[0]] {
				continue
			}
			base := tok.Surface
			if len(features) > 6 && features[6] != "*" {
				base = features[6]
			}
			if strings.TrimSpace(base) != "" {
				set[base] = struct{}{}
			}
		}
	}

	return set
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
