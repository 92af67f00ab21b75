package trackindex

import (
	"strings"

	"github.com/liuzl/gocc"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
)

// artistSeparators split a combined artist string like "A/B & C".
var artistSeparators = []string{",", "/", "&", ";", "|", "、"}

// Normalizer folds titles and artist names into lookup keys. The zero value
// collapses whitespace, trims and case folds. With a converter it also maps
// Traditional Chinese to Simplified.
type Normalizer struct {
	t2s *gocc.OpenCC
}

// NewNormalizer returns a Normalizer. foldChinese enables t2s conversion; if
// the OpenCC dictionaries fail to load it is logged and left off.
func NewNormalizer(foldChinese bool) *Normalizer {
	n := &Normalizer{}
	if !foldChinese {
		return n
	}
	conv, err := gocc.New("t2s")
	if err != nil {
		log.Warn().Err(err).Msg("OpenCC t2s unavailable, Chinese variant folding disabled")
		return n
	}
	n.t2s = conv
	return n
}

// Key normalizes s for use as a map key or for comparison.
func (n *Normalizer) Key(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	s = strings.Join(strings.Fields(s), " ")
	s = cases.Fold().String(s)
	if n != nil && n.t2s != nil {
		if out, err := n.t2s.Convert(s); err == nil {
			s = out
		}
	}
	return s
}

// SplitArtists splits a combined artist string on the known separators,
// dropping empty parts.
func SplitArtists(artists string) []string {
	parts := []string{artists}
	for _, sep := range artistSeparators {
		var next []string
		for _, p := range parts {
			next = append(next, strings.Split(p, sep)...)
		}
		parts = next
	}

	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}
