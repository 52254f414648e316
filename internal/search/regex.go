package search

import (
	"fmt"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/jeffwilliams/hexcore/internal/provider"
)

// RegexTimeout bounds the time spent matching one string.
var RegexTimeout = 5 * time.Second

type Regex struct {
	Pattern         string     `json:"pattern"`
	FullMatch       bool       `json:"full_match"`
	MinLength       int        `json:"min_length"`
	NullTermination bool       `json:"null_termination"`
	Type            StringType `json:"type"`
}

func compileRegex(s Regex) (*regexp2.Regexp, error) {
	expr := s.Pattern
	if s.FullMatch {
		expr = `\A(?:` + expr + `)\z`
	}
	re, err := regexp2.Compile(expr, regexp2.None)
	if err != nil {
		return nil, &PatternError{Input: s.Pattern, Reason: err.Error()}
	}
	re.MatchTimeout = RegexTimeout
	return re, nil
}

// searchRegex finds strings of every character class and keeps those the expression matches.
func searchRegex(sc *scanner, src provider.Source, s Regex) ([]Occurrence, error) {
	re, err := compileRegex(s)
	if err != nil {
		return nil, err
	}

	strs, err := searchStrings(sc, src, Strings{
		MinLength:       s.MinLength,
		Type:            s.Type,
		NullTermination: s.NullTermination,
		Classes:         AllClasses,
	})
	if err != nil {
		return nil, err
	}

	var occs []Occurrence
	for _, o := range strs {
		if err := sc.ctx.Err(); err != nil {
			return nil, fmt.Errorf("search stopped at %#x: %w", o.Region.Address, err)
		}
		text, err := decodeText(src, o, 0)
		if err != nil {
			return nil, err
		}
		ok, err := re.MatchString(text)
		if err != nil {
			return nil, fmt.Errorf("matching string at %#x: %w", o.Region.Address, err)
		}
		if ok {
			occs = append(occs, o)
		}
	}
	return occs, nil
}
