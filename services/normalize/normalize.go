package normalize

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/loomcast/script-gateway/services"
)

// Turn is one speaker turn in a structured script
type Turn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Script is the normalized structured result of a script generation
type Script struct {
	Turns []Turn
}

// scriptDocument is the expected wrapper shape of provider output
type scriptDocument struct {
	Script []Turn `json:"script"`
}

// fenceRe matches a fenced code block, optionally tagged json, anywhere
// in the text, across lines
var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// ParseScript repairs and parses model output into a structured script.
// The recovery pipeline runs in order, stopping at the first success:
//
//  1. strip code-fence wrapping around a JSON block
//  2. strict parse of the stripped text
//  3. extract the first balanced top-level object or array from the
//     full text and parse only that fragment
//
// This is a best-effort repair, not a guarantee: text that survives no
// step fails closed with a structural error, never a partial guess.
func ParseScript(text string) (*Script, error) {
	candidate := stripFences(text)

	if turns, ok := decodeTurns(candidate); ok {
		return &Script{Turns: turns}, nil
	}

	if fragment, ok := balancedFragment(text); ok {
		if turns, ok := decodeTurns(fragment); ok {
			return &Script{Turns: turns}, nil
		}
	}

	return nil, services.NewStructuralError("provider returned unparseable structured output", nil)
}

// stripFences returns the content of the first fenced block when one
// exists, otherwise the trimmed input
func stripFences(text string) string {
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return strings.TrimSpace(text)
}

// decodeTurns attempts a strict parse of the candidate as either the
// wrapper document or a bare turn list. A wrapper-less root that already
// matches the expected shape is used directly.
func decodeTurns(candidate string) ([]Turn, bool) {
	b := []byte(candidate)

	var doc scriptDocument
	if err := json.Unmarshal(b, &doc); err == nil && doc.Script != nil {
		return doc.Script, true
	}

	var turns []Turn
	if err := json.Unmarshal(b, &turns); err == nil && turns != nil {
		return turns, true
	}

	return nil, false
}

// balancedFragment scans the full text for the first balanced top-level
// JSON object or array, honoring string literals and escapes. It
// returns the fragment and whether one was found.
func balancedFragment(text string) (string, bool) {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", false
	}

	open := text[start]
	var close byte = '}'
	if open == '[' {
		close = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}

	return "", false
}
