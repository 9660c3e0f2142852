package normalization

import (
  "strings"
)

func ParseInputString(input string) string {
  normalized := strings.ToLower(strings.TrimSpace(input))
  return normalized
}

func ParseInputStringPtr(input *string) *string {
  if input == nil {
    return nil
  }
  normalized := strings.ToLower(strings.TrimSpace(*input))
  return &normalized
}

// NormalizeIdentifier canonicalizes a participant identifier (usually a
// mailbox address) for set comparison and dedup.
func NormalizeIdentifier(input string) string {
  s := strings.ToLower(strings.TrimSpace(input))
  s = strings.Trim(s, "<>")
  return s
}

// NormalizeTitle collapses a free-form title into a stable comparison form:
// lowercased, punctuation stripped, whitespace collapsed.
func NormalizeTitle(input string) string {
  return strings.Join(TitleTokens(input), " ")
}

// TitleTokens splits a title into normalized tokens. Tokens shorter than
// two runes are dropped, they carry no matching signal.
func TitleTokens(input string) []string {
  lowered := strings.ToLower(strings.TrimSpace(input))
  fields := strings.FieldsFunc(lowered, func(r rune) bool {
    switch {
    case r >= 'a' && r <= 'z':
      return false
    case r >= '0' && r <= '9':
      return false
    default:
      return true
    }
  })
  out := make([]string, 0, len(fields))
  for _, f := range fields {
    if len(f) < 2 {
      continue
    }
    out = append(out, f)
  }
  return out
}

// TokenSet returns the deduplicated token set of a title.
func TokenSet(input string) map[string]struct{} {
  tokens := TitleTokens(input)
  set := make(map[string]struct{}, len(tokens))
  for _, t := range tokens {
    set[t] = struct{}{}
  }
  return set
}
