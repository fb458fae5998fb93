package user

import (
	"errors"
	"strings"
)

// Prefix is the scheme prefix carried by every canonical user id.
const Prefix = "user_"

var ErrorEmptyID = errors.New("empty user id")

// ID is a canonical user identifier e.g. user_3GFQNuSg3dPqDD1emxv5bqX42oxq.
// Values are only produced by Parse, so comparing two IDs is always safe.
type ID string

// Parse canonicalizes a raw identifier as issued by the identity provider.
// Identifiers may arrive with or without the scheme prefix.
func Parse(raw string) (ID, error) {
	bare := strings.TrimSpace(raw)
	for strings.HasPrefix(bare, Prefix) {
		bare = strings.TrimPrefix(bare, Prefix)
	}
	if bare == "" {
		return "", ErrorEmptyID
	}
	return ID(Prefix + bare), nil
}

// MustParse is Parse for constants and tests.
func MustParse(raw string) ID {
	id, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// ParseAll parses a list of identifiers, dropping duplicates and keeping the
// order in which each participant first appears.
func ParseAll(raw []string) ([]ID, error) {
	ids := make([]ID, 0, len(raw))
	seen := make(map[ID]struct{}, len(raw))
	for _, r := range raw {
		id, err := Parse(r)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func (id ID) String() string {
	return string(id)
}

// Bare returns the identifier without the scheme prefix.
func (id ID) Bare() string {
	return strings.TrimPrefix(string(id), Prefix)
}

// Variants lists every form this identifier may have been stored under,
// canonical form first. Records written before normalization carry the bare form.
func (id ID) Variants() []string {
	if id == "" {
		return nil
	}
	return []string{string(id), id.Bare()}
}

// VariantsOf flattens the variants of several identifiers.
func VariantsOf(ids ...ID) []string {
	out := make([]string, 0, len(ids)*2)
	for _, id := range ids {
		out = append(out, id.Variants()...)
	}
	return out
}
