package fragcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"unicode/utf8"
)

const (
	defaultNamespace = "graphql"
	keySeparator     = "/"
	aliasMarker      = "@"
	digestBytes      = 20

	maxAttributeDepth = 64
)

// KeyBuilder derives store keys for fragments. It holds no mutable state.
type KeyBuilder struct {
	namespace string
	schema    string
}

// NewKeyBuilder returns a builder for the given namespace and schema key.
// An empty namespace falls back to "graphql".
func NewKeyBuilder(namespace, schema string) KeyBuilder {
	if namespace == "" {
		namespace = defaultNamespace
	}
	return KeyBuilder{namespace: namespace, schema: schema}
}

// Namespace returns the key namespace.
func (b KeyBuilder) Namespace() string { return b.namespace }

type keyMaterial struct {
	Schema     string         `json:"schema"`
	Path       Path           `json:"path"`
	Selection  string         `json:"selection"`
	Attributes map[string]any `json:"attributes"`
	Aliases    []string       `json:"aliases,omitempty"`
}

// Build returns <namespace>/[<primary logical key>/]<digest>. The primary key
// places the entry; the secondary keys enter the digest as a sorted set, so
// fragments declaring different alias sets never share an entry. TTL never
// affects the key. Strings must be valid UTF-8: encoding/json rewrites
// invalid bytes, which would let distinct inputs share a digest.
func (b KeyBuilder) Build(path Path, query Query, opts Options) (string, error) {
	if len(path) == 0 {
		return "", ErrNoPath
	}
	material := keyMaterial{
		Schema:     b.schema,
		Path:       path,
		Attributes: opts.KeyAttributes,
		Aliases:    secondaryKeys(opts.Keys),
	}
	if query != nil {
		material.Selection = query.SelectionKey(path)
	}
	if err := material.validUTF8(); err != nil {
		return "", err
	}
	canonical, err := json.Marshal(material)
	if err != nil {
		return "", fmt.Errorf("%w: key attributes: %v", ErrInvalidOption, err)
	}
	sum := sha256.Sum256(canonical)
	digest := hex.EncodeToString(sum[:digestBytes])

	if len(opts.Keys) > 0 {
		return b.BuildPattern(opts.Keys[0]) + digest, nil
	}
	return b.namespace + keySeparator + digest, nil
}

// BuildPattern returns the prefix shared by every key built from logicalKey,
// including keys of nested logical keys such as "user/5" under "user".
func (b KeyBuilder) BuildPattern(logicalKey string) string {
	return b.namespace + keySeparator + logicalKey + keySeparator
}

// AliasKey names the value-less entry that links a secondary logical key to
// the primary key holding the data.
func (b KeyBuilder) AliasKey(logicalKey, primaryKey string) string {
	return b.BuildPattern(logicalKey) + aliasMarker + primaryKey
}

func (b KeyBuilder) primaryFromAlias(key string) (string, bool) {
	i := strings.Index(key, keySeparator+aliasMarker)
	if i < 0 {
		return "", false
	}
	primary := key[i+len(keySeparator)+len(aliasMarker):]
	if !strings.HasPrefix(primary, b.namespace+keySeparator) {
		return "", false
	}
	return primary, true
}

// secondaryKeys returns the logical keys after the primary one, sorted and
// without duplicates or repeats of the primary.
func secondaryKeys(keys []string) []string {
	if len(keys) < 2 {
		return nil
	}
	out := make([]string, 0, len(keys)-1)
	for _, k := range keys[1:] {
		if k != keys[0] {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	out = slices.Compact(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

func (m keyMaterial) validUTF8() error {
	for _, seg := range m.Path {
		if !seg.IsIndex && !utf8.ValidString(seg.Name) {
			return fmt.Errorf("%w: path segment %q is not valid UTF-8", ErrInvalidOption, seg.Name)
		}
	}
	if !utf8.ValidString(m.Schema) || !utf8.ValidString(m.Selection) {
		return fmt.Errorf("%w: schema or selection is not valid UTF-8", ErrInvalidOption)
	}
	if !validUTF8Value(reflect.ValueOf(m.Attributes), 0) {
		return fmt.Errorf("%w: key attributes contain invalid UTF-8", ErrInvalidOption)
	}
	return nil
}

// validUTF8Value walks every string reachable from v, map keys included.
// Past maxAttributeDepth the walk stops; json.Marshal rejects cyclic values.
func validUTF8Value(v reflect.Value, depth int) bool {
	if depth > maxAttributeDepth {
		return true
	}
	depth++
	switch v.Kind() {
	case reflect.String:
		return utf8.ValidString(v.String())
	case reflect.Interface, reflect.Pointer:
		return v.IsNil() || validUTF8Value(v.Elem(), depth)
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if !validUTF8Value(iter.Key(), depth) || !validUTF8Value(iter.Value(), depth) {
				return false
			}
		}
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return true
		}
		for i := 0; i < v.Len(); i++ {
			if !validUTF8Value(v.Index(i), depth) {
				return false
			}
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if v.Type().Field(i).IsExported() && !validUTF8Value(v.Field(i), depth) {
				return false
			}
		}
	}
	return true
}

func validateLogicalKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if !utf8.ValidString(key) {
		return fmt.Errorf("%w: %q is not valid UTF-8", ErrInvalidKey, key)
	}
	if strings.ContainsAny(key, `*?[]\`) {
		return fmt.Errorf("%w: %q contains a glob metacharacter", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(key, keySeparator) {
		if seg == "" {
			return fmt.Errorf("%w: %q has an empty segment", ErrInvalidKey, key)
		}
		if strings.HasPrefix(seg, aliasMarker) {
			return fmt.Errorf("%w: %q has a segment starting with %q", ErrInvalidKey, key, aliasMarker)
		}
	}
	return nil
}
