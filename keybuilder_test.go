package fragcache

import (
	"errors"
	"strings"
	"testing"
)

func TestKeyBuilderIsDeterministic(t *testing.T) {
	b := NewKeyBuilder("", "v1")
	path := MustPath("viewer", "profile")
	opts := Options{KeyAttributes: map[string]any{"locale": "en", "tier": 2}}

	first, err := b.Build(path, testQuery{"viewer.profile": "{name}"}, opts)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	second, err := b.Build(MustPath("viewer", "profile"), testQuery{"viewer.profile": "{name}"}, Options{
		KeyAttributes: map[string]any{"tier": 2, "locale": "en"},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if first != second {
		t.Fatalf("expected stable key, got %q and %q", first, second)
	}
	if !strings.HasPrefix(first, "graphql/") {
		t.Fatalf("expected default namespace, got %q", first)
	}
	if digest := strings.TrimPrefix(first, "graphql/"); len(digest) != 2*digestBytes {
		t.Fatalf("unexpected digest length %d", len(digest))
	}
}

func TestKeyBuilderDistinguishesInputs(t *testing.T) {
	b := NewKeyBuilder("graphql", "v1")
	base := MustPath("users", 0, "name")
	q := testQuery{"users.0.name": ""}
	ref, _ := b.Build(base, q, Options{})

	cases := map[string]func() (string, error){
		"field vs index": func() (string, error) {
			return b.Build(MustPath("users", "0", "name"), q, Options{})
		},
		"other index": func() (string, error) {
			return b.Build(MustPath("users", 1, "name"), q, Options{})
		},
		"selection": func() (string, error) {
			return b.Build(base, testQuery{"users.0.name": "{first}"}, Options{})
		},
		"attributes": func() (string, error) {
			return b.Build(base, q, Options{KeyAttributes: map[string]any{"a": 1}})
		},
		"schema": func() (string, error) {
			return NewKeyBuilder("graphql", "v2").Build(base, q, Options{})
		},
	}
	for name, build := range cases {
		got, err := build()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if got == ref {
			t.Fatalf("%s: expected a different key than %q", name, ref)
		}
	}
}

func TestKeyBuilderLogicalKeyPrefix(t *testing.T) {
	b := NewKeyBuilder("api", "")
	path := MustPath("user")

	k5, _ := b.Build(path, nil, Options{Keys: []string{"user/5", "team"}})
	k50, _ := b.Build(path, nil, Options{Keys: []string{"user/50"}})

	if !strings.HasPrefix(k5, b.BuildPattern("user/5")) {
		t.Fatalf("expected %q under user/5 pattern", k5)
	}
	if !strings.HasPrefix(k5, b.BuildPattern("user")) {
		t.Fatalf("expected %q under parent user pattern", k5)
	}
	if strings.HasPrefix(k50, b.BuildPattern("user/5")) {
		t.Fatalf("user/50 key %q must not match user/5 pattern", k50)
	}
	ttl, _ := b.Build(path, nil, Options{Keys: []string{"user/5", "team"}, TTL: 99})
	if ttl != k5 {
		t.Fatalf("ttl must not change the key: %q vs %q", k5, ttl)
	}
}

func TestKeyBuilderSecondaryKeysEnterDigest(t *testing.T) {
	b := NewKeyBuilder("api", "")
	path := MustPath("user")
	build := func(keys ...string) string {
		t.Helper()
		k, err := b.Build(path, nil, Options{Keys: keys})
		if err != nil {
			t.Fatalf("build %v: %v", keys, err)
		}
		return k
	}

	team1 := build("user/5", "team/1")
	if team1 == build("user/5", "team/2") {
		t.Fatalf("different secondary keys must not share an entry")
	}
	if team1 == build("user/5") {
		t.Fatalf("adding a secondary key must change the entry")
	}
	if build("user/5", "team/1", "org") != build("user/5", "org", "team/1", "org") {
		t.Fatalf("secondary keys are a set: order and duplicates must not matter")
	}
	if build("user/5") != build("user/5", "user/5") {
		t.Fatalf("repeating the primary key must not change the entry")
	}
}

func TestKeyBuilderRejectsInvalidUTF8(t *testing.T) {
	b := NewKeyBuilder("", "")
	cases := map[string]func() (string, error){
		"attribute value": func() (string, error) {
			return b.Build(MustPath("viewer"), nil, Options{KeyAttributes: map[string]any{"v": "\xff"}})
		},
		"nested attribute": func() (string, error) {
			return b.Build(MustPath("viewer"), nil, Options{KeyAttributes: map[string]any{"v": []any{map[string]any{"x": "\xfe"}}}})
		},
		"attribute name": func() (string, error) {
			return b.Build(MustPath("viewer"), nil, Options{KeyAttributes: map[string]any{"\xff": 1}})
		},
		"path segment": func() (string, error) {
			return b.Build(MustPath("a\xff"), nil, Options{})
		},
		"selection": func() (string, error) {
			return b.Build(MustPath("viewer"), testQuery{"viewer": "{\xfe}"}, Options{})
		},
	}
	for name, build := range cases {
		if _, err := build(); !errors.Is(err, ErrInvalidOption) {
			t.Fatalf("%s: expected ErrInvalidOption, got %v", name, err)
		}
	}

	// Distinct valid strings still produce distinct keys.
	ka, _ := b.Build(MustPath("viewer"), nil, Options{KeyAttributes: map[string]any{"v": "\u00ff"}})
	kb, _ := b.Build(MustPath("viewer"), nil, Options{KeyAttributes: map[string]any{"v": "\u00fe"}})
	if ka == "" || ka == kb {
		t.Fatalf("expected distinct keys, got %q and %q", ka, kb)
	}
	if err := validateLogicalKey("team/\xff"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected invalid UTF-8 logical key rejected, got %v", err)
	}
}

func TestKeyBuilderAliasRoundTrip(t *testing.T) {
	b := NewKeyBuilder("api", "")
	primary, _ := b.Build(MustPath("user"), nil, Options{Keys: []string{"user/5"}})
	alias := b.AliasKey("team/1", primary)
	if !strings.HasPrefix(alias, b.BuildPattern("team/1")) {
		t.Fatalf("alias %q not under its logical key", alias)
	}
	got, ok := b.primaryFromAlias(alias)
	if !ok || got != primary {
		t.Fatalf("expected %q, got %q ok=%v", primary, got, ok)
	}
	if _, ok := b.primaryFromAlias(primary); ok {
		t.Fatalf("primary key must not parse as alias")
	}
	if _, ok := b.primaryFromAlias("api/team/@other/x"); ok {
		t.Fatalf("alias outside namespace must be rejected")
	}
}

func TestKeyBuilderRequiresPath(t *testing.T) {
	if _, err := NewKeyBuilder("", "").Build(nil, nil, Options{}); !errors.Is(err, ErrNoPath) {
		t.Fatalf("expected ErrNoPath, got %v", err)
	}
}

func TestKeyBuilderRejectsUnencodableAttributes(t *testing.T) {
	_, err := NewKeyBuilder("", "").Build(MustPath("a"), nil, Options{
		KeyAttributes: map[string]any{"fn": func() {}},
	})
	if !errors.Is(err, ErrInvalidOption) {
		t.Fatalf("expected ErrInvalidOption, got %v", err)
	}
}

func TestValidateLogicalKey(t *testing.T) {
	for _, key := range []string{"user", "user/5", "a-b_c/1.2"} {
		if err := validateLogicalKey(key); err != nil {
			t.Fatalf("%q: unexpected error %v", key, err)
		}
	}
	for _, key := range []string{"", "user*", "a?b", "x[1]", `a\b`, "a//b", "/a", "a/", "@a", "a/@b"} {
		if err := validateLogicalKey(key); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("%q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}
