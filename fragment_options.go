package fragcache

import (
	"fmt"
	"maps"
	"time"
)

// Options configures one fragment.
type Options struct {
	// Keys are logical keys used for manual invalidation. The first key is
	// the primary family and prefixes the stored key; the rest get alias
	// entries.
	Keys []string
	// KeyAttributes are extra disambiguators folded into the key digest.
	// Values must be JSON-encodable.
	KeyAttributes map[string]any
	// TTL overrides the cache default when positive.
	TTL time.Duration
}

// Validate checks logical keys and the TTL.
func (o Options) Validate() error {
	for _, k := range o.Keys {
		if err := validateLogicalKey(k); err != nil {
			return err
		}
	}
	if o.TTL < 0 {
		return fmt.Errorf("%w: negative ttl %s", ErrInvalidOption, o.TTL)
	}
	return nil
}

// merge layers o over defaults.
func (o Options) merge(defaults Options) Options {
	out := Options{
		Keys: o.Keys,
		TTL:  o.TTL,
	}
	if len(out.Keys) == 0 {
		out.Keys = defaults.Keys
	}
	if out.TTL <= 0 {
		out.TTL = defaults.TTL
	}
	if len(defaults.KeyAttributes) > 0 || len(o.KeyAttributes) > 0 {
		out.KeyAttributes = make(map[string]any, len(defaults.KeyAttributes)+len(o.KeyAttributes))
		maps.Copy(out.KeyAttributes, defaults.KeyAttributes)
		maps.Copy(out.KeyAttributes, o.KeyAttributes)
	}
	out.Keys = append([]string(nil), out.Keys...)
	return out
}

// ParseOptions converts a directive-style argument map into Options.
// Recognized names are "keys", "key_attributes" and "ttl"; anything else is
// rejected with ErrUnknownOption.
func ParseOptions(raw map[string]any) (Options, error) {
	var opts Options
	for name, value := range raw {
		switch name {
		case "keys":
			keys, err := parseKeys(value)
			if err != nil {
				return Options{}, err
			}
			opts.Keys = keys
		case "key_attributes":
			attrs, ok := value.(map[string]any)
			if !ok && value != nil {
				return Options{}, fmt.Errorf("%w: key_attributes must be a map, got %T", ErrInvalidOption, value)
			}
			opts.KeyAttributes = attrs
		case "ttl":
			ttl, err := parseTTL(value)
			if err != nil {
				return Options{}, err
			}
			opts.TTL = ttl
		default:
			return Options{}, fmt.Errorf("%w: %q", ErrUnknownOption, name)
		}
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

func parseKeys(value any) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		keys := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: keys must be strings, got %T", ErrInvalidOption, item)
			}
			keys = append(keys, s)
		}
		return keys, nil
	default:
		return nil, fmt.Errorf("%w: keys must be a string or list, got %T", ErrInvalidOption, value)
	}
}

// parseTTL accepts a duration, a duration string, or a number of seconds.
func parseTTL(value any) (time.Duration, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("%w: ttl %q: %v", ErrInvalidOption, v, err)
		}
		return d, nil
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("%w: ttl must be a duration or seconds, got %T", ErrInvalidOption, value)
	}
}
