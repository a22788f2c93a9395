package fragcache

// Status classifies the outcome of a fragment read.
type Status uint8

const (
	// Miss means the store holds no entry for the fragment.
	Miss Status = iota
	// Hit means the store holds a non-nil value.
	Hit
	// HitNil means the store holds an entry whose value is nil.
	HitNil
)

func (s Status) String() string {
	switch s {
	case Hit:
		return "hit"
	case HitNil:
		return "hit_nil"
	default:
		return "miss"
	}
}

// Result is the tagged outcome of Fragment.Read.
type Result struct {
	Status Status
	Value  any
}

// Cached reports whether the store was authoritative for the fragment.
func (r Result) Cached() bool {
	return r.Status != Miss
}

func missResult() Result { return Result{Status: Miss} }

func hitResult(v any) Result {
	if v == nil {
		return Result{Status: HitNil}
	}
	return Result{Status: Hit, Value: v}
}
