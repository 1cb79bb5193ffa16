package session

import (
	"bytes"
	"encoding/json"
)

// Optional holds a value that may be absent. The zero Optional is absent,
// which keeps "not recorded" distinct from a recorded zero.
type Optional[T any] struct {
	value   T
	present bool
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, present: true}
}

func None[T any]() Optional[T] {
	return Optional[T]{}
}

func (o Optional[T]) Get() (T, bool) {
	return o.value, o.present
}

func (o Optional[T]) IsPresent() bool {
	return o.present
}

func (o Optional[T]) OrElse(fallback T) T {
	if !o.present {
		return fallback
	}
	return o.value
}

// IsZero lets `omitzero` drop absent values from JSON output.
func (o Optional[T]) IsZero() bool {
	return !o.present
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.present {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = None[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// Ptr converts to the nullable form used by database drivers.
func (o Optional[T]) Ptr() *T {
	if !o.present {
		return nil
	}
	v := o.value
	return &v
}

func FromPtr[T any](p *T) Optional[T] {
	if p == nil {
		return None[T]()
	}
	return Some(*p)
}
