package domain

// Optional holds a value that may be absent. The zero value is empty.
type Optional[T any] struct {
	value T
	set   bool
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

func (o Optional[T]) Get() (T, bool) {
	return o.value, o.set
}

func (o Optional[T]) IsSet() bool { return o.set }

// Take returns the value and leaves o empty, so a second Take reports absence.
func (o *Optional[T]) Take() (T, bool) {
	v, ok := o.value, o.set
	var zero T
	o.value, o.set = zero, false
	return v, ok
}
