// Package ptr provides helpers for optional values.
package ptr

// To returns a pointer to v.
func To[T any](v T) *T { return &v }

// Deref returns the value p points to, or def when p is nil.
func Deref[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
