//go:build !llama

package engine

// NewNative fails in builds without the llama tag so default builds stay
// CGO-free.
func NewNative(root string, cfg Config) (Engine, error) {
	return nil, ErrDependencyUnavailable("native engine not built (missing 'llama' build tag)")
}
