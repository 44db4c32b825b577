//go:build multiarena_noerrors

package multiarena

// ErrorsEnabled reports whether allocation failures are reported through
// error values. This build has them disabled: failing operations return a
// nil pointer and a nil error and leave the pool unchanged.
const ErrorsEnabled = false
