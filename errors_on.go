//go:build !multiarena_noerrors

package multiarena

// ErrorsEnabled reports whether allocation failures are reported through
// error values. Building with the multiarena_noerrors tag sets it to
// false, in which case failing operations return a nil pointer and a nil
// error and leave the pool unchanged.
const ErrorsEnabled = true
