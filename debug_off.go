//go:build !multiarena_debug

package multiarena

const debugEnabled = false
