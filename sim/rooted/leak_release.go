//go:build !rooted_debug

package rooted

// Without rooted_debug a forgotten handle is logged and leaked.
const panicOnLeak = false
