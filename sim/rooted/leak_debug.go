//go:build rooted_debug

package rooted

const panicOnLeak = true
