//go:build !debug

package assert

const panicOnViolation = false
