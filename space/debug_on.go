//go:build regiondebug

package space

// debugChecks enables internal invariant assertions.
const debugChecks = true
