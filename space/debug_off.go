//go:build !regiondebug

package space

const debugChecks = false
