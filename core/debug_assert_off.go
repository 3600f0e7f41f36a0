//go:build !debug

package core

// debugAssertNoPriorChildren is a no-op outside -tags debug builds.
func debugAssertNoPriorChildren(*nodeHeader) {}
