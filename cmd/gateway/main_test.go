package main

import "testing"

// TestMain_WiringOnly records why cmd/gateway has no unit tests of its own.
func TestMain_WiringOnly(t *testing.T) {
	t.Skip("main.go only wires internal packages; the full pipeline is exercised end to end by internal/http gateway tests via internal/testhelpers")
}
