package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseArgs(t *testing.T) {
	a := parseArgs([]string{"add", "--name", "ACME", "--no-gap", "--padding", "4", "--date-range"})

	assert.Equal(t, []string{"add"}, a.positional)
	assert.Equal(t, "ACME", a.values["name"])
	assert.Equal(t, int64(4), a.int64("padding", 0))
	assert.Equal(t, int64(1), a.int64("next", 1))
	assert.True(t, a.flags["no-gap"])
	assert.True(t, a.flags["date-range"])
	assert.Nil(t, a.id("org"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "INV", truncate("INV", 12))
	assert.Equal(t, "Customer ...", truncate("Customer Invoices", 12))
}
