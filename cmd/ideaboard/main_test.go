package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginHosts(t *testing.T) {
	t.Parallel()

	got := originHosts([]string{"http://localhost:5173", "https://board.example.com", "*.example.org", "*"})
	assert.Equal(t, []string{"localhost:5173", "board.example.com", "*.example.org", "*"}, got)
}
