package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithin(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		path string
		want bool
	}{
		{root, true},
		{filepath.Join(root, "thumbs"), true},
		{filepath.Join(root, "a", "b", "..", "thumbs"), true},
		{filepath.Join(root, "..", "thumbs"), false},
		{root + "-thumbs", false},
		{filepath.Join(root, "..thumbs"), true},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, within(tc.path, root), tc.path)
	}
}
