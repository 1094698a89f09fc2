package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidateFile(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  string
		wantErr  string
	}{
		{
			name:     "valid single profile",
			filename: "old_smith.yaml",
			content:  "id: old_smith\nname: Kaelen\ntraits: [grumpy]\ndialogue_style: Gruff.\n",
		},
		{
			name:     "valid list in json",
			filename: "pair.json",
			content:  `[{"id":"a","name":"A","traits":["x"],"dialogue_style":"s"},{"id":"b","name":"B","traits":["y"],"dialogue_style":"s"}]`,
		},
		{
			name:     "bad extension",
			filename: "smith.txt",
			content:  "id: smith",
			wantErr:  "extension",
		},
		{
			name:     "bad filename",
			filename: "Old-Smith.yaml",
			content:  "id: old_smith\nname: Kaelen\n",
			wantErr:  "snake_case",
		},
		{
			name:     "unknown field",
			filename: "typo.yaml",
			content:  "id: typo\nname: T\ntrait: [x]\n",
			wantErr:  "strict unmarshaling",
		},
		{
			name:     "missing name",
			filename: "nameless.yaml",
			content:  "id: nameless\ntraits: [x]\ndialogue_style: s\n",
			wantErr:  "name is required",
		},
		{
			name:     "bad id and no traits",
			filename: "loud.yaml",
			content:  "id: Loud-One\nname: Loud\ndialogue_style: s\n",
			wantErr:  "should be lowercase snake_case",
		},
		{
			name:     "empty file",
			filename: "empty.yaml",
			content:  "",
			wantErr:  "no profiles",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &CharacterValidator{seen: make(map[string]string)}
			path := writeFile(t, t.TempDir(), tt.filename, tt.content)

			err := v.validateFile(path)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateFile_DuplicateAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	v := &CharacterValidator{seen: make(map[string]string)}
	profile := "id: smith\nname: Kaelen\ntraits: [grumpy]\ndialogue_style: Gruff.\n"

	require.NoError(t, v.validateFile(writeFile(t, dir, "smith.yaml", profile)))
	err := v.validateFile(writeFile(t, dir, "smith_copy.yaml", profile))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already declared")
}

func TestShippedCharacters(t *testing.T) {
	files, err := filepath.Glob("../../data/characters/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	v := &CharacterValidator{seen: make(map[string]string)}
	for _, f := range files {
		assert.NoError(t, v.validateFile(f), f)
	}
}
