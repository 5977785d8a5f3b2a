package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadValid(t *testing.T) {
	path := writeTemp(t, `
services:
  - name: web
    command: /usr/bin/web-server
    args: ["--port", "8080"]
  - name: worker
    command: /usr/bin/worker
`)
	f, err := Load(path)
	require.NoError(t, err)
	require.Len(t, f.Services, 2)
	assert.Equal(t, "web", f.Services[0].Name)
	assert.Equal(t, []string{"--port", "8080"}, f.Services[0].Args)
	assert.Equal(t, "worker", f.Services[1].Name)
	assert.Nil(t, f.Services[1].Args)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeTemp(t, "services: [this is not: valid")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateDuplicateName(t *testing.T) {
	f := File{Services: []Service{
		{Name: "a", Command: "/bin/a"},
		{Name: "a", Command: "/bin/b"},
	}}
	assert.Error(t, f.Validate())
}

func TestValidateEmptyName(t *testing.T) {
	f := File{Services: []Service{{Name: "", Command: "/bin/a"}}}
	assert.Error(t, f.Validate())
}

func TestValidateEmptyCommand(t *testing.T) {
	f := File{Services: []Service{{Name: "a", Command: ""}}}
	assert.Error(t, f.Validate())
}

func TestValidateNULInName(t *testing.T) {
	f := File{Services: []Service{{Name: "a\x00b", Command: "/bin/a"}}}
	assert.Error(t, f.Validate())
}

func TestValidateNULInArg(t *testing.T) {
	f := File{Services: []Service{{Name: "a", Command: "/bin/a", Args: []string{"fine", "bad\x00"}}}}
	assert.Error(t, f.Validate())
}

func TestValidateAcceptsDistinctNames(t *testing.T) {
	f := File{Services: []Service{
		{Name: "a", Command: "/bin/a"},
		{Name: "b", Command: "/bin/b"},
	}}
	assert.NoError(t, f.Validate())
}
