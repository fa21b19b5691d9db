/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestProvideShapes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Provide
	}{
		{
			name: "bare string",
			in:   `foo.txt`,
			want: Provide{Files: []string{"foo.txt"}, Packaging: AsIs},
		},
		{
			name: "repo list",
			in:   `{include: [a, b]}`,
			want: Provide{Files: []string{"a", "b"}, Packaging: AsIs},
		},
		{
			name: "repo rename",
			in:   `{include: a, as: b}`,
			want: Provide{Files: []string{"a"}, As: "b", Packaging: Rename},
		},
		{
			name: "repo archive",
			in:   `{as: x.zip, include: [a, b]}`,
			want: Provide{Files: []string{"a", "b"}, As: "x.zip", Packaging: Archive},
		},
		{
			name: "container list",
			in:   `{from: main, include: [/a, /b]}`,
			want: Provide{Container: "main", Files: []string{"/a", "/b"}, Packaging: AsIs},
		},
		{
			name: "container rename",
			in:   `{from: main, include: /chal/notsh, as: notsh}`,
			want: Provide{Container: "main", Files: []string{"/chal/notsh"}, As: "notsh", Packaging: Rename},
		},
		{
			name: "container archive",
			in:   `{from: main, include: [libc.so.6, notsh], as: notsh.zip}`,
			want: Provide{Container: "main", Files: []string{"libc.so.6", "notsh"}, As: "notsh.zip", Packaging: Archive},
		},
		{
			name: "single item list with rename is an archive",
			in:   `{include: [a], as: a.zip}`,
			want: Provide{Files: []string{"a"}, As: "a.zip", Packaging: Archive},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Provide
			require.NoError(t, yaml.Unmarshal([]byte(tt.in), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProvideInvalid(t *testing.T) {
	for _, in := range []string{`{as: x}`, `{include: []}`, `[a, b]`} {
		var got Provide
		assert.Error(t, yaml.Unmarshal([]byte(in), &got), in)
	}
}

func TestFlagPriority(t *testing.T) {
	tests := []struct {
		in   string
		want Flag
	}{
		{`ctf{raw}`, Flag{Kind: FlagRawString, Value: "ctf{raw}"}},
		{`{file: flag.txt}`, Flag{Kind: FlagFile, Value: "flag.txt"}},
		{`{text: "ctf{text}"}`, Flag{Kind: FlagText, Value: "ctf{text}"}},
		{`{regex: "ctf{.*}"}`, Flag{Kind: FlagRegex, Value: "ctf{.*}"}},
		{`{verifier: check}`, Flag{Kind: FlagVerifier, Value: "check"}},
		// file is checked before the other keys
		{`{text: t, file: f}`, Flag{Kind: FlagFile, Value: "f"}},
		{`{regex: r, text: t}`, Flag{Kind: FlagText, Value: "t"}},
	}

	for _, tt := range tests {
		var got Flag
		require.NoError(t, yaml.Unmarshal([]byte(tt.in), &got), tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	var bad Flag
	assert.Error(t, yaml.Unmarshal([]byte(`{nope: x}`), &bad))
}

func TestPodImageSource(t *testing.T) {
	var pods []Pod
	require.NoError(t, yaml.Unmarshal([]byte(`
- name: built
  build: .
  replicas: 2
  ports:
    - internal: 31337
      expose: { tcp: 30124 }
- name: custom
  build:
    context: src
    dockerfile: Containerfile
    args: { B: "2", A: "1" }
  env: [FOO=bar, EMPTY=]
- name: upstream
  image: nginx:latest
  env: { X: y }
  ports:
    - internal: 80
      expose: { http: web }
`), &pods))

	require.Len(t, pods, 3)

	assert.Equal(t, &BuildSpec{Context: ".", Dockerfile: "Dockerfile"}, pods[0].Image.Build)
	assert.Equal(t, 2, pods[0].Replicas)
	assert.Equal(t, []PortConfig{{Internal: 31337, Expose: Expose{TCP: 30124}}}, pods[0].Ports)

	assert.Equal(t, &BuildSpec{
		Context:    "src",
		Dockerfile: "Containerfile",
		Args:       KeyValues{{"A", "1"}, {"B", "2"}},
	}, pods[1].Image.Build)
	assert.Equal(t, 1, pods[1].Replicas)
	assert.Equal(t, KeyValues{{"FOO", "bar"}, {"EMPTY", ""}}, pods[1].Env)

	assert.False(t, pods[2].Image.IsBuild())
	assert.Equal(t, "nginx:latest", pods[2].Image.Image)
	assert.Equal(t, map[string]string{"X": "y"}, pods[2].Env.Map())
	assert.Equal(t, Expose{HTTP: "web"}, pods[2].Ports[0].Expose)
}

func TestPodInvalid(t *testing.T) {
	tests := map[string]string{
		"both sources":  `{name: a, build: ., image: nginx}`,
		"no source":     `{name: a}`,
		"no name":       `{image: nginx}`,
		"both exposes":  `{name: a, image: nginx, ports: [{internal: 1, expose: {tcp: 1, http: a}}]}`,
		"no expose":     `{name: a, image: nginx, ports: [{internal: 1, expose: {}}]}`,
		"port in range": `{name: a, image: nginx, ports: [{internal: 1, expose: {tcp: 70000}}]}`,
	}
	for name, in := range tests {
		var p Pod
		assert.Error(t, yaml.Unmarshal([]byte(in), &p), name)
	}
}

func writeChallenge(t *testing.T, root, dir, contents string) {
	t.Helper()
	path := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, ChallengeFile), []byte(contents), 0o644))
}

func TestLoadChallenges(t *testing.T) {
	root := t.TempDir()
	writeChallenge(t, root, "pwn/notsh", `
name: notsh
author: somebody
description: |
  {{ .nc }}
difficulty: 2
flag: { file: ./flag }
provide:
  - { from: main, include: [/chal/notsh, /lib/libc.so.6], as: notsh.zip }
pods:
  - name: main
    build: .
    ports:
      - internal: 31337
        expose: { tcp: 30124 }
`)
	writeChallenge(t, root, "web/bar", `
name: bar
author: somebody
description: web
difficulty: 1
flag: ctf{bar}
`)
	// too deep, ignored
	writeChallenge(t, root, "web/bar/nested", `name: nested`)

	chals, err := LoadChallenges(root)
	require.NoError(t, err)
	require.Len(t, chals, 2)

	notsh := chals[0]
	assert.Equal(t, "pwn/notsh", notsh.Directory)
	assert.Equal(t, "pwn", notsh.Category)
	assert.Equal(t, "pwn-notsh", notsh.Slug())
	assert.Equal(t, "notsh", notsh.NameSlug())
	assert.Equal(t, filepath.Join(root, "pwn", "notsh"), notsh.Dir())
	assert.Equal(t, Flag{Kind: FlagFile, Value: "./flag"}, notsh.Flag)
	assert.Equal(t, Archive, notsh.Provide[0].Packaging)

	assert.Equal(t, "web", chals[1].Category)
	assert.Empty(t, chals[1].Pods)
}

func TestLoadChallengesCollectsErrors(t *testing.T) {
	root := t.TempDir()
	writeChallenge(t, root, "a/one", `name: [broken`)
	writeChallenge(t, root, "b/two", `{name: two, flag: x, pods: [{name: p}]}`)
	writeChallenge(t, root, "c/three", `{name: three, flag: x, provide: [{from: nope, include: a}]}`)

	_, err := LoadChallenges(root)
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Errs, 3)
	assert.ErrorContains(t, err, "a/one")
	assert.ErrorContains(t, err, "unknown container")
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "misc-some-chal", slugify("misc/Some_Chal"))
	assert.Equal(t, "web-a-b", slugify("/web/a.b/"))
}
