/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTagDeterministic(t *testing.T) {
	tag, err := ResolveTag("", "registry.example/test", "pwn-notsh", "main", "testing")
	require.NoError(t, err)
	assert.Equal(t, "registry.example/test/pwn-notsh-main:testing", tag)

	again, err := ResolveTag(DefaultTagFormat, "registry.example/test", "pwn-notsh", "main", "testing")
	require.NoError(t, err)
	assert.Equal(t, tag, again)

	variants := [][4]string{
		{"other.example", "pwn-notsh", "main", "testing"},
		{"registry.example/test", "pwn-other", "main", "testing"},
		{"registry.example/test", "pwn-notsh", "helper", "testing"},
		{"registry.example/test", "pwn-notsh", "main", "prod"},
	}
	for _, v := range variants {
		other, err := ResolveTag("", v[0], v[1], v[2], v[3])
		require.NoError(t, err)
		assert.NotEqual(t, tag, other, v)
	}
}

func TestResolveTagCustomFormat(t *testing.T) {
	tag, err := ResolveTag("{{ .domain }}/chals:{{ .challenge }}-{{ .container }}-{{ .profile }}",
		"registry.example", "web-bar", "app", "prod")
	require.NoError(t, err)
	assert.Equal(t, "registry.example/chals:web-bar-app-prod", tag)
}

func TestResolveTagStrict(t *testing.T) {
	_, err := ResolveTag("{{ .domain }}/{{ .nope }}", "registry.example", "a", "b", "c")
	assert.ErrorContains(t, err, "nope")
}

func TestImageRef(t *testing.T) {
	cfg := &RcdsConfig{Registry: Registry{Domain: "registry.example", TagFormat: DefaultTagFormat}}
	chal := &ChallengeConfig{Directory: "web/bar"}

	built := &Pod{Name: "app", Image: ImageSource{Build: &BuildSpec{Context: "."}}}
	ref, err := chal.ImageRef(cfg, "prod", built)
	require.NoError(t, err)
	assert.Equal(t, "registry.example/web-bar-app:prod", ref)

	upstream := &Pod{Name: "db", Image: ImageSource{Image: "redis:7"}}
	ref, err = chal.ImageRef(cfg, "prod", upstream)
	require.NoError(t, err)
	assert.Equal(t, "redis:7", ref)
}
