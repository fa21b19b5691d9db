/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChallenges() []*ChallengeConfig {
	return []*ChallengeConfig{
		{Name: "foo", Directory: "misc/foo"},
		{Name: "bar", Directory: "rev/bar"},
		{Name: "baz", Directory: "web/baz"},
	}
}

func TestEnabledChallenges(t *testing.T) {
	cfg := &RcdsConfig{
		Deploy: map[string]map[string]bool{
			"testing": {"web/baz": true, "misc/foo": true, "rev/bar": false},
		},
		Profiles: map[string]ProfileConfig{"testing": {}, "empty": {}},
	}

	enabled, err := cfg.EnabledChallenges("testing", testChallenges())
	require.NoError(t, err)
	require.Len(t, enabled, 2)
	assert.Equal(t, "misc/foo", enabled[0].Directory)
	assert.Equal(t, "web/baz", enabled[1].Directory)

	enabled, err = cfg.EnabledChallenges("empty", testChallenges())
	require.NoError(t, err)
	assert.Empty(t, enabled)

	_, err = cfg.EnabledChallenges("missing", testChallenges())
	assert.Error(t, err)
}

func TestValidateReportsAll(t *testing.T) {
	cfg := &RcdsConfig{
		Deploy: map[string]map[string]bool{
			"testing": {"misc/foo": true, "misc/gone": true},
			"ghost":   {"rev/bar": true, "pwn/gone": false},
		},
		Profiles: map[string]ProfileConfig{"testing": {}},
	}

	err := cfg.Validate(testChallenges())
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Errs, 3)
	assert.ErrorContains(t, err, `unknown profile "ghost"`)
	assert.ErrorContains(t, err, `"misc/gone"`)
	assert.ErrorContains(t, err, `"pwn/gone"`)
}

func TestValidateOK(t *testing.T) {
	cfg := &RcdsConfig{
		Deploy:   map[string]map[string]bool{"testing": {"misc/foo": true}},
		Profiles: map[string]ProfileConfig{"testing": {}},
	}
	assert.NoError(t, cfg.Validate(testChallenges()))
}
