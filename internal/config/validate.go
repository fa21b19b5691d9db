/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError holds every problem found, not just the first.
type ValidationError struct {
	Errs []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d config error(s):\n  %s", len(e.Errs), strings.Join(msgs, "\n  "))
}

func (e *ValidationError) Unwrap() []error { return e.Errs }

// Validate cross-checks the deploy map against the parsed challenges.
func (c *RcdsConfig) Validate(chals []*ChallengeConfig) error {
	known := make(map[string]bool, len(chals))
	for _, chal := range chals {
		known[chal.Directory] = true
	}

	var errs []error
	for _, profile := range sortedKeys(c.Deploy) {
		if _, ok := c.Profiles[profile]; !ok {
			errs = append(errs, fmt.Errorf("deploy section references unknown profile %q", profile))
		}
		for _, dir := range sortedKeys(c.Deploy[profile]) {
			if !known[dir] {
				errs = append(errs, fmt.Errorf("profile %q deploys challenge %q which does not exist", profile, dir))
			}
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errs: errs}
	}
	return nil
}

// EnabledChallenges returns the challenges set to true in the profile's deploy
// map, ordered by directory.
func (c *RcdsConfig) EnabledChallenges(profile string, chals []*ChallengeConfig) ([]*ChallengeConfig, error) {
	if _, err := c.Profile(profile); err != nil {
		return nil, err
	}

	byDir := make(map[string]*ChallengeConfig, len(chals))
	for _, chal := range chals {
		byDir[chal.Directory] = chal
	}

	var enabled []*ChallengeConfig
	for _, dir := range sortedKeys(c.Deploy[profile]) {
		if !c.Deploy[profile][dir] {
			continue
		}
		chal, ok := byDir[dir]
		if !ok {
			return nil, fmt.Errorf("challenge %q enabled in profile %q was not found", dir, profile)
		}
		enabled = append(enabled, chal)
	}
	return enabled, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
