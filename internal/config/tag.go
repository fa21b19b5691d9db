/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package config

import "fmt"

// DefaultTagFormat is used when registry.tag_format is not set.
const DefaultTagFormat = "{{ .domain }}/{{ .challenge }}-{{ .container }}:{{ .profile }}"

// ResolveTag renders the image tag for one challenge container.
func ResolveTag(format, domain, challenge, container, profile string) (string, error) {
	if format == "" {
		format = DefaultTagFormat
	}
	return RenderStrict("tag_format", format, map[string]any{
		"domain":    domain,
		"challenge": challenge,
		"container": container,
		"profile":   profile,
	})
}

// ContainerTag is the tag a pod of this challenge is built as for profile.
func (c *ChallengeConfig) ContainerTag(cfg *RcdsConfig, profile, pod string) (string, error) {
	tag, err := ResolveTag(cfg.Registry.TagFormat, cfg.Registry.Domain, c.Slug(), pod, profile)
	if err != nil {
		return "", fmt.Errorf("could not build tag for %s container %s: %w", c.Directory, pod, err)
	}
	return tag, nil
}

// ImageRef is the image a pod runs: its built tag, or the upstream image.
func (c *ChallengeConfig) ImageRef(cfg *RcdsConfig, profile string, pod *Pod) (string, error) {
	if !pod.Image.IsBuild() {
		return pod.Image.Image, nil
	}
	return c.ContainerTag(cfg, profile, pod.Name)
}
