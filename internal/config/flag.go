/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

type FlagKind int

const (
	FlagRawString FlagKind = iota
	FlagFile
	FlagText
	FlagRegex
	FlagVerifier
)

func (k FlagKind) String() string {
	switch k {
	case FlagRawString:
		return "string"
	case FlagFile:
		return "file"
	case FlagText:
		return "text"
	case FlagRegex:
		return "regex"
	case FlagVerifier:
		return "verifier"
	}
	return fmt.Sprintf("FlagKind(%d)", int(k))
}

// Flag is the challenge flag. Value holds the flag itself, or the file path,
// regex, or verifier name depending on Kind.
type Flag struct {
	Kind  FlagKind
	Value string
}

// flagKeys is the order mapping keys are checked in; the first present wins.
var flagKeys = []struct {
	key  string
	kind FlagKind
}{
	{"file", FlagFile},
	{"text", FlagText},
	{"regex", FlagRegex},
	{"verifier", FlagVerifier},
}

func (f *Flag) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*f = Flag{Kind: FlagRawString, Value: node.Value}
		return nil
	case yaml.MappingNode:
		var m map[string]string
		if err := node.Decode(&m); err != nil {
			return err
		}
		for _, k := range flagKeys {
			if v, ok := m[k.key]; ok {
				*f = Flag{Kind: k.kind, Value: v}
				return nil
			}
		}
		return fmt.Errorf("line %d: flag must be a string or one of file, text, regex, verifier", node.Line)
	}
	return fmt.Errorf("line %d: invalid flag", node.Line)
}
