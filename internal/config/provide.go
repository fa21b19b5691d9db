/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Packaging is how provided files are handed to players.
type Packaging int

const (
	// AsIs provides each file under its own name.
	AsIs Packaging = iota
	// Rename provides a single file under a new name.
	Rename
	// Archive zips all files into one archive.
	Archive
)

func (p Packaging) String() string {
	switch p {
	case AsIs:
		return "as-is"
	case Rename:
		return "rename"
	case Archive:
		return "archive"
	}
	return fmt.Sprintf("Packaging(%d)", int(p))
}

// Provide is one entry of a challenge's provide list. Files come from the
// challenge directory, or from the named pod's container when Container is set.
type Provide struct {
	Container string
	Files     []string
	As        string
	Packaging Packaging
}

func (p Provide) FromContainer() bool { return p.Container != "" }

// UnmarshalYAML picks the provide shape:
//
//	"file"                          -> repo, as-is
//	{include: [a, b]}               -> as-is
//	{include: a, as: b}             -> rename
//	{include: [a, b], as: c.zip}    -> archive
//
// with `from: <pod>` selecting a container source for any mapping form.
func (p *Provide) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*p = Provide{Files: []string{node.Value}, Packaging: AsIs}
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: provide must be a path or a mapping", node.Line)
	}

	var raw struct {
		From    string    `yaml:"from"`
		As      string    `yaml:"as"`
		Include yaml.Node `yaml:"include"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	out := Provide{Container: raw.From, As: raw.As}
	switch raw.Include.Kind {
	case yaml.ScalarNode:
		out.Files = []string{raw.Include.Value}
		out.Packaging = Rename
	case yaml.SequenceNode:
		if err := raw.Include.Decode(&out.Files); err != nil {
			return err
		}
		out.Packaging = Archive
	default:
		return fmt.Errorf("line %d: provide is missing include", node.Line)
	}
	if len(out.Files) == 0 {
		return fmt.Errorf("line %d: provide include is empty", node.Line)
	}
	if raw.As == "" {
		out.Packaging = AsIs
	}

	*p = out
	return nil
}
