/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package logging

import (
	"io"
	"os"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
)

// Setup configures the standard logger for the given -v count.
func Setup(verbosity int) {
	SetupWriter(os.Stderr, verbosity)
}

func SetupWriter(w io.Writer, verbosity int) {
	log.SetOutput(w)
	log.SetFormatter(&log.TextFormatter{
		DisableTimestamp: true,
		ForceColors:      !color.NoColor,
		PadLevelText:     true,
	})
	log.SetLevel(Level(verbosity))
}

func Level(verbosity int) log.Level {
	switch {
	case verbosity <= 0:
		return log.InfoLevel
	case verbosity == 1:
		return log.DebugLevel
	default:
		return log.TraceLevel
	}
}

var dim = color.New(color.Faint)

// Dim renders s de-emphasized, for passthrough output like build logs.
func Dim(s string) string {
	return dim.Sprint(s)
}

var (
	Good = color.New(color.FgGreen, color.Bold).SprintFunc()
	Bad  = color.New(color.FgRed, color.Bold).SprintFunc()
)
