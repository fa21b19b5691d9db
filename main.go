/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/osusec/beavercds-ng/cmd"

func main() {
	cmd.Execute()
}
