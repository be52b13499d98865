package main

import "github.com/matheuscscp/oauth2-flow-coordinator/cmd"

var version = "dev"

func main() {
	cmd.SetVersion(version)
	cmd.Execute()
}
