package main

import "github.com/frahmantamala/hospitality-access/cmd"

func main() {
	cmd.Execute()
}
