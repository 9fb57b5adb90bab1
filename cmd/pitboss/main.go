package main

import "github.com/derickschaefer/pitboss/cmd"

func main() {
	cmd.Execute()
}
