package main

import "github.com/KaramelBytes/phenodash/cmd"

func main() {
	cmd.Execute()
}
