package main

import "github.com/eventick/ms-go-ticketing/cmd"

func main() {
	cmd.Execute()
}
