package main

import "github.com/marshallshelly/slate-orm/cmd/slate/commands"

func main() {
	commands.Execute()
}
