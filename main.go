package main

import (
	"Bt1QLink/cmd"
)

func main() {
	cmd.Execute()
}
