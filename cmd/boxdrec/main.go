package main

import "github.com/Another0Noob/boxd-recommend/cmd"

func main() {
	cmd.Execute()
}
