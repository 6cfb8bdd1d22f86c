package main

import "hourmeter-backend/cmd/hourmeterd/cmd"

func main() {
	cmd.Execute()
}
