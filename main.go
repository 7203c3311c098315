package main

import "github.com/andresmejia3/faceprep/cmd"

func main() {
	cmd.Execute()
}
