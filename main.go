package main

import (
	"github.com/ColonelBlimp/bpmdetect/cmd"
	"github.com/ColonelBlimp/bpmdetect/internal/recovery"
)

func main() {
	defer recovery.HandlePanic()
	cmd.Execute()
}
