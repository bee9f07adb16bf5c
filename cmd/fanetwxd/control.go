package main

import (
	"fmt"
	"os"

	"github.com/fanetwx/fanetwxd/internal/singleinstance"
)

// sendQuit asks a running instance to shut down and reports the result on
// stderr, returning the process exit code.
func sendQuit() int {
	return sendCommand(singleinstance.Command{Kind: "quit"})
}

// sendMessage hands a "MFR:DEV text" transmit request to a running
// instance, per --message/-m.
func sendMessage(arg string) int {
	return sendCommand(singleinstance.Command{Kind: "message", Arg: arg})
}

// sendInject hands a raw receive frame to a running instance, per
// --inject/-i; for debugging only.
func sendInject(arg string) int {
	return sendCommand(singleinstance.Command{Kind: "inject", Arg: arg})
}

func sendCommand(cmd singleinstance.Command) int {
	if err := singleinstance.Send(sockPath, cmd); err != nil {
		fmt.Fprintf(os.Stderr, "fanetwxd: %v\n", err)
		return 1
	}
	return 0
}
