package main

import (
	"fmt"
	"os"

	"journal-notify/pkg/notifyclient"
)

func main() {
	if err := notifyclient.RunCLI(os.Args[0], os.Args[1:], os.Stderr); err != nil {
		if usage, ok := err.(notifyclient.UsageError); ok {
			fmt.Fprintln(os.Stderr, usage.Error())
			for _, line := range usage.UsageLines() {
				fmt.Fprintln(os.Stderr, line)
			}
			os.Exit(2)
		}
		os.Exit(1)
	}
}
