package main

import (
	"fmt"
	"os"

	"pushherd/internal/push"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "broadcast":
		err = runBroadcast(os.Args[2:])
	case "vapid-keygen":
		err = runKeygen()
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `pushherd - web push broadcast dispatcher

Usage:
  pushherd serve -config <path>
      Run the HTTP API, scheduled broadcasts and config hot reload.

  pushherd broadcast -config <path> -title <t> -body <b> [-url <u>] [-filter all|free|premium]
      Send one broadcast and print the aggregate result.

  pushherd vapid-keygen
      Generate a fresh VAPID key pair for first-time setup.
`)
}

func runKeygen() error {
	priv, pub, err := push.GenerateVAPIDKeys()
	if err != nil {
		return err
	}
	fmt.Printf("public_key:  %s\nprivate_key: %s\n", pub, priv)
	return nil
}
