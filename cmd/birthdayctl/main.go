// Command birthdayctl maintains the birthday wall's stored messages: backups,
// restores, deduplication, reconciliation of exports, chunked migration and
// image optimization. It talks to the service through its HTTP API.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
