// Package cli implements stagectl, a command-line client for the staging
// service.
//
// Commands:
//
//	ping
//	token <session-id>           mint an access token (needs -s)
//	stage <file|->               stream a file (or stdin) into staging
//	load <id> [file|-]           download a staged payload
//	describe <id> <name>
//	relay <id> <name>
//	archive <id> <name>
//	delete <id>
//	list
//	sweep
package cli
