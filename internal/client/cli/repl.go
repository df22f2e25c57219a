package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	List(ctx context.Context) error
	Shared(ctx context.Context) error
	Show(ctx context.Context, args []string) error
	Add(ctx context.Context) error
	Share(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Workflows(ctx context.Context) error
	Sign(ctx context.Context, args []string) error
}

// runREPL reads commands from reader and dispatches them to a until EOF,
// "exit" or "quit". Commands other than help, login and exit require a
// session. Handler errors are reported by the handlers themselves.
//
//	login                         authenticate with the wallet
//	list                          list own secrets
//	shared                        list secrets shared with me
//	show <id>                     decrypt and print a secret
//	add                           create a secret
//	share <id> <address> [ttl]    grant access, optionally expiring
//	delete <id>                   delete an owned secret
//	workflows                     list multi-signature workflows
//	sign <id>                     approve a workflow
//	logout
//
// The reader is shared with the prompts of interactive commands such as add,
// so both consume the same buffered input.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("safelog %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: (l)ist, shared, show, add, share, delete, workflows, sign, logout, exit")
			} else {
				printlnFn("Available commands: login, exit")
			}
			continue
		case "login":
			_ = a.Login(ctx)
			continue
		case "exit", "quit":
			printlnFn("Bye!")
			return
		}

		if !a.isLoggedIn() {
			if isKnown(cmd) {
				printlnFn("Please login first")
			} else {
				printlnFn("Unknown command:", cmd)
			}
			continue
		}

		switch cmd {
		case "l", "list":
			_ = a.List(ctx)
		case "shared":
			_ = a.Shared(ctx)
		case "show":
			_ = a.Show(ctx, args)
		case "add":
			_ = a.Add(ctx)
		case "share":
			_ = a.Share(ctx, args)
		case "delete":
			_ = a.Delete(ctx, args)
		case "workflows":
			_ = a.Workflows(ctx)
		case "sign":
			_ = a.Sign(ctx, args)
		case "logout":
			_ = a.Logout(ctx)
		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}

func isKnown(cmd string) bool {
	switch cmd {
	case "l", "list", "shared", "show", "add", "share", "delete", "workflows", "sign", "logout":
		return true
	}
	return false
}
