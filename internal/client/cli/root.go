package cli

import (
	"context"
	"fmt"
	"time"
)

func (a *App) getStatus() string {
	s := ""
	if addr := a.address(); addr != "" {
		s = shortAddr(addr) + " "
	}
	if a.Mode != "" {
		s = s + string(a.Mode)
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

func shortAddr(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

// Root logs in, starts the connectivity watcher and blocks in the REPL until
// the user exits.
func (a *App) Root(ctx context.Context) {
	fmt.Fprintln(a.out, "Welcome to safelog CLI (type 'help' for commands)")

	_ = a.Login(ctx)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.StartOnlineStatusWatcher(ctx, 5*time.Second)

	runREPL(ctx, a, a.getStatus, a.reader)
}
