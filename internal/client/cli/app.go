package cli

import (
	"bufio"
	"context"
	"io"
	"log"
	"os"
	"time"

	"github.com/dmitrijs2005/safelog/internal/client/client"
	"github.com/dmitrijs2005/safelog/internal/client/config"
	"github.com/dmitrijs2005/safelog/internal/client/wallet"
	"github.com/dmitrijs2005/safelog/internal/common"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type App struct {
	config   *config.Config
	api      client.Client
	wallet   *wallet.Wallet
	vaultKey []byte
	session  *client.Session
	Mode     Mode
	reader   *bufio.Reader
	out      io.Writer
}

func NewApp(c *config.Config) *App {
	return &App{
		config: c,
		api:    client.NewHTTPClient(c.ServerURL, c.RequestTimeout),
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}
}

func (a *App) setMode(mode Mode) {
	if a.Mode != mode {
		a.Mode = mode
		log.Printf("Switched to %s mode\n", mode)
	}
}

func (a *App) Run(ctx context.Context) {
	defer func() { common.WipeByteArray(a.vaultKey) }()
	a.Root(ctx)
}

func (a *App) isLoggedIn() bool {
	return a.session != nil && a.vaultKey != nil
}

func (a *App) address() string {
	if a.wallet == nil {
		return ""
	}
	return a.wallet.Address()
}

// StartOnlineStatusWatcher pings the server every interval and flips Mode
// accordingly until ctx is done.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := a.api.Ping(pctx)
			cancel()

			if err != nil {
				a.setMode(ModeOffline)
			} else {
				a.setMode(ModeOnline)
			}

		case <-ctx.Done():
			return
		}
	}
}
