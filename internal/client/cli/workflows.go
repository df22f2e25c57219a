package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/dmitrijs2005/safelog/internal/client/client"
	"github.com/dmitrijs2005/safelog/internal/common"
	"github.com/dmitrijs2005/safelog/internal/cryptox"
)

// approvalMessage is what a signer's wallet signs to approve a release.
func approvalMessage(wf *client.Workflow) string {
	return fmt.Sprintf("Approve release of %q (workflow %d) in %s", wf.Name, wf.ID, common.AppName)
}

func (a *App) Workflows(ctx context.Context) error {
	wfs, err := a.api.ListWorkflows(ctx)
	if err != nil {
		fmt.Fprintln(a.out, "Error listing workflows:", err)
		return err
	}
	if len(wfs) == 0 {
		fmt.Fprintln(a.out, "No workflows")
		return nil
	}
	me := a.address()
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tSIGNED\tACTION")
	for i := range wfs {
		wf := &wfs[i]
		signed := 0
		for _, s := range wf.Signers {
			if s.HasSigned {
				signed++
			}
		}
		action := ""
		if wf.Pending(me) {
			action = "sign"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d/%d\t%s\n", wf.ID, wf.Name, wf.Status, signed, len(wf.Signers), action)
	}
	return tw.Flush()
}

// lastToSign reports whether addr is the only signer still missing.
func lastToSign(wf *client.Workflow, addr string) bool {
	for _, s := range wf.Signers {
		if !s.HasSigned && s.UserAddress != addr {
			return false
		}
	}
	return true
}

// Sign approves workflow <id>. The final signer also re-wraps the secret
// key for every recipient so the server can release it.
func (a *App) Sign(ctx context.Context, args []string) error {
	id, err := parseID(args)
	if err != nil {
		fmt.Fprintln(a.out, "Usage: sign <id>")
		return err
	}
	wf, err := a.api.GetWorkflow(ctx, id)
	if err != nil {
		fmt.Fprintln(a.out, "Error fetching workflow:", err)
		return err
	}
	me := a.address()
	if !wf.Pending(me) {
		fmt.Fprintln(a.out, "Nothing to sign for this workflow")
		return nil
	}

	sig, err := a.wallet.Sign(approvalMessage(wf))
	if err != nil {
		return err
	}

	var keys map[string]string
	if lastToSign(wf, me) {
		keys, err = a.recipientKeys(ctx, wf)
		if err != nil {
			fmt.Fprintln(a.out, "Cannot prepare recipient keys:", err)
			return err
		}
	}

	out, err := a.api.SignWorkflow(ctx, id, sig, keys)
	if err != nil {
		fmt.Fprintln(a.out, "Error signing workflow:", err)
		return err
	}
	fmt.Fprintf(a.out, "Signed workflow %d, status: %s\n", out.ID, out.Status)
	return nil
}

func (a *App) recipientKeys(ctx context.Context, wf *client.Workflow) (map[string]string, error) {
	var mine string
	for _, s := range wf.Signers {
		if s.UserAddress == a.address() {
			mine = s.EncryptedKey
		}
	}
	if mine == "" {
		return nil, fmt.Errorf("no key share for %s", a.address())
	}
	key, err := a.wallet.Decrypt(mine)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	keys := make(map[string]string, len(wf.Recipients))
	for _, rc := range wf.Recipients {
		u, err := a.api.GetUser(ctx, rc.UserAddress)
		if err != nil {
			return nil, fmt.Errorf("recipient %s: %w", rc.UserAddress, err)
		}
		wrapped, err := cryptox.SealForPublicKey(key, u.EncryptionPublicKey)
		if err != nil {
			return nil, fmt.Errorf("recipient %s: %w", rc.UserAddress, err)
		}
		keys[rc.UserAddress] = wrapped
	}
	return keys, nil
}
