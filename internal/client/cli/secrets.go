package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/safelog/internal/client/client"
	"github.com/dmitrijs2005/safelog/internal/common"
	"github.com/dmitrijs2005/safelog/internal/cryptox"
)

var errUsage = errors.New("usage")

func parseID(args []string) (int64, error) {
	if len(args) == 0 {
		return 0, errUsage
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, errUsage
	}
	return id, nil
}

func (a *App) List(ctx context.Context) error {
	secrets, err := a.api.ListSecrets(ctx)
	if err != nil {
		fmt.Fprintln(a.out, "Error listing secrets:", err)
		return err
	}
	if len(secrets) == 0 {
		fmt.Fprintln(a.out, "No secrets")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tUPDATED")
	for _, s := range secrets {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.ID, s.Name, s.Type, s.UpdatedAt.Format(time.DateTime))
	}
	return tw.Flush()
}

func (a *App) Shared(ctx context.Context) error {
	grants, err := a.api.SharedWithMe(ctx)
	if err != nil {
		fmt.Fprintln(a.out, "Error listing shared secrets:", err)
		return err
	}
	if len(grants) == 0 {
		fmt.Fprintln(a.out, "Nothing shared with you")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tOWNER\tEXPIRES")
	for _, g := range grants {
		expires := "never"
		if g.ExpiresAt != nil {
			expires = g.ExpiresAt.Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", g.SecretID, g.SecretName, g.OwnerAddress, expires)
	}
	return tw.Flush()
}

// dataKey recovers the per-secret key. Owners hold it sealed under their
// vault key; everyone else holds an ECIES copy for their wallet.
func (a *App) dataKey(owner, encryptedKey string) ([]byte, error) {
	if owner == a.address() {
		return cryptox.Open(encryptedKey, a.vaultKey)
	}
	return a.wallet.Decrypt(encryptedKey)
}

func (a *App) Show(ctx context.Context, args []string) error {
	id, err := parseID(args)
	if err != nil {
		fmt.Fprintln(a.out, "Usage: show <id>")
		return err
	}
	s, err := a.api.GetSecret(ctx, id)
	if err != nil {
		fmt.Fprintln(a.out, "Error fetching secret:", err)
		return err
	}

	key, err := a.dataKey(s.OwnerAddress, s.EncryptedKey)
	if err != nil {
		fmt.Fprintln(a.out, "Cannot unwrap secret key:", err)
		return err
	}
	defer common.WipeByteArray(key)

	plain, err := cryptox.Open(s.EncryptedData, key)
	if err != nil {
		fmt.Fprintln(a.out, "Cannot decrypt secret:", err)
		return err
	}

	fmt.Fprintf(a.out, "%s (%s) owned by %s\n", s.Name, s.Type, s.OwnerAddress)
	fmt.Fprintln(a.out, string(plain))
	return nil
}

func (a *App) Add(ctx context.Context) error {
	name, err := GetSimpleText(a.reader, "Name", a.out)
	if err != nil {
		return err
	}
	body, err := GetMultiline(a.reader, "Secret content", a.out)
	if err != nil {
		return err
	}

	env, err := cryptox.SealSecret([]byte(body), a.vaultKey)
	if err != nil {
		return err
	}

	s, err := a.api.CreateSecret(ctx, client.SecretInput{
		Name:          name,
		Type:          "standard",
		EncryptedData: env.EncryptedData,
		EncryptedKey:  env.EncryptedKey,
	})
	if err != nil {
		fmt.Fprintln(a.out, "Error creating secret:", err)
		return err
	}
	fmt.Fprintf(a.out, "Created secret %d\n", s.ID)
	return nil
}

// Share grants <address> access to secret <id>, optionally for ttl seconds.
func (a *App) Share(ctx context.Context, args []string) error {
	if len(args) < 2 {
		fmt.Fprintln(a.out, "Usage: share <id> <address> [ttl-seconds]")
		return errUsage
	}
	id, err := parseID(args)
	if err != nil {
		fmt.Fprintln(a.out, "Usage: share <id> <address> [ttl-seconds]")
		return err
	}
	var ttl *int64
	if len(args) > 2 {
		v, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil || v < 0 {
			fmt.Fprintln(a.out, "ttl must be a non-negative number of seconds")
			return errUsage
		}
		ttl = &v
	}

	grantee, err := a.api.GetUser(ctx, args[1])
	if err != nil {
		fmt.Fprintln(a.out, "Error looking up recipient:", err)
		return err
	}
	if grantee.EncryptionPublicKey == "" {
		fmt.Fprintln(a.out, "Recipient has no encryption key yet")
		return cryptox.ErrInvalidPublicKey
	}

	s, err := a.api.GetSecret(ctx, id)
	if err != nil {
		fmt.Fprintln(a.out, "Error fetching secret:", err)
		return err
	}
	key, err := a.dataKey(s.OwnerAddress, s.EncryptedKey)
	if err != nil {
		fmt.Fprintln(a.out, "Cannot unwrap secret key:", err)
		return err
	}
	defer common.WipeByteArray(key)

	wrapped, err := cryptox.SealForPublicKey(key, grantee.EncryptionPublicKey)
	if err != nil {
		return err
	}
	g, err := a.api.Share(ctx, client.ShareInput{
		SecretID:       id,
		GranteeAddress: grantee.Address,
		EncryptedKey:   wrapped,
		ExpiresIn:      ttl,
	})
	if err != nil {
		fmt.Fprintln(a.out, "Error sharing secret:", err)
		return err
	}
	fmt.Fprintf(a.out, "Shared secret %d with %s (grant %d)\n", id, g.GranteeAddress, g.ID)
	return nil
}

func (a *App) Delete(ctx context.Context, args []string) error {
	id, err := parseID(args)
	if err != nil {
		fmt.Fprintln(a.out, "Usage: delete <id>")
		return err
	}
	if err := a.api.DeleteSecret(ctx, id); err != nil {
		fmt.Fprintln(a.out, "Error deleting secret:", err)
		return err
	}
	fmt.Fprintf(a.out, "Deleted secret %d\n", id)
	return nil
}
