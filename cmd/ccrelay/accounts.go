package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ccrelay/ccrelay/internal/pool"
)

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "manage a backend's account pool",
	}
	cmd.AddCommand(newAccountsListCmd())
	cmd.AddCommand(newAccountsAddCmd())
	cmd.AddCommand(newAccountsRemoveCmd())
	cmd.AddCommand(newAccountsEnableCmd(true))
	cmd.AddCommand(newAccountsEnableCmd(false))
	return cmd
}

func openAccountsPool(path string) (*pool.Pool, error) {
	p := pool.New(path, zap.NewNop())
	if err := p.Initialize(); err != nil {
		return nil, err
	}
	return p, nil
}

func newAccountsListCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list accounts in a pool file",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openAccountsPool(file)
			if err != nil {
				return err
			}
			now := time.Now()
			for _, a := range p.Accounts() {
				fmt.Printf("%s\t%s\tenabled=%v\tinvalid=%v\tstate=%s\n",
					a.ID(), a.Email(), a.Enabled(), a.Invalid(), a.Status(now))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "accounts JSON file")
	cmd.MarkFlagRequired("file")
	return cmd
}

func newAccountsAddCmd() *cobra.Command {
	var file, id, email, kind, apiToken, machineID, longLived, refreshToken string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "add an account to a pool file",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openAccountsPool(file)
			if err != nil {
				return err
			}

			var cred pool.Credential
			switch kind {
			case "api_token":
				cred = pool.Credential{Kind: pool.CredentialAPIToken, APIToken: apiToken, MachineID: machineID}
			case "long_lived":
				cred = pool.Credential{Kind: pool.CredentialLongLived, LongLivedToken: longLived}
			case "oauth":
				cred = pool.Credential{Kind: pool.CredentialOAuth, RefreshToken: refreshToken}
			default:
				return fmt.Errorf("unknown credential kind %q (want api_token, long_lived, or oauth)", kind)
			}

			account := pool.NewAccount(id, email, cred, time.Now())
			p.AddAccount(account)
			p.SaveToDisk()
			waitForWriterLoop()
			fmt.Printf("added account %s\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "accounts JSON file")
	cmd.Flags().StringVar(&id, "id", "", "account id")
	cmd.Flags().StringVar(&email, "email", "", "account email, for display only")
	cmd.Flags().StringVar(&kind, "kind", "", "credential kind: api_token, long_lived, or oauth")
	cmd.Flags().StringVar(&apiToken, "api-token", "", "static bearer token, for kind=api_token")
	cmd.Flags().StringVar(&machineID, "machine-id", "", "stable device id, for kind=api_token")
	cmd.Flags().StringVar(&longLived, "long-lived-token", "", "long-lived token to mint from, for kind=long_lived")
	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "OAuth refresh token, for kind=oauth")
	cmd.MarkFlagRequired("file")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("kind")
	return cmd
}

func newAccountsRemoveCmd() *cobra.Command {
	var file, id string
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "remove an account from a pool file",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openAccountsPool(file)
			if err != nil {
				return err
			}
			if err := p.RemoveAccount(id); err != nil {
				return err
			}
			p.SaveToDisk()
			waitForWriterLoop()
			fmt.Printf("removed account %s\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "accounts JSON file")
	cmd.Flags().StringVar(&id, "id", "", "account id")
	cmd.MarkFlagRequired("file")
	cmd.MarkFlagRequired("id")
	return cmd
}

func newAccountsEnableCmd(enable bool) *cobra.Command {
	use := "disable"
	short := "disable an account without removing it"
	if enable {
		use = "enable"
		short = "re-enable a disabled account"
	}
	var file, id string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openAccountsPool(file)
			if err != nil {
				return err
			}
			if err := p.SetEnabled(id, enable); err != nil {
				return err
			}
			p.SaveToDisk()
			waitForWriterLoop()
			fmt.Printf("%s account %s\n", use+"d", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "accounts JSON file")
	cmd.Flags().StringVar(&id, "id", "", "account id")
	cmd.MarkFlagRequired("file")
	cmd.MarkFlagRequired("id")
	return cmd
}
