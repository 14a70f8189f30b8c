package cmdcli

import (
	"cmp"
	"fmt"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/creachadair/authfish/aflib"
	"github.com/creachadair/authfish/clipboard"
	"github.com/creachadair/authfish/cmd/af/config"
	"github.com/creachadair/authfish/otpcode"
	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/creachadair/mds/value"
)

var Commands = []*command.C{
	{
		Name:     "list",
		Usage:    "[query]",
		Help:     "List the accounts in the accounts file.",
		SetFlags: command.Flags(flax.MustBind, &listFlags),
		Run:      command.Adapt(runList),
	},
	{
		Name:  "code",
		Usage: "<query>",
		Help: `Print a one-time password for the specified query.

The code is followed by the number of seconds it remains valid.
Use -s to shift the time step (or HOTP counter) by a number of steps.`,
		SetFlags: command.Flags(flax.MustBind, &codeFlags),
		Run:      command.Adapt(runCode),
	},
	{
		Name:  "copy",
		Usage: "<query>",
		Help: `Copy a one-time password for the specified query to the clipboard.

The number of seconds the code remains valid is printed to stdout.`,
		SetFlags: command.Flags(flax.MustBind, &codeFlags),
		Run:      command.Adapt(runCode),
	},
	{
		Name:  "totp",
		Usage: "[secret]",
		Help: `Print a TOTP code for a base32 secret.

If no secret is given on the command line, the user is prompted for it.
Whitespace, padding, and letter case in the secret are ignored.`,
		SetFlags: command.Flags(flax.MustBind, &totpFlags),
		Run:      command.Adapt(runTOTP),
	},
	watchCommand,
}

var listFlags struct {
	Arch  bool `flag:"a,Include archived accounts in the output"`
	NArch bool `flag:"n,Exclude unarchived accounts from the output"`
}

// runList implements the "list" subcommand.
func runList(env *command.Env, optQuery ...string) error {
	var query string // everything
	if len(optQuery) > 1 {
		return env.Usagef("extra arguments after query: %q", optQuery[1:])
	} else if len(optQuery) == 1 {
		query = optQuery[0]
	}

	f, err := config.LoadAccounts(env)
	if err != nil {
		return err
	}

	fa := aflib.FindAccounts(f.Accounts, query)
	slices.SortFunc(fa, func(a, b aflib.FoundAccount) int {
		return cmp.Compare(a.Account.Label, b.Account.Label)
	})

	tw := tabwriter.NewWriter(os.Stdout, 4, 0, 1, ' ', 0)
	for _, r := range fa {
		if r.Account.Archived {
			if !(listFlags.Arch || listFlags.NArch) {
				continue
			}
		} else if listFlags.NArch {
			continue
		}
		tag := value.Cond(r.Account.Archived, "*", "-")
		kind := "?"
		if c, err := f.Config(r.Account); err == nil {
			kind = c.Type
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Account.Label, tag, kind, r.Account.DisplayName())
	}
	return tw.Flush()
}

var codeFlags struct {
	Shift int  `flag:"s,Shift the time step forward by s"`
	All   bool `flag:"a,Include archived accounts in the search"`
}

// runCode implements the "code" and "copy" subcommands.
func runCode(env *command.Env, query string) error {
	f, err := config.LoadAccounts(env)
	if err != nil {
		return err
	}
	res, err := aflib.FindAccount(f, query, codeFlags.All)
	if err != nil {
		return err
	}
	c, err := f.Config(res.Account)
	if err != nil {
		return err
	}
	pw, err := aflib.GenerateCode(c, time.Now(), codeFlags.Shift)
	if err != nil {
		return fmt.Errorf("generate code for %q: %w", res.Account.Label, err)
	}

	out := pw.Code
	if env.Command.Name == "copy" {
		if err := clipboard.WriteString(pw.Code); err != nil {
			return fmt.Errorf("copying code: %w", err)
		}
		out = "<copied>"
	}
	if c.Type == "totp" {
		fmt.Printf("%s %ds\n", out, pw.Remaining)
	} else {
		fmt.Println(out)
	}
	return nil
}

var totpFlags struct {
	Algorithm string `flag:"alg,default=SHA1,Hash algorithm (SHA1, SHA256, SHA512)"`
	Digits    int    `flag:"digits,default=6,Number of digits in the code"`
	Period    int    `flag:"period,default=30,Time step in seconds"`
	Shift     int    `flag:"s,Shift the time step forward by s"`
}

// runTOTP implements the "totp" subcommand.
func runTOTP(env *command.Env, optSecret ...string) error {
	var secret string
	if len(optSecret) > 1 {
		return env.Usagef("extra arguments after secret: %q", optSecret[1:])
	} else if len(optSecret) == 1 {
		secret = optSecret[0]
	} else {
		s, err := aflib.GetSecret("Secret: ")
		if err != nil {
			return err
		}
		secret = s
	}

	alg, err := otpcode.ParseAlgorithm(totpFlags.Algorithm)
	if err != nil {
		return env.Usagef("invalid --alg: %v", err)
	}
	c := aflib.Config{
		Type:   "totp",
		Secret: secret,
		Params: otpcode.Params{Algorithm: alg, Digits: totpFlags.Digits, TimeStep: totpFlags.Period},
	}
	pw, err := aflib.GenerateCode(c, time.Now(), totpFlags.Shift)
	if err != nil {
		return err
	}
	fmt.Printf("%s %ds\n", pw.Code, pw.Remaining)
	return nil
}
