// Program af is a command-line tool for one-time passwords.
package main

import (
	"os"

	"github.com/creachadair/authfish/cmd/af/config"
	"github.com/creachadair/command"
	"github.com/creachadair/flax"

	"github.com/creachadair/authfish/cmd/af/internal/cmdcli"
	"github.com/creachadair/authfish/cmd/af/internal/cmdserver"
)

func main() {
	var flags struct {
		Accounts string `flag:"accounts,default=$AUTHFISH_ACCOUNTS,Accounts file path"`
	}
	root := &command.C{
		Name: command.ProgramName(),
		Help: `🐟 A command-line tool for time-based one-time passwords.

Authfish generates TOTP (RFC 6238) and HOTP (RFC 4226) codes for the
accounts listed in a YAML accounts file. Use --accounts to specify the
file path, or set the AUTHFISH_ACCOUNTS environment variable. A path
beginning with "$0/" is resolved relative to the directory containing
the program.`,

		SetFlags: command.Flags(flax.MustBind, &flags),

		Init: func(env *command.Env) error {
			env.Config = &config.Settings{AccountsPath: flags.Accounts}
			return nil
		},

		Commands: append(
			cmdcli.Commands,
			cmdserver.Command,
			command.HelpCommand([]command.HelpTopic{{
				Name: "query",
				Help: `Syntax of query arguments.

A query selects a single account. An exact match for the label of an
account is preferred. Otherwise the query is matched case-insensitively
against the issuer, then as a substring of the title or label, the login
name, and the issuer, in that order.

A query that matches multiple accounts with no unique best match will
report an error listing the candidate accounts.`,
			}, {
				Name: "accounts",
				Help: `Format of the accounts file.

The accounts file is a YAML document with an optional "defaults" section
and a list of "accounts":

  defaults:
    algorithm: SHA1   # SHA1, SHA256, or SHA512
    digits: 6         # 6 to 8
    period: 30        # seconds per time step

  accounts:
    - label: mail
      title: Example Mail
      issuer: Example
      name: alice@example.com
      secret: JBSWY3DPEHPK3PXP

    - label: bank
      otp: otpauth://totp/Bank:alice?secret=JBSWY3DPEHPK3PXP&digits=8

Each account must have a unique label, and exactly one of "secret" (a
base32 shared secret) or "otp" (an otpauth:// URL). Settings in an OTP
URL take precedence over the account fields, which take precedence over
the defaults. Set "archived: true" to hide an account from listings.`,
			}}),
			command.VersionCommand(),
		),
	}
	command.RunOrFail(root.NewEnv(nil).MergeFlags(true), os.Args[1:])
}
