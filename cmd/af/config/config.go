// Package config contains shared configuration settings for af subcommands.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/creachadair/authfish/aflib"
	"github.com/creachadair/command"
)

// Settings are shared settings used by af subcommands.
type Settings struct {
	AccountsPath string
}

// LoadAccounts reads the accounts file specified by the AccountsPath
// setting. If the file does not exist, LoadAccounts reports an error.
func LoadAccounts(env *command.Env) (*aflib.File, error) {
	path := AccountsPath(env)
	if path == "" {
		return nil, errors.New("no accounts path specified (provide --accounts or set AUTHFISH_ACCOUNTS)")
	}
	return aflib.LoadFile(path)
}

// WatchAccounts loads the accounts file specified by the AccountsPath
// setting, and returns a watcher for subsequent changes to it. The caller
// must call Run on the watcher to receive updates.
func WatchAccounts(env *command.Env) (*aflib.Watcher, error) {
	f, err := LoadAccounts(env)
	if err != nil {
		return nil, err
	}
	return aflib.NewWatcher(f, AccountsPath(env))
}

// AccountsPath returns the accounts path associated with env, or "".
func AccountsPath(env *command.Env) string {
	set := env.Config.(*Settings)
	if tail, ok := strings.CutPrefix(set.AccountsPath, "$0"); ok {
		ep, err := os.Executable()
		if err == nil {
			return filepath.Join(filepath.Dir(ep), tail)
		}
	}
	return set.AccountsPath
}
