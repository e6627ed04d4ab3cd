// keygen creates or inspects the shared secret file used by the relay
// client and server.
//
//	keygen --out secret_key.key          write a new key (refuses to overwrite)
//	keygen --out secret_key.key --force  replace an existing key
//	keygen --out client_key.key --show   print the key prefix for comparison
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/zhouzirui/z-tavern/relay/internal/auth"
)

const prefixLength = 10

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	var out string
	var force, show bool

	flagSet := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
	flagSet.SetOutput(stdout)
	flagSet.StringVarP(&out, "out", "o", "secret_key.key", "path of the key file")
	flagSet.BoolVarP(&force, "force", "f", false, "overwrite an existing key file")
	flagSet.BoolVar(&show, "show", false, "print the prefix of an existing key instead of generating one")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", flagSet.Args())
	}

	if show {
		secret, err := auth.LoadSecret(auth.FileKeyProvider{Path: out})
		if err != nil {
			return err
		}
		defer secret.Close()
		fmt.Fprintf(stdout, "%s: %s...\n", out, secret.Prefix(prefixLength))
		return nil
	}

	key, err := auth.GenerateKey()
	if err != nil {
		return err
	}
	if err := auth.WriteKeyFile(out, key, force); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s already exists, pass --force to replace it", out)
		}
		return err
	}
	fmt.Fprintf(stdout, "wrote %s (prefix %s...)\n", out, key[:prefixLength])
	fmt.Fprintln(stdout, "copy this file to the other machine; both ends must hold the same key")
	return nil
}
