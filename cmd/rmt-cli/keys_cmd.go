package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"markertransfer/cmd/internal/passphrase"
	"markertransfer/crypto"
)

var newPassphraseSource = func(confirm bool) *passphrase.Source {
	src := passphrase.NewSource(passphrase.DefaultEnv)
	if confirm {
		src = src.WithConfirmation()
	}
	return src
}

var openSigner = loadSigner

func runKeysCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, keysUsage())
		return 1
	}
	switch args[0] {
	case "generate":
		return runKeysGenerate(args[1:], stdout, stderr)
	case "show":
		return runKeysShow(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown keys subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, keysUsage())
		return 1
	}
}

func runKeysGenerate(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("keys generate", stderr, keysUsage)
	var out string
	var force bool
	fs.StringVar(&out, "out", "rmt-key.json", "path of the encrypted keystore to create")
	fs.BoolVar(&force, "force", false, "overwrite an existing keystore")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		return printError(stderr, "unexpected positional arguments")
	}
	if _, err := os.Stat(out); err == nil && !force {
		return printError(stderr, fmt.Sprintf("%s already exists; pass --force to overwrite", out))
	}
	pass, err := newPassphraseSource(true).Get()
	if err != nil {
		return printError(stderr, err.Error())
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return printError(stderr, fmt.Sprintf("generate key: %v", err))
	}
	if err := crypto.WriteKeyFile(out, key, pass); err != nil {
		return printError(stderr, fmt.Sprintf("write keystore: %v", err))
	}
	return writeKeyInfo(stdout, out, key)
}

func runKeysShow(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("keys show", stderr, keysUsage)
	var keyPath string
	fs.StringVar(&keyPath, "key", "rmt-key.json", "path of the encrypted keystore")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		return printError(stderr, "unexpected positional arguments")
	}
	key, err := openSigner(keyPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return writeKeyInfo(stdout, keyPath, key)
}

func writeKeyInfo(w io.Writer, path string, key *crypto.PrivateKey) int {
	out, _ := json.MarshalIndent(map[string]string{
		"address":  crypto.FormatAccount(key.PubKey().Address().Bytes()),
		"keystore": path,
	}, "", "  ")
	fmt.Fprintln(w, string(out))
	return 0
}

func loadSigner(path string) (*crypto.PrivateKey, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("--key is required")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("keystore %s not found. run rmt-cli keys generate first", path)
		}
		return nil, fmt.Errorf("stat keystore %s: %w", path, err)
	}
	pass, err := newPassphraseSource(false).Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.ReadKeyFile(path, pass)
	if err != nil {
		return nil, fmt.Errorf("unlock keystore %s: %w", path, err)
	}
	return key, nil
}

func newFlagSet(name string, stderr io.Writer, usage func() string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, usage())
		fs.PrintDefaults()
	}
	return fs
}

func keysUsage() string {
	return strings.TrimSpace(`Usage:
  rmt-cli keys <command> [flags]

Commands:
  generate  Create a new passphrase-encrypted key
  show      Print the account address of a keystore
`)
}
