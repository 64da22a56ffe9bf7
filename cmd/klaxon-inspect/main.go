// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

// klaxon-inspect is an offline debugging tool for Klaxon account
// stores. It opens a store directory directly, with no backend
// connection, and prints what the session has persisted there:
// threads, per-thread timelines, contact and group records, and
// storage statistics.
//
// For encrypted stores the passphrase comes from --passphrase-file, a
// configured passphrase file, or an interactive no-echo prompt.
//
// The session must not have the store open at the same time; Pebble
// holds an exclusive directory lock.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/klaxon-im/klaxon/backend"
	"github.com/klaxon-im/klaxon/lib/secret"
	"github.com/klaxon-im/klaxon/lib/version"
	"github.com/klaxon-im/klaxon/store/pebblestore"
	"golang.org/x/term"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var storePath string
	var passphraseFile string
	var verbose bool

	flagSet := pflag.NewFlagSet("klaxon-inspect", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "config file (default ~/.config/klaxon/inspect.yaml)")
	flagSet.StringVar(&storePath, "store", "", "account store directory")
	flagSet.StringVar(&passphraseFile, "passphrase-file", "", "file holding the store passphrase, or - for stdin")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	flagSet.BoolP("help", "h", false, "show help")

	// Handle --version before flag parsing to match other Klaxon
	// binaries.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("klaxon-inspect")
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	explicit := configPath != ""
	if !explicit {
		var err error
		configPath, err = DefaultConfigPath()
		if err != nil {
			return err
		}
	}
	config, err := LoadConfig(configPath, explicit)
	if err != nil {
		return err
	}
	if storePath != "" {
		config.Store = storePath
	}
	if passphraseFile != "" {
		config.PassphraseFile = passphraseFile
	}
	if verbose {
		config.LogLevel = "debug"
	}

	log := config.Logger()

	args := flagSet.Args()
	if len(args) == 0 {
		printHelp(flagSet)
		return errors.New("command required")
	}
	if config.Store == "" {
		return errors.New("store directory required (--store, config, or KLAXON_STORE)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(config, log)
	if err != nil {
		return err
	}
	defer store.Close()

	command, rest := args[0], args[1:]
	switch command {
	case "threads":
		if len(rest) != 0 {
			return fmt.Errorf("threads: unexpected argument %q", rest[0])
		}
		return dumpThreads(ctx, store, os.Stdout)
	case "timeline":
		if len(rest) != 1 {
			return errors.New("timeline: exactly one thread argument required (see 'threads')")
		}
		thread, err := backend.ParseThread(rest[0])
		if err != nil {
			return err
		}
		return dumpTimeline(ctx, store, os.Stdout, thread)
	case "contacts":
		if len(rest) != 0 {
			return fmt.Errorf("contacts: unexpected argument %q", rest[0])
		}
		return dumpContacts(ctx, store, os.Stdout)
	case "groups":
		if len(rest) != 0 {
			return fmt.Errorf("groups: unexpected argument %q", rest[0])
		}
		return dumpGroups(ctx, store, os.Stdout)
	case "stats":
		if len(rest) != 0 {
			return fmt.Errorf("stats: unexpected argument %q", rest[0])
		}
		return dumpStats(ctx, store, os.Stdout)
	case "record":
		if len(rest) != 1 {
			return errors.New("record: exactly one storage key argument required")
		}
		return dumpRecord(ctx, store, os.Stdout, rest[0])
	default:
		return fmt.Errorf("unknown command %q (run with --help)", command)
	}
}

// openStore opens the configured store, obtaining a passphrase only
// when the store turns out to be encrypted.
func openStore(config Config, log *slog.Logger) (*pebblestore.Store, error) {
	store, err := pebblestore.Open(config.Store, pebblestore.Options{Logger: log})
	if err == nil {
		return store, nil
	}
	if !errors.Is(err, pebblestore.ErrPassphraseRequired) {
		return nil, err
	}

	passphrase, err := readPassphrase(config.PassphraseFile)
	if err != nil {
		return nil, err
	}
	defer passphrase.Close()
	return pebblestore.Open(config.Store, pebblestore.Options{
		Passphrase: passphrase,
		Logger:     log,
	})
}

// readPassphrase reads the store passphrase from the configured file
// (or stdin for "-"), falling back to an interactive prompt on the
// terminal with echo disabled.
func readPassphrase(passphraseFile string) (*secret.Buffer, error) {
	if passphraseFile != "" {
		return secret.ReadFromPath(passphraseFile)
	}

	stdinFileDescriptor := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFileDescriptor) {
		return nil, errors.New("store is encrypted and no terminal is available (use --passphrase-file)")
	}

	fmt.Fprint(os.Stderr, "Store passphrase: ")
	passphraseBytes, err := term.ReadPassword(stdinFileDescriptor)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}

	buffer, err := secret.NewFromBytes(passphraseBytes)
	if err != nil {
		secret.Zero(passphraseBytes)
		return nil, err
	}
	return buffer, nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Klaxon store inspector — offline debugging for account stores.

Opens a store directory directly and prints its contents. The session
must not have the store open at the same time.

Usage:
  klaxon-inspect [flags] <command> [args]

Commands:
  threads            list threads with message counts
  timeline <thread>  print a thread's replayed timeline
  contacts           list stored contact records
  groups             list stored group records
  stats              store statistics and registration
  record <key>       print one record in CBOR diagnostic notation

Thread arguments use the form printed by 'threads':
contact:<uuid> or group:<hex key>.

Examples:
  # List everything the store knows about
  klaxon-inspect --store ~/.local/share/klaxon/default threads

  # Dump a direct conversation
  klaxon-inspect timeline contact:5f627f7f-d3c9-4bd8-aafb-87b32dc29eb2

  # Inspect a raw record of an encrypted store
  klaxon-inspect --passphrase-file /run/user/1000/klaxon.pass \
    record meta/registration

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
