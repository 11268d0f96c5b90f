package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"stakebridge/cmd/internal/passphrase"
	"stakebridge/crypto"
	"stakebridge/native/bridge/gatewaylib"
)

const (
	keygenCommand   = "keygen"
	signCommand     = "sign"
	hashlockCommand = "hashlock"
	simulateCommand = "simulate"

	defaultPassEnv = "BRIDGE_KEYSTORE_PASSPHRASE"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(1)
	}
	var err error
	switch os.Args[1] {
	case keygenCommand:
		err = runKeygen(os.Stdout, os.Args[2:])
	case signCommand:
		err = runSign(os.Stdout, os.Args[2:])
	case hashlockCommand:
		err = runHashlock(os.Stdout, os.Args[2:])
	case simulateCommand:
		err = runSimulate(os.Stdout, os.Args[2:])
	case "-h", "--help", "help":
		usage(os.Stdout)
		return
	default:
		usage(os.Stderr)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: bridgectl <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  keygen    generate a key and write it to an encrypted keystore")
	fmt.Fprintln(w, "  sign      sign a 32-byte message or revocation digest")
	fmt.Fprintln(w, "  hashlock  derive the hash lock of an unlock secret")
	fmt.Fprintln(w, "  simulate  run a link, stake and redemption against an in-memory gateway")
}

func runKeygen(w io.Writer, args []string) error {
	fs := flag.NewFlagSet(keygenCommand, flag.ContinueOnError)
	out := fs.String("keystore", "", "Output path for the keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*out) == "" {
		return errors.New("--keystore is required")
	}
	if !*force {
		if _, err := os.Stat(*out); err == nil {
			return fmt.Errorf("keystore file %s already exists (use --force to overwrite)", *out)
		}
	}
	pass, err := passphrase.NewSource(*passEnv, "keystore").Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveToKeystore(*out, key, pass); err != nil {
		return err
	}
	fmt.Fprintf(w, "address: %s\nkeystore: %s\n", key.Address().Hex(), *out)
	return nil
}

func runSign(w io.Writer, args []string) error {
	fs := flag.NewFlagSet(signCommand, flag.ContinueOnError)
	digest := fs.String("digest", "", "0x-prefixed 32-byte digest to sign")
	keystorePath := fs.String("keystore", "", "Keystore holding the signing key")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	keyHex := fs.String("key", "", "DEV ONLY: hex private key used instead of a keystore")
	if err := fs.Parse(args); err != nil {
		return err
	}
	hash, err := crypto.ParseHash(*digest)
	if err != nil {
		return err
	}
	var key *crypto.PrivateKey
	switch {
	case *keyHex != "":
		key, err = crypto.PrivateKeyFromHex(*keyHex)
	case *keystorePath != "":
		var pass string
		pass, err = passphrase.NewSource(*passEnv, "keystore").Get()
		if err == nil {
			key, err = crypto.LoadFromKeystore(*keystorePath, pass)
		}
	default:
		err = errors.New("one of --keystore or --key is required")
	}
	if err != nil {
		return err
	}
	sig, err := key.Sign(hash)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "signer: %s\nsignature: %s\n", key.Address().Hex(), hexutil.Encode(sig))
	return nil
}

func runHashlock(w io.Writer, args []string) error {
	fs := flag.NewFlagSet(hashlockCommand, flag.ContinueOnError)
	secretHex := fs.String("secret", "", "0x-prefixed hex unlock secret")
	text := fs.String("text", "", "UTF-8 unlock secret")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var secret []byte
	switch {
	case *secretHex != "" && *text != "":
		return errors.New("--secret and --text are mutually exclusive")
	case *secretHex != "":
		raw, err := hex.DecodeString(strings.TrimPrefix(*secretHex, "0x"))
		if err != nil {
			return fmt.Errorf("invalid --secret: %w", err)
		}
		secret = raw
	case *text != "":
		secret = []byte(*text)
	default:
		return errors.New("one of --secret or --text is required")
	}
	fmt.Fprintf(w, "secret: %s\nhashlock: %s\n", hexutil.Encode(secret), gatewaylib.HashLock(secret).Hex())
	return nil
}
