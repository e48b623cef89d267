// Command credtool encodes service-account key files into the base64 bundle
// the proxy is configured with, and inspects existing bundles without ever
// printing the private key.
//
// Usage:
//
//	credtool encode -file sa.json
//	credtool inspect [-credentials <base64>]
package main

import (
	"encoding/base64"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/rakhadi/vertex-proxy/internal/credentials"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "encode":
		err = runEncode(os.Args[2:])
	case "inspect":
		err = runInspect(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "credtool:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  credtool encode -file sa.json      print the base64 bundle for a key file
  credtool inspect [-credentials b64] print a bundle's identity fields`)
}

func runEncode(args []string) error {
	fs := flag.NewFlagSet("encode", flag.ExitOnError)
	file := fs.String("file", "", "path to the service-account JSON key file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("-file is required")
	}

	raw, err := os.ReadFile(*file)
	if err != nil {
		return err
	}
	encoded := base64.StdEncoding.EncodeToString(raw)

	// Round-trip through the resolver so a broken key file is caught here
	// rather than at the first token mint.
	if _, err := credentials.Decode(encoded); err != nil {
		return fmt.Errorf("key file does not decode to a usable bundle: %w", err)
	}

	fmt.Println(encoded)
	return nil
}

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	encoded := fs.String("credentials", "", "base64 bundle (default: GOOGLE_CREDENTIALS env)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *encoded == "" {
		_ = godotenv.Load()
		*encoded = os.Getenv("GOOGLE_CREDENTIALS")
	}
	if *encoded == "" {
		return fmt.Errorf("no bundle given: pass -credentials or set GOOGLE_CREDENTIALS")
	}

	b, err := credentials.Decode(*encoded)
	if err != nil {
		return err
	}

	fmt.Printf("type:           %s\n", b.Type)
	fmt.Printf("project_id:     %s\n", b.ProjectID)
	fmt.Printf("private_key_id: %s\n", b.PrivateKeyID)
	fmt.Printf("client_email:   %s\n", b.ClientEmail)
	return nil
}
