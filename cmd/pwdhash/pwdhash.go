package main

import (
	"fmt"
	"os"

	"github.com/cyclopcam/imclass/pkg/pwdhash"
)

// Takes a password as the first argument, and prints out a base64 encoded version of the hashed password.
// Paste the output into the "adminPasswordHash" field of imclass.json, to enable the admin API.

func main() {
	if len(os.Args) != 2 {
		fmt.Printf("Usage: pwdhash <password>\n")
		os.Exit(1)
	}
	password := os.Args[1]
	fmt.Printf("%v\n", pwdhash.HashPasswordBase64(password))
}
