package auth

import (
	"fmt"
	"io"
)

// ShowStorageGuide explains where saved EPMA logins are kept and how to
// supply them without saving.
func ShowStorageGuide(w io.Writer) {
	dir, err := getConfigDir()
	if err != nil {
		dir = "(unavailable: " + err.Error() + ")"
	}

	fmt.Fprintln(w, "EPMA logins are looked up in this order:")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  1. System keychain, service \"epmasuppress\"")
	fmt.Fprintf(w, "  2. Encrypted file in %s\n", dir)
	fmt.Fprintf(w, "     (key derived from %s, or a generated passphrase stored beside it)\n", envPassphrase)
	fmt.Fprintf(w, "  3. %s and %s environment variables\n", envUsername, envPassword)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Save a login with:   epmasuppress auth login")
	fmt.Fprintln(w, "Remove it with:      epmasuppress auth logout <USERNAME>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Without a saved login you will be asked for your username and password")
	fmt.Fprintln(w, "at the start of every run. Usernames are upper-cased before use.")
}
