// Command session-token mints a signed session token for local
// development, so the API can be exercised without a running identity
// provider.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dandi/dandi/internal/identity"
)

type output struct {
	Token     string `json:"token"`
	Email     string `json:"email"`
	ExpiresAt string `json:"expires_at"`
}

func main() {
	var (
		secret = flag.String("secret", os.Getenv("SESSION_SECRET"), "Shared session signing secret")
		email  = flag.String("email", "dev@dandi.local", "Email claim for the session")
		name   = flag.String("name", "Local Dev", "Display name claim")
		image  = flag.String("image", "", "Avatar URL claim")
		ttl    = flag.Duration("ttl", 24*time.Hour, "Token lifetime")
		format = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "SESSION_SECRET is required")
		os.Exit(1)
	}

	token, err := identity.SignSession(*secret, identity.SessionClaims{
		Email: *email,
		Name:  *name,
		Image: *image,
	}, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sign session token:", err)
		os.Exit(1)
	}

	out := output{
		Token:     token,
		Email:     *email,
		ExpiresAt: time.Now().Add(*ttl).UTC().Format(time.RFC3339),
	}

	switch strings.ToLower(*format) {
	case "plain":
		fmt.Println(out.Token)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use plain or json")
		os.Exit(1)
	}
}
