// Command token mints a bearer token signed with JWT_SECRET, for example
// an ADMIN token for the /ops routes.
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/iliyamo/cinema-seat-availability/internal/utils"
)

func main() {
	userID := pflag.Uint64P("user", "u", 1, "subject user id")
	role := pflag.StringP("role", "r", "ADMIN", "role claim")
	ttl := pflag.Duration("ttl", time.Hour, "token lifetime")
	pflag.Parse()

	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}
	tok, err := utils.NewAccessToken(secret, *userID, *role, *ttl)
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	fmt.Println(tok.Token)
}
