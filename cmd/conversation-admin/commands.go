package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/urfave/cli/v2"
	"uk.co.dudmesh.conversations/internal/boot"
	"uk.co.dudmesh.conversations/internal/store"
	"uk.co.dudmesh.conversations/pkg/crypt"
	"uk.co.dudmesh.conversations/pkg/user"
)

// BackfillSeenCommand repairs seen state for one user against the configured
// database. Running it twice is harmless.
func BackfillSeenCommand() *cli.Command {
	return &cli.Command{
		Name:  "backfill-seen",
		Usage: "Give legacy messages a seen set and mark the user's received messages as seen",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "user",
				Aliases:  []string{"u"},
				Usage:    "User identifier, with or without the user_ prefix",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			u, err := user.Parse(c.String("user"))
			if err != nil {
				return fmt.Errorf("parsing user: %w", err)
			}
			config, err := boot.Load()
			if err != nil {
				return fmt.Errorf("boot: %w", err)
			}
			log.SetLevel(config.Level())

			db, err := store.New(config)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer db.Close()

			result, err := db.BackfillSeen(c.Context, u)
			if err != nil {
				return fmt.Errorf("backfilling %s: %w", u, err)
			}
			return json.NewEncoder(c.App.Writer).Encode(result)
		},
	}
}

type keyPair struct {
	KeyID      string `json:"kid"`
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

// KeygenCommand creates a signing key for development identity tokens. The
// public half goes into IDENTITY_JWK.
func KeygenCommand() *cli.Command {
	return &cli.Command{
		Name:  "keygen",
		Usage: "Generate an ES256 key pair for development tokens",
		Action: func(c *cli.Context) error {
			key, err := crypt.GenerateKey()
			if err != nil {
				return err
			}
			keyID := crypt.KeyID(&key.PublicKey)
			publicKey, err := crypt.EncodePublicKey(&key.PublicKey, keyID)
			if err != nil {
				return err
			}
			privateKey, err := crypt.EncodePrivateKey(key, keyID)
			if err != nil {
				return err
			}
			return json.NewEncoder(c.App.Writer).Encode(keyPair{KeyID: keyID, PublicKey: publicKey, PrivateKey: privateKey})
		},
	}
}

func TokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Sign an identity token for a user",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "key",
				Usage:    "Private key from keygen",
				EnvVars:  []string{"IDENTITY_PRIVATE_JWK"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "user",
				Aliases:  []string{"u"},
				Required: true,
			},
			&cli.DurationFlag{
				Name:  "ttl",
				Value: time.Hour,
			},
		},
		Action: func(c *cli.Context) error {
			key, err := crypt.DecodePrivateKey(c.String("key"))
			if err != nil {
				return err
			}
			u, err := user.Parse(c.String("user"))
			if err != nil {
				return fmt.Errorf("parsing user: %w", err)
			}
			token, err := crypt.SignToken(key, u.String(), c.Duration("ttl"))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.App.Writer, token)
			return err
		},
	}
}
