package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/listenparty/internal/config"
	"github.com/dkeye/listenparty/internal/core"
	"github.com/dkeye/listenparty/internal/domain"
	"github.com/dkeye/listenparty/internal/grant"
)

// mint-token prints a signed grant for one identity in one party. With
// --list it also prints the rooms the server currently holds.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	flags := pflag.NewFlagSet("mint-token", pflag.ExitOnError)
	identity := flags.String("identity", "", "participant identity")
	partyID := flags.String("party", "", "party (room) name")
	host := flags.Bool("host", false, "grant host capabilities (may publish)")
	list := flags.String("list", "", "http base url of a server whose rooms to list")
	flags.Duration("grant_ttl", 6*time.Hour, "grant lifetime")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if *identity != "" || *partyID != "" {
		issuer := grant.NewIssuer(grant.Keys{APIKey: cfg.APIKey, APISecret: cfg.APISecret}, grant.WithTTL(cfg.GrantTTL))
		token, err := issuer.Mint(*identity, *partyID, domain.RoleFromHostFlag(*host))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to mint grant")
		}
		fmt.Println(token)
	}

	if *list != "" {
		rooms, err := listRooms(*list)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to list rooms")
		}
		for _, r := range rooms {
			fmt.Printf("%s\t%d participants\n", r.Name, r.Participants)
		}
	}
}

func listRooms(base string) ([]core.RoomInfo, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(strings.TrimRight(base, "/") + "/api/rooms")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list rooms: %s", resp.Status)
	}
	var rooms []core.RoomInfo
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		return nil, fmt.Errorf("decode rooms: %w", err)
	}
	return rooms, nil
}
