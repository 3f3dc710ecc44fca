// Command seed_supabase creates demo accounts, organizers, events and
// profiles in a Supabase project.
package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	supabasestore "github.com/dancelink/platform/internal/app/storage/supabase"
	"github.com/dancelink/platform/supabase/client"
)

//go:embed seed.yaml
var defaultSeed []byte

func readFile(path string) ([]byte, error) {
	return os.ReadFile(filepath.Clean(path))
}

func main() {
	var (
		envFile  = flag.String("env", ".env", "Path to .env with SUPABASE_URL, SUPABASE_ANON_KEY and SUPABASE_SERVICE_KEY")
		seedFile = flag.String("seed", "", "Seed YAML (defaults to the built-in demo data)")
		timeout  = flag.Duration("timeout", 2*time.Minute, "Overall timeout")
	)
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("load env (%s): %v; using process environment", *envFile, err)
	}

	url := os.Getenv("SUPABASE_URL")
	anonKey := os.Getenv("SUPABASE_ANON_KEY")
	serviceKey := os.Getenv("SUPABASE_SERVICE_KEY")
	if url == "" || anonKey == "" || serviceKey == "" {
		log.Fatalf("SUPABASE_URL, SUPABASE_ANON_KEY and SUPABASE_SERVICE_KEY are required")
	}

	raw := defaultSeed
	if *seedFile != "" {
		data, err := readFile(*seedFile)
		if err != nil {
			log.Fatalf("read seed: %v", err)
		}
		raw = data
	}
	seed, err := parseSeed(raw)
	if err != nil {
		log.Fatalf("parse seed: %v", err)
	}

	anon, err := client.New(client.Config{URL: url, APIKey: anonKey})
	if err != nil {
		log.Fatalf("supabase client: %v", err)
	}
	admin, err := client.New(client.Config{URL: url, APIKey: serviceKey})
	if err != nil {
		log.Fatalf("supabase admin client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	s := &seeder{auth: anon.Auth(), store: supabasestore.New(admin)}
	summary, err := s.Run(ctx, seed)
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	fmt.Printf("Seeded %d organizers, %d events and %d dancers into %s\n",
		summary.Organizers, summary.Events, summary.Dancers, url)
}
