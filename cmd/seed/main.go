// Command main runs the database seeder for Airwave.
package main

import (
	"flag"
	"log"

	"airwave/internal/config"
	"airwave/internal/database"
	"airwave/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 50, "Number of users to create")
	numBroadcasts := flag.Int("broadcasts", 12, "Number of broadcasts to create")
	numMessages := flag.Int("messages", 500, "Number of chat messages to create")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	flag.Parse()

	log.Println("Database Seeder")
	log.Println("==================")
	log.Printf("Target: %d users, %d broadcasts, %d messages, clean=%v\n", *numUsers, *numBroadcasts, *numMessages, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if _, err := database.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	s := seed.NewSeeder(database.DB)

	if *shouldClean {
		if err := s.ClearAll(); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	users, err := s.SeedUsers(*numUsers)
	if err != nil {
		log.Fatalf("User seeding failed: %v", err)
	}

	broadcasts, err := s.SeedBroadcasts(users, *numBroadcasts)
	if err != nil {
		log.Fatalf("Broadcast seeding failed: %v", err)
	}

	if err := s.SeedMessages(users, broadcasts, *numMessages); err != nil {
		log.Fatalf("Message seeding failed: %v", err)
	}

	log.Println("All done! Your database is now populated with test data.")
}
