// Package seed provides database seeding utilities for development and testing.
package seed

import (
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"airwave/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// Seeder creates demo data for the application database.
type Seeder struct {
	db  *gorm.DB
	rng *rand.Rand
}

// NewSeeder creates a new Seeder bound to the provided Gorm DB.
func NewSeeder(db *gorm.DB) *Seeder {
	gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{
		db:  db,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ClearAll truncates every seedable table.
func (s *Seeder) ClearAll() error {
	log.Println("Cleaning database...")
	for _, table := range []string{"chat_messages", "chat_sessions", "moderation_actions", "broadcasts", "users"} {
		if err := s.db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// SeedUsers creates listeners plus a small staff contingent.
func (s *Seeder) SeedUsers(n int) ([]*models.User, error) {
	users := make([]*models.User, 0, n)
	for i := 0; i < n; i++ {
		role := models.RoleListener
		if i == 0 {
			role = models.RoleAdmin
		} else if i < n/10+1 {
			role = models.RoleStaff
		}

		user := &models.User{
			DisplayName: gofakeit.Username(),
			Role:        role,
			AvatarURL:   fmt.Sprintf("https://picsum.photos/seed/%s/200/200", gofakeit.UUID()),
		}
		if err := s.db.Create(user).Error; err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		users = append(users, user)
	}
	log.Printf("Created %d users (%d staff)", len(users), n/10+1)
	return users, nil
}

// SeedBroadcasts creates shows hosted by staff users. Roughly a third start live.
func (s *Seeder) SeedBroadcasts(users []*models.User, n int) ([]*models.Broadcast, error) {
	staff := make([]*models.User, 0, len(users))
	for _, u := range users {
		if u.IsStaff() {
			staff = append(staff, u)
		}
	}
	if len(staff) == 0 {
		return nil, fmt.Errorf("no staff users to host broadcasts")
	}

	broadcasts := make([]*models.Broadcast, 0, n)
	for i := 0; i < n; i++ {
		title := gofakeit.Sentence(4)
		hostID := staff[s.rng.Intn(len(staff))].ID
		b := &models.Broadcast{
			Title:       title,
			Slug:        slugify(title, i),
			Description: gofakeit.Paragraph(1, 2, 8, " "),
			HostUserID:  &hostID,
			StreamURL:   gofakeit.URL(),
		}
		if s.rng.Intn(3) == 0 {
			started := time.Now().Add(-time.Duration(s.rng.Intn(120)) * time.Minute)
			b.IsLive = true
			b.StartedAt = &started
		}
		if err := s.db.Create(b).Error; err != nil {
			return nil, fmt.Errorf("failed to create broadcast: %w", err)
		}
		broadcasts = append(broadcasts, b)
	}
	log.Printf("Created %d broadcasts", len(broadcasts))
	return broadcasts, nil
}

// SeedMessages spreads chat messages across broadcast rooms with a realistic
// recency skew and occasional likes and pins.
func (s *Seeder) SeedMessages(users []*models.User, broadcasts []*models.Broadcast, n int) error {
	if len(users) == 0 || len(broadcasts) == 0 {
		return fmt.Errorf("users and broadcasts are required before messages")
	}

	for i := 0; i < n; i++ {
		author := users[s.rng.Intn(len(users))]
		b := broadcasts[s.rng.Intn(len(broadcasts))]
		authorID := author.ID

		msg := &models.ChatMessage{
			RoomKey:     b.RoomKey(),
			AuthorID:    &authorID,
			AuthorName:  author.DisplayName,
			Content:     gofakeit.Sentence(s.rng.Intn(12) + 3),
			MessageType: models.MessageTypeUser,
			LikedBy:     []string{},
			CreatedAt:   time.Now().Add(-time.Duration(s.rng.Intn(7*24*60)) * time.Minute),
		}

		likeCount := s.rng.Intn(5)
		for j := 0; j < likeCount; j++ {
			liker := users[s.rng.Intn(len(users))]
			key := fmt.Sprintf("user:%d", liker.ID)
			if !msg.LikedByContains(key) {
				msg.LikedBy = append(msg.LikedBy, key)
			}
		}
		msg.LikeCount = len(msg.LikedBy)
		msg.IsPinned = s.rng.Intn(50) == 0

		if err := s.db.Create(msg).Error; err != nil {
			return fmt.Errorf("failed to create message: %w", err)
		}
	}
	log.Printf("Created %d chat messages", n)
	return nil
}

func slugify(title string, salt int) string {
	slug := strings.ToLower(strings.TrimSpace(title))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ':
			return '-'
		default:
			return -1
		}
	}, slug)
	slug = strings.Trim(slug, "-")
	return fmt.Sprintf("%s-%d", slug, salt)
}
