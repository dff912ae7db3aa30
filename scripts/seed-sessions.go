// Copyright 2024 Interview Questions Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command seed-sessions fills the configured session store with sample
// interview sessions so history suppression can be tried locally.
//
//	go run ./scripts/seed-sessions.go -config configs/config.yaml -user demo_user
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/interview-questions/internal/config"
	"github.com/your-org/interview-questions/internal/store"
)

// sampleSessions are seeded oldest first
var sampleSessions = []struct {
	Topic     string
	Questions []string
}{
	{
		Topic: "JavaScript",
		Questions: []string{
			"What is a closure in JavaScript?",
			"Explain the difference between var, let and const.",
			"What is event delegation?",
		},
	},
	{
		Topic: "Go concurrency",
		Questions: []string{
			"What is a goroutine and how does it differ from an OS thread?",
			"When would you use a buffered channel?",
			"How does sync.WaitGroup work?",
		},
	},
	{
		Topic: "System design",
		Questions: []string{
			"How would you design a URL shortener?",
			"What are the trade-offs of consistent hashing?",
		},
	},
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	userID := flag.String("user", "demo_user", "user the sessions belong to")
	flag.Parse()

	log.Println("🌱 Starting session seeding...")

	cfg, err := config.LoadWithOptions(config.LoadOptions{ConfigPath: *configPath})
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	sessions, err := store.New(store.Config{
		Type:        store.Type(cfg.Store.Type),
		SQLitePath:  cfg.Store.SQLitePath,
		RedisURL:    cfg.Store.RedisURL,
		RedisPrefix: cfg.Store.RedisPrefix,
		MaxSessions: cfg.Store.MaxSessions,
	}, zap.NewNop())
	if err != nil {
		log.Fatalf("❌ Failed to open session store: %v", err)
	}
	defer func() { _ = sessions.Close() }()

	if cfg.Store.Type == "" || cfg.Store.Type == string(store.MemoryType) {
		log.Println("⚠️  Memory store selected, seeded sessions will not outlive this process")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	base := time.Now().UTC().Add(-time.Duration(len(sampleSessions)) * time.Hour)
	for i, sample := range sampleSessions {
		session := store.NewSession(*userID, sample.Topic, sample.Questions)
		session.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		session.UpdatedAt = session.CreatedAt

		if err := sessions.SaveSession(ctx, session); err != nil {
			log.Fatalf("❌ Failed to save session %q: %v", sample.Topic, err)
		}
		log.Printf("✅ Seeded %s (%d questions) as %s", sample.Topic, len(session.Questions), session.ID)
	}

	log.Printf("🎉 Seeded %d sessions for user %s", len(sampleSessions), *userID)
}
