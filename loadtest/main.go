package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"agency-chat/internal/gateway"
	"agency-chat/internal/model"
)

var (
	baseURL   = flag.String("url", "http://localhost:8080", "server base URL")
	userCount = flag.Int("users", 100, "concurrent clients, one project each")
	msgCount  = flag.Int("messages", 20, "messages per client")
	interval  = flag.Duration("interval", 250*time.Millisecond, "pause between sends (stay under the rate limit)")
)

func main() {
	flag.Parse()
	log.Printf("🔥 STARTING STRESS TEST: %d Clients, %d Messages each...", *userCount, *msgCount)

	var (
		wg     sync.WaitGroup
		sent   atomic.Int64
		echoed atomic.Int64
	)
	start := time.Now()
	for i := 0; i < *userCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s, e := runClient(id)
			sent.Add(s)
			echoed.Add(e)
		}(i)
	}
	wg.Wait()

	log.Printf("✅ LOAD TEST COMPLETE in %s: %d sent, %d echoed over the feed", time.Since(start).Round(time.Millisecond), sent.Load(), echoed.Load())
}

// runClient registers a client, opens a project, follows its feed and
// sends messages, returning how many were sent and how many came back.
func runClient(id int) (sent, echoed int64) {
	ctx := context.Background()
	username := fmt.Sprintf("lt_%d_%d", id, time.Now().UnixNano())
	pass := "password123"

	c, err := gateway.NewClient(*baseURL, nil)
	if err != nil {
		log.Fatal(err)
	}
	// Register (Ignore error, might already exist)
	c.Register(ctx, username, pass)
	if _, err := c.Login(ctx, username, pass); err != nil {
		log.Printf("❌ Login Failed [%s]: %v", username, err)
		return 0, 0
	}

	p, err := c.CreateProject(ctx, gateway.ProjectRequest{Type: "saas", Budget: 5000, Description: "load test"})
	if err != nil {
		log.Printf("❌ Create Project Failed [%s]: %v", username, err)
		return 0, 0
	}

	sub, err := c.Subscribe(ctx, p.ID)
	if err != nil {
		log.Printf("❌ WS Connect Fail [%s]: %v", username, err)
		return 0, 0
	}
	var count atomic.Int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range sub.Events() {
			if ev.Type == model.EventInsert {
				count.Add(1)
			}
		}
	}()

	for i := 0; i < *msgCount; i++ {
		if err := c.InsertMessage(ctx, p.ID, model.KindText, fmt.Sprintf("LoadTest Msg %d from %s", i, username)); err != nil {
			log.Printf("❌ Send Fail [%s]: %v", username, err)
			break
		}
		sent++
		time.Sleep(*interval)
	}

	// Give the last echoes a moment to arrive.
	time.Sleep(time.Second)
	sub.Close()
	<-done
	log.Printf("✅ %s finished sending %d msgs", username, sent)
	return sent, count.Load()
}
