package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"marketlink/config"
	"marketlink/hub"
	"marketlink/messaging"
	"marketlink/presence"
	"marketlink/protocol"
	"marketlink/store"
	"marketlink/www"
)

func main() {
	configPath := flag.String("config", "marketlink.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	flag.Parse()

	if *debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *port > 0 {
		cfg.Web.Port = *port
	}
	if cfg.Store.Driver == "sqlite" && cfg.Store.DSN == "" {
		cfg.Store.DSN = cfg.DatabasePath
	}

	db, err := store.Open(&cfg.Store)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	hb := hub.New(cfg.NodeID)

	// Redis is optional; without it presence rides on SQL alone.
	var redisStore *presence.RedisStore
	if cfg.Presence.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{
			Addr:     cfg.Presence.RedisAddr,
			Password: cfg.Presence.RedisPassword,
			DB:       cfg.Presence.RedisDB,
		})
		redisStore = presence.NewRedisStore(rc)
		log.Printf("presence: redis enabled at %s", cfg.Presence.RedisAddr)
	}
	pres := presence.NewManager(db, redisStore, cfg.NodeID, cfg.Presence.TTL)
	if err := pres.Rebuild(context.Background()); err != nil {
		log.Printf("presence rebuild: %v", err)
	}

	// Broker bridge for multi-node fan-out. Single-node deployments run with
	// backend "none" and skip all of this.
	if cfg.Messaging.Backend != "none" {
		msgClient := messaging.NewClient(&cfg.Messaging, cfg.NodeID)
		defer msgClient.Close()
		if err := msgClient.Connect(); err != nil {
			log.Printf("messaging connect: %v (pushes held in outbox)", err)
		}

		drainer := messaging.NewOutboxDrainer(db, msgClient, cfg.Messaging.OutboxDrainInterval)
		drainer.Start()
		defer drainer.Stop()

		if err := msgClient.SubscribePush(cfg.Messaging.PushTopic, func(env *messaging.PushEnvelope) {
			f, err := protocol.DecodeFrame(env.Frame)
			if err != nil {
				log.Printf("broker push from %s: %v", env.Node, err)
				return
			}
			hb.Broadcast(f)
		}); err != nil {
			log.Printf("subscribe %s: %v", cfg.Messaging.PushTopic, err)
		} else {
			log.Printf("bridging pushes on %s (node=%s)", cfg.Messaging.PushTopic, cfg.NodeID)
		}
	}

	// Client-originated publishes that pass hub validation: persist chat so
	// history survives, and relay everything to peer nodes via the outbox.
	relay := cfg.Messaging.Backend != "none"
	hb.SetPublishSink(func(f *protocol.Frame) {
		if protocol.IsChatTopic(f.Topic) {
			var msg protocol.ChatMessage
			if err := json.Unmarshal(f.Payload, &msg); err != nil {
				log.Printf("chat persist: %v", err)
				return
			}
			if msg.Timestamp.IsZero() {
				msg.Timestamp = f.Timestamp
			}
			if err := db.AppendChatMessage(&msg); err != nil {
				log.Printf("chat persist: %v", err)
			}
		}
		if !relay {
			return
		}
		data, err := f.Encode()
		if err != nil {
			return
		}
		enveloped, err := messaging.EncodePush(cfg.NodeID, data)
		if err != nil {
			return
		}
		if err := db.EnqueueOutbox(cfg.Messaging.PushTopic, enveloped); err != nil {
			log.Printf("enqueue push outbox: %v", err)
		}
	})

	router := www.NewRouter(cfg, db, hb, pres)
	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	server := &http.Server{Addr: addr, Handler: router}

	go func() {
		log.Printf("marketlink hub listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("http server shutdown: %v", err)
	}
}
