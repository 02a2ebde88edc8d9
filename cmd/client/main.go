// Headless signaling client for manual testing: connects as a user, prints
// presence and chat traffic, optionally places a call.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quickchat/signaling/internal/call"
	"github.com/quickchat/signaling/internal/client"
	"github.com/quickchat/signaling/internal/domain"
)

type consoleRinger struct{}

func (consoleRinger) Start() { log.Info().Msg("RING RING") }
func (consoleRinger) Stop()  { log.Info().Msg("ring stopped") }

func main() {
	var (
		addr     = flag.String("addr", "ws://localhost:8080/api/ws", "signaling ws endpoint")
		user     = flag.String("user", "", "user id to connect as")
		name     = flag.String("name", "", "display name sent with call offers")
		callPeer = flag.String("call", "", "user id to call after connecting")
		joinList = flag.String("join", "", "comma-separated group ids to join")
		stunURL  = flag.String("stun", "stun:stun.l.google.com:19302", "STUN server url")
		ringFor  = flag.Duration("ring-timeout", 30*time.Second, "unanswered call timeout")
		autoPick = flag.Bool("auto-accept", false, "accept incoming calls immediately")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *user == "" {
		fmt.Fprintln(os.Stderr, "usage: client -user <id> [-call <peer>]")
		os.Exit(2)
	}
	if *name == "" {
		*name = *user
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	uid := domain.UserID(*user)
	c, err := client.Dial(ctx, *addr, uid, client.Handlers{
		OnPresence: func(online []domain.UserID) {
			log.Info().Int("count", len(online)).Interface("online", online).Msg("presence")
		},
		OnMessage: func(msg domain.ChatMessage) {
			log.Info().Str("from", string(msg.SenderID)).Str("text", msg.Text).Msg("message")
		},
		OnUnreachable: func(peer domain.UserID) {
			log.Warn().Str("peer", string(peer)).Msg("peer unreachable")
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("connect")
	}
	defer c.Close()

	sess := call.NewSession(call.SessionConfig{
		Self:        domain.User{ID: uid, FullName: *name},
		Devices:     call.TrackDevices{},
		Peers:       call.PionFactory{Config: call.DefaultRTCConfig(*stunURL)},
		Ringer:      consoleRinger{},
		Emitter:     c,
		RingTimeout: *ringFor,
	})
	c.BindSession(sess)

	for _, g := range strings.Split(*joinList, ",") {
		if g = strings.TrimSpace(g); g != "" {
			if err := c.JoinRoom(domain.GroupID(g)); err != nil {
				log.Error().Err(err).Str("group", g).Msg("join room")
			}
		}
	}

	if *callPeer != "" {
		go func() {
			// Give the server a moment to register us before dialing out.
			time.Sleep(200 * time.Millisecond)
			if err := sess.Start(ctx, domain.UserID(*callPeer)); err != nil {
				log.Error().Err(err).Str("peer", *callPeer).Msg("start call")
			}
		}()
	}

	if *autoPick {
		go func() {
			ticker := time.NewTicker(100 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if _, ok := sess.Notice(); ok {
						if err := sess.Accept(ctx); err != nil {
							log.Error().Err(err).Msg("accept call")
						}
					}
				}
			}
		}()
	}

	if err := c.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("connection closed")
	}
	sess.End()
}
