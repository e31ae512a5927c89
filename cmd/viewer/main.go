package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/CoWatch/internal/client"
	"github.com/dkeye/CoWatch/internal/config"
	"github.com/dkeye/CoWatch/internal/domain"
	"github.com/dkeye/CoWatch/internal/player"
)

const usage = `commands:
  play | pause | seek <seconds> | end
  video <id> | list | status | quit`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file")
	}

	cfg, err := config.LoadViewer(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(config.ParseLevel(cfg.LogLevel))
	log.Logger = log.With().Str("viewer", cfg.Name).Logger()

	clock := clockwork.NewRealClock()
	p := player.New(player.Options{Clock: clock})
	sup := client.NewSupervisor(client.WSDialer{}, p, p.Events(), client.SupervisorOptions{
		URL:             cfg.ServerURL,
		Clock:           clock,
		HeartbeatPeriod: cfg.HeartbeatPeriod,
		ReportPeriod:    cfg.ReportPeriod,
		SettleDelay:     cfg.SettleDelay,
		MaxAttempts:     cfg.MaxReconnectAttempts,
	})

	var wg conc.WaitGroup
	wg.Go(func() { p.Run(ctx) })
	go readCommands(ctx, cancel, sup, p)

	err = sup.Run(ctx)
	cancel()
	wg.Wait()
	if errors.Is(err, client.ErrReconnectExhausted) {
		os.Exit(1)
	}
}

// readCommands stands in for the user: player controls go straight to the
// player, like clicks on a video element.
func readCommands(ctx context.Context, cancel context.CancelFunc, sup *client.Supervisor, p *player.Sim) {
	fmt.Println(usage)
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "play":
			p.Play(0)
		case "pause":
			p.Pause(0)
		case "end":
			p.End()
		case "seek":
			if len(fields) < 2 {
				fmt.Println("seek <seconds>")
				continue
			}
			pos, err := strconv.ParseFloat(fields[1], 64)
			if err != nil || pos < 0 {
				fmt.Println("bad position:", fields[1])
				continue
			}
			p.Seek(pos, 0)
		case "video":
			if len(fields) < 2 {
				fmt.Println("video <id>")
				continue
			}
			id := domain.VideoID(fields[1])
			_ = sup.Do(ctx, func(m *client.Machine) { m.ChangeVideo(id) })
		case "list":
			_ = sup.Do(ctx, func(m *client.Machine) {
				v := m.View()
				for _, video := range v.Videos {
					mark := " "
					if video.ID == v.Current {
						mark = "*"
					}
					fmt.Printf("%s %s  %s\n", mark, video.ID, video.Name)
				}
			})
		case "status":
			_ = sup.Do(ctx, func(m *client.Machine) {
				v := m.View()
				fmt.Printf("video=%s state=%s position=%.1f leader=%v users=%d delay=%v (%s)\n",
					v.Current, v.State, p.Position(), v.Leader, v.Users,
					v.NetworkDelay, client.ClassifyDelay(v.NetworkDelay, v.DelayThreshold))
			})
		case "quit", "exit":
			cancel()
			return
		default:
			fmt.Println(usage)
		}
	}
}
