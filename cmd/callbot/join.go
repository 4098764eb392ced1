package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/immxrtalbeast/huddle/internal/call"
	"github.com/immxrtalbeast/huddle/internal/config"
	"github.com/immxrtalbeast/huddle/internal/discovery"
	"github.com/immxrtalbeast/huddle/internal/media"
	"github.com/immxrtalbeast/huddle/internal/relayclient"
	"github.com/immxrtalbeast/huddle/internal/render"
	"github.com/immxrtalbeast/huddle/internal/transport/pion"
	"github.com/immxrtalbeast/huddle/internal/wsconn"
	"github.com/immxrtalbeast/huddle/lib/logger"
	"github.com/immxrtalbeast/huddle/lib/logger/sl"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type joinOptions struct {
	relayURL   string
	brokerURL  string
	camera     string
	mic        string
	screen     string
	discover   bool
	shareAfter time.Duration
	stun       []string
}

func newJoinCommand() *cobra.Command {
	var opts joinOptions

	cmd := &cobra.Command{
		Use:   "join <room>",
		Short: "Join a room and stay in the call until stdin says leave",
		Long: "Join a room with file backed camera, microphone and screen sources.\n" +
			"Commands on stdin: share, stop, mute, surprise, status, leave.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClient()
			if err != nil {
				return fmt.Errorf("read client config: %w", err)
			}
			opts.apply(cmd, cfg)
			log := logger.Setup(cfg.Env, os.Stderr)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if opts.discover {
				if err := discover(ctx, cfg, log); err != nil {
					return err
				}
			}
			return runJoin(ctx, args[0], cfg, opts, os.Stdin, log)
		},
	}

	cmd.Flags().StringVar(&opts.relayURL, "relay", "", "relay websocket URL (default from HUDDLE_RELAY_URL)")
	cmd.Flags().StringVar(&opts.brokerURL, "broker", "", "peer broker websocket URL (default from HUDDLE_BROKER_URL)")
	cmd.Flags().StringVar(&opts.camera, "camera", "", "IVF file used as the camera")
	cmd.Flags().StringVar(&opts.mic, "mic", "", "Ogg/Opus file used as the microphone")
	cmd.Flags().StringVar(&opts.screen, "screen", "", "IVF file used as the screen capture")
	cmd.Flags().BoolVar(&opts.discover, "discover", false, "find the relay on the local network over mDNS")
	cmd.Flags().DurationVar(&opts.shareAfter, "share-after", 0, "start sharing the screen after this delay")
	cmd.Flags().StringSliceVar(&opts.stun, "stun", nil, "STUN server URLs")

	return cmd
}

func (o joinOptions) apply(cmd *cobra.Command, cfg *config.ClientConfig) {
	if o.relayURL != "" {
		cfg.RelayURL = o.relayURL
	}
	if o.brokerURL != "" {
		cfg.BrokerURL = o.brokerURL
	}
	if cmd.Flags().Changed("stun") {
		cfg.WebRTC.STUNServers = o.stun
	}
}

func discover(ctx context.Context, cfg *config.ClientConfig, log *slog.Logger) error {
	findCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	svc, err := discovery.Find(findCtx)
	if err != nil {
		return err
	}
	ep := svc.Endpoints()
	cfg.RelayURL, cfg.BrokerURL, cfg.APIURL = ep.RelayURL, ep.BrokerURL, ep.APIURL
	log.Info("relay found", slog.String("instance", svc.Instance), slog.String("relay", cfg.RelayURL))
	return nil
}

func runJoin(ctx context.Context, roomID string, cfg *config.ClientConfig, opts joinOptions, in io.Reader, log *slog.Logger) error {
	wsOpts := wsconn.Options{Reconnect: cfg.Reconnect}
	relay := relayclient.New(cfg.RelayURL, wsOpts, log)
	transport := pion.New(cfg.BrokerURL, cfg.WebRTC, wsOpts, log)

	session, err := call.NewSession(call.Options{
		RoomID:    roomID,
		Relay:     relay,
		Transport: transport,
		Devices: &media.FileDevices{
			CameraPath: opts.camera,
			MicPath:    opts.mic,
			ScreenPath: opts.screen,
			Log:        log,
		},
		Renderer: render.New(os.Stdout),
		Log:      log,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return session.Run(gctx) })
	g.Go(func() error {
		if err := relay.Run(gctx); err != nil {
			log.Warn("relay connection ended", sl.Err(err))
		}
		return nil
	})

	if err := session.Start(gctx); err != nil {
		_ = session.Leave()
		_ = g.Wait()
		return err
	}

	if opts.shareAfter > 0 {
		timer := time.AfterFunc(opts.shareAfter, func() {
			if err := session.StartShare(); err != nil {
				log.Warn("scheduled share failed", sl.Err(err))
			}
		})
		defer timer.Stop()
	}

	lines := make(chan string)
	go readLines(in, lines)

	g.Go(func() error {
		for {
			select {
			case <-session.Done():
				return nil
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return session.Leave()
				}
				done, err := execute(session, line, os.Stdout)
				if err != nil {
					log.Warn("command failed", slog.String("command", line), sl.Err(err))
				}
				if done {
					return nil
				}
			}
		}
	})

	return g.Wait()
}

func readLines(in io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			out <- line
		}
	}
}

// controls is the part of the session the stdin commands drive.
type controls interface {
	StartShare() error
	StopShare() error
	ToggleMute() (bool, error)
	SendSurprise() error
	Snapshot() (call.Snapshot, error)
	Leave() error
}

var errUnknownCommand = errors.New("unknown command")

// execute runs one stdin command and reports whether the call is over.
func execute(s controls, line string, out io.Writer) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "share":
		return false, s.StartShare()
	case "stop":
		return false, s.StopShare()
	case "mute":
		muted, err := s.ToggleMute()
		if err == nil {
			fmt.Fprintf(out, "muted: %t\n", muted)
		}
		return false, err
	case "surprise":
		return false, s.SendSurprise()
	case "status":
		snap, err := s.Snapshot()
		if err != nil {
			return false, err
		}
		printStatus(out, snap)
		return false, nil
	case "leave", "quit", "exit":
		return true, s.Leave()
	default:
		return false, fmt.Errorf("%w: %q", errUnknownCommand, line)
	}
}

func printStatus(out io.Writer, snap call.Snapshot) {
	sharer := snap.SharerID
	if sharer == "" {
		sharer = "nobody"
	}
	fmt.Fprintf(out, "peer %s · sharing: %s · muted: %t\n", snap.PeerID, sharer, snap.Muted)
	for _, p := range snap.Participants {
		fmt.Fprintf(out, "  %s %s (%s)\n", p.PeerID, p.State, p.Direction)
	}
}
