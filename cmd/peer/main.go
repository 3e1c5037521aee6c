package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"watchparty/internal/core/domain"
	"watchparty/internal/peer"
	"watchparty/pkg/logger"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/spf13/cobra"
)

var (
	relayURL    string
	roomID      string
	logLevel    string
	stunServers []string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "watchparty-peer",
		Short: "Headless watch-party session peer",
		Long: "Joins a watch-party room through a relay, negotiates a direct peer " +
			"connection with the counterpart and keeps playback state in sync over it.",
	}
	rootCmd.PersistentFlags().StringVar(&relayURL, "relay", "ws://localhost:3000/ws", "relay websocket URL")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level")
	rootCmd.PersistentFlags().StringSliceVar(&stunServers, "stun", nil, "STUN server URLs")

	hostCmd := &cobra.Command{
		Use:   "host",
		Short: "Host a new watch session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if roomID == "" {
				roomID = uuid.NewString()[:8]
			}
			fmt.Printf("room: %s\n", roomID)
			return runPeer(cmd.Context(), domain.RoleHost)
		},
	}
	hostCmd.Flags().StringVar(&roomID, "room", "", "room identifier (generated when empty)")

	joinCmd := &cobra.Command{
		Use:   "join",
		Short: "Join an existing watch session as viewer",
		RunE: func(cmd *cobra.Command, args []string) error {
			if roomID == "" {
				return errors.New("--room is required")
			}
			return runPeer(cmd.Context(), domain.RoleViewer)
		},
	}
	joinCmd.Flags().StringVar(&roomID, "room", "", "room identifier")

	rootCmd.AddCommand(hostCmd, joinCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runPeer(ctx context.Context, role domain.Role) error {
	zapLogger := logger.NewConsole(logLevel)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	link, err := peer.DialRelay(ctx, relayURL)
	if err != nil {
		return err
	}
	defer link.Close()

	var opts []peer.PeerOption
	if len(stunServers) > 0 {
		opts = append(opts, peer.WithICEServers([]webrtc.ICEServer{
			{URLs: stunServers},
		}))
	}

	player := peer.NewStatePlayer(log)
	session := peer.NewPeer(role, domain.RoomID(roomID), link, player, log, opts...)

	log.Infow("starting session peer", "role", role, "room", roomID, "relay", relayURL)
	err = session.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
