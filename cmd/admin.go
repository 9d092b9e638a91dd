package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/victornm/quizroom/internal/api"
)

func newAdminCmd() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Operate rooms through the admin gRPC service.",
	}
	cmd.PersistentFlags().StringVar(&addr, "addr", "localhost:9090", "admin gRPC address")
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")

	withClient := func(fn func(ctx context.Context, c *api.RoomServiceClient) (any, error)) error {
		cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("dial %s: %w", addr, err)
		}
		defer cc.Close()

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		out, err := fn(ctx, api.NewRoomServiceClient(cc))
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	var hostID, hostName string
	create := &cobra.Command{
		Use:   "create GAME_ID",
		Short: "Create a room for a game.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *api.RoomServiceClient) (any, error) {
				return c.CreateRoom(ctx, &api.CreateRoomRequest{GameID: args[0], HostID: hostID, HostName: hostName})
			})
		},
	}
	create.Flags().StringVar(&hostID, "host-id", "", "user id of the host")
	create.Flags().StringVar(&hostName, "host-name", "", "display name of the host")

	get := &cobra.Command{
		Use:   "get ROOM_CODE",
		Short: "Show a live room.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *api.RoomServiceClient) (any, error) {
				return c.GetRoom(ctx, &api.GetRoomRequest{RoomCode: args[0]})
			})
		},
	}

	leaderboard := &cobra.Command{
		Use:   "leaderboard ROOM_CODE",
		Short: "Show the standings of a room.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *api.RoomServiceClient) (any, error) {
				return c.GetLeaderboard(ctx, &api.GetLeaderboardRequest{RoomCode: args[0]})
			})
		},
	}

	var reason string
	abort := &cobra.Command{
		Use:   "abort ROOM_CODE",
		Short: "Terminate a room.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *api.RoomServiceClient) (any, error) {
				return c.AbortRoom(ctx, &api.AbortRoomRequest{RoomCode: args[0], Reason: reason})
			})
		},
	}
	abort.Flags().StringVar(&reason, "reason", "operator", "reason reported to the room")

	list := &cobra.Command{
		Use:   "list",
		Short: "List the rooms held in memory.",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return withClient(func(ctx context.Context, c *api.RoomServiceClient) (any, error) {
				return c.ListRooms(ctx, &api.ListRoomsRequest{})
			})
		},
	}

	cmd.AddCommand(create, get, list, leaderboard, abort)
	return cmd
}
