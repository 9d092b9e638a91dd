package api

import (
	"context"
	"encoding/json"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/victornm/quizroom/internal/errors"
	"github.com/victornm/quizroom/internal/game"
)

// CodecName is the content subtype of the admin service. Messages are plain JSON.
const CodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

type (
	CreateRoomRequest struct {
		GameID   string `json:"game_id"`
		HostID   string `json:"host_id"`
		HostName string `json:"host_name"`
	}

	CreateRoomResponse struct {
		RoomCode      string `json:"room_code"`
		Title         string `json:"title"`
		QuestionCount int    `json:"question_count"`
	}

	GetRoomRequest struct {
		RoomCode string `json:"room_code"`
	}

	GetLeaderboardRequest struct {
		RoomCode string `json:"room_code"`
	}

	AbortRoomRequest struct {
		RoomCode string `json:"room_code"`
		Reason   string `json:"reason"`
	}

	AbortRoomResponse struct{}

	ListRoomsRequest struct{}

	ListRoomsResponse struct {
		Rooms []RoomView `json:"rooms"`
	}
)

// RoomServiceServer is the operator surface of the room engine.
type RoomServiceServer interface {
	CreateRoom(ctx context.Context, req *CreateRoomRequest) (*CreateRoomResponse, error)
	GetRoom(ctx context.Context, req *GetRoomRequest) (*RoomView, error)
	GetLeaderboard(ctx context.Context, req *GetLeaderboardRequest) (*game.LeaderboardView, error)
	AbortRoom(ctx context.Context, req *AbortRoomRequest) (*AbortRoomResponse, error)
	ListRooms(ctx context.Context, req *ListRoomsRequest) (*ListRoomsResponse, error)
}

const serviceName = "quizroom.v1.RoomService"

var roomServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*RoomServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateRoom", RoomServiceServer.CreateRoom),
		unary("GetRoom", RoomServiceServer.GetRoom),
		unary("GetLeaderboard", RoomServiceServer.GetLeaderboard),
		unary("AbortRoom", RoomServiceServer.AbortRoom),
		unary("ListRooms", RoomServiceServer.ListRooms),
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterRoomServiceServer(s grpc.ServiceRegistrar, srv RoomServiceServer) {
	s.RegisterService(&roomServiceDesc, srv)
}

func unary[Req, Resp any](method string, call func(RoomServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + serviceName + "/" + method

	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(RoomServiceServer), ctx, in)
			}

			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(RoomServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func (a *API) CreateRoom(ctx context.Context, req *CreateRoomRequest) (*CreateRoomResponse, error) {
	resp, err := a.m.CreateRoom(ctx, game.CreateRoomRequest{
		GameID:   req.GameID,
		HostID:   req.HostID,
		HostName: req.HostName,
	})
	if err != nil {
		return nil, err
	}

	return &CreateRoomResponse{
		RoomCode:      resp.RoomCode,
		Title:         resp.Title,
		QuestionCount: resp.QuestionCount,
	}, nil
}

func (a *API) GetRoom(ctx context.Context, req *GetRoomRequest) (*RoomView, error) {
	s, err := a.m.Room(ctx, strings.ToUpper(req.RoomCode))
	if err != nil {
		return nil, err
	}

	v := roomView(s)
	return &v, nil
}

func (a *API) GetLeaderboard(ctx context.Context, req *GetLeaderboardRequest) (*game.LeaderboardView, error) {
	l, err := a.m.Leaderboard(ctx, strings.ToUpper(req.RoomCode))
	if err != nil {
		return nil, err
	}

	v := game.LeaderboardToView(*l)
	return &v, nil
}

func (a *API) AbortRoom(ctx context.Context, req *AbortRoomRequest) (*AbortRoomResponse, error) {
	if req.Reason == "" {
		return nil, errors.InvalidArgument("abort room: reason is required")
	}

	if err := a.m.AbortRoom(ctx, strings.ToUpper(req.RoomCode), req.Reason); err != nil {
		return nil, err
	}

	return &AbortRoomResponse{}, nil
}

func (a *API) ListRooms(ctx context.Context, _ *ListRoomsRequest) (*ListRoomsResponse, error) {
	rooms := a.m.Rooms(ctx)

	resp := &ListRoomsResponse{Rooms: make([]RoomView, 0, len(rooms))}
	for _, s := range rooms {
		resp.Rooms = append(resp.Rooms, roomView(s))
	}
	return resp, nil
}

// RoomServiceClient calls the admin service over an existing connection.
type RoomServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewRoomServiceClient(cc grpc.ClientConnInterface) *RoomServiceClient {
	return &RoomServiceClient{cc: cc}
}

func (c *RoomServiceClient) invoke(ctx context.Context, method string, in, out any) error {
	return c.cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, grpc.CallContentSubtype(CodecName))
}

func (c *RoomServiceClient) CreateRoom(ctx context.Context, in *CreateRoomRequest) (*CreateRoomResponse, error) {
	out := new(CreateRoomResponse)
	if err := c.invoke(ctx, "CreateRoom", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RoomServiceClient) GetRoom(ctx context.Context, in *GetRoomRequest) (*RoomView, error) {
	out := new(RoomView)
	if err := c.invoke(ctx, "GetRoom", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RoomServiceClient) GetLeaderboard(ctx context.Context, in *GetLeaderboardRequest) (*game.LeaderboardView, error) {
	out := new(game.LeaderboardView)
	if err := c.invoke(ctx, "GetLeaderboard", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RoomServiceClient) AbortRoom(ctx context.Context, in *AbortRoomRequest) (*AbortRoomResponse, error) {
	out := new(AbortRoomResponse)
	if err := c.invoke(ctx, "AbortRoom", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RoomServiceClient) ListRooms(ctx context.Context, in *ListRoomsRequest) (*ListRoomsResponse, error) {
	out := new(ListRoomsResponse)
	if err := c.invoke(ctx, "ListRooms", in, out); err != nil {
		return nil, err
	}
	return out, nil
}
