// Package grpc exposes listening control over gRPC as hark.v1.Listener
package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/emmett/hark/internal/server"
	"github.com/emmett/hark/internal/supervisor"
)

// Config holds server configuration
type Config struct {
	Host string
	Port int
	// EventBuffer is the per-stream backlog before events are dropped
	EventBuffer int
}

// Server wraps the gRPC server and the listener service
type Server struct {
	grpcServer *grpc.Server
	config     Config
	log        zerolog.Logger

	done     chan struct{}
	stopOnce sync.Once
}

// NewServer creates a gRPC server driving ctrl and streaming events from b
func NewServer(cfg Config, ctrl server.Controller, b *server.Broadcaster, log zerolog.Logger, opts ...grpc.ServerOption) *Server {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	log = log.With().Str("component", "grpc").Logger()
	s := &Server{
		grpcServer: grpc.NewServer(opts...),
		config:     cfg,
		log:        log,
		done:       make(chan struct{}),
	}
	RegisterListenerServer(s.grpcServer, &ListenerService{ctrl: ctrl, events: b, buffer: cfg.EventBuffer, log: log, done: s.done})
	return s
}

// Addr is the configured listen address
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
}

// ListenAndServe listens on the configured address and serves until Stop
func (s *Server) ListenAndServe() error {
	lis, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Addr(), err)
	}
	return s.Serve(lis)
}

// Serve serves on lis until Stop
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info().Str("addr", lis.Addr().String()).Msg("gRPC server listening")
	if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop ends open event streams and then gracefully stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
	s.grpcServer.GracefulStop()
}

// ListenerService implements ListenerServer over a Controller
type ListenerService struct {
	ctrl   server.Controller
	events *server.Broadcaster
	buffer int
	log    zerolog.Logger
	// done is closed when the server stops
	done <-chan struct{}
}

func (l *ListenerService) Start(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := l.ctrl.Start(ctx); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (l *ListenerService) Stop(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := l.ctrl.Stop(ctx); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (l *ListenerService) SetTriggerWords(ctx context.Context, in *structpb.ListValue) (*emptypb.Empty, error) {
	words := make([]string, 0, len(in.GetValues()))
	for i, v := range in.GetValues() {
		sv, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, status.Errorf(codes.InvalidArgument, "word %d is not a string", i)
		}
		words = append(words, sv.StringValue)
	}
	if err := l.ctrl.SetTriggerWords(ctx, words); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (l *ListenerService) Status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st, err := l.ctrl.Status(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := toStruct(st)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (l *ListenerService) Events(_ *emptypb.Empty, stream ListenerEventsServer) error {
	if l.events == nil {
		return status.Error(codes.Unavailable, "event streaming disabled")
	}
	id, events, cancel := l.events.Subscribe(l.buffer)
	defer cancel()
	l.log.Debug().Str("subscriber", id).Msg("event stream opened")

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.done:
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			msg, err := toStruct(ev)
			if err != nil {
				return status.Error(codes.Internal, err.Error())
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, supervisor.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// toStruct converts a JSON-tagged value to a Struct
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// fromStruct decodes a Struct into a JSON-tagged value
func fromStruct(s *structpb.Struct, v any) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
