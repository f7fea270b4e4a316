// Package registration exposes the synchronous account-creation RPC on its
// well-known port. The cross-language wire contract is carried entirely by
// the four reply strings; everything else about the transport is free, so
// the service is a single-method gRPC server.
package registration

import (
	"context"
	"log/slog"
	"net"
	"strings"

	"google.golang.org/grpc"

	"github.com/wordquizzle/wqserver/internal/registration/registrationpb"
	"github.com/wordquizzle/wqserver/internal/store"
)

// The four reply strings non-Go clients key on.
const (
	ReplyInvalidUsername = "Invalid username."
	ReplyInvalidPassword = "Invalid password."
	ReplyNicknameTaken   = "Nickname already taken."
	ReplySucceeded       = "Registration succeeded."
)

// Server implements registrationpb.RegistrationServer against the shared
// user store.
type Server struct {
	registrationpb.UnimplementedRegistrationServer

	store  *store.Store
	logger *slog.Logger
}

// New creates a Server. logger may be nil.
func New(st *store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: st, logger: logger}
}

// Register creates the account and reports the outcome as one of the four
// contract strings. RPC-level errors are reserved for transport failures;
// every domain outcome, including rejection, is a successful reply.
func (s *Server) Register(ctx context.Context, req *registrationpb.RegisterRequest) (*registrationpb.RegisterReply, error) {
	username := req.GetUsername()
	if !validUsername(username) {
		return &registrationpb.RegisterReply{Message: ReplyInvalidUsername}, nil
	}
	if req.GetPassword() == "" {
		return &registrationpb.RegisterReply{Message: ReplyInvalidPassword}, nil
	}

	switch err := s.store.Register(username, req.GetPassword()); err {
	case nil:
		s.logger.Info("account registered", "nickname", username)
		return &registrationpb.RegisterReply{Message: ReplySucceeded}, nil
	case store.ErrNicknameTaken:
		return &registrationpb.RegisterReply{Message: ReplyNicknameTaken}, nil
	default:
		s.logger.Error("registration failed", "nickname", username, "error", err)
		return nil, err
	}
}

// validUsername rejects empty nicknames and nicknames that would break the
// space-separated control protocol or the '/'-delimited match frames.
func validUsername(name string) bool {
	return name != "" && !strings.ContainsAny(name, " \t\r\n/")
}

// Serve runs a gRPC server for s on lis until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	gs := grpc.NewServer()
	registrationpb.RegisterRegistrationServer(gs, s)

	go func() {
		<-ctx.Done()
		gs.GracefulStop()
	}()

	s.logger.Info("registration endpoint listening", "addr", lis.Addr().String())
	return gs.Serve(lis)
}
