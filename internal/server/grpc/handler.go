package grpc

import (
	"context"

	"github.com/dmitrijs2005/tokengate/internal/common"
	pb "github.com/dmitrijs2005/tokengate/internal/proto"
	"github.com/dmitrijs2005/tokengate/internal/server/models"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func (s *GRPCServer) Login(ctx context.Context, req *pb.LoginRequest) (*pb.LoginResponse, error) {

	result, err := s.tokens.Login(ctx, req.GetLogin(), req.GetPassword())

	if err != nil {
		return nil, status.Error(codeFor(err), messageFor(err))
	}

	return &pb.LoginResponse{Token: result.Token, User: toProtoUser(result.User)}, nil

}

// Validate runs behind accessTokenInterceptor, which has already checked the
// token and stored its user in ctx.
func (s *GRPCServer) Validate(ctx context.Context, _ *pb.ValidateRequest) (*pb.ValidateResponse, error) {

	user := UserFromContext(ctx)
	if user == nil {
		return nil, status.Error(codes.Unauthenticated, common.ErrMissingToken.Error())
	}

	return &pb.ValidateResponse{User: toProtoUser(user)}, nil

}

func toProtoUser(u *models.PublicUser) *pb.User {
	if u == nil {
		return nil
	}
	return &pb.User{
		Id:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Roles:       append([]string{}, u.Roles...),
	}
}
