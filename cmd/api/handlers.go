package main

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PaulBabatuyi/relaychat/internal/chatrpc"
	"github.com/PaulBabatuyi/relaychat/internal/data"
)

// caller returns the user attached by the auth interceptor.
func caller(ctx context.Context) (*data.User, error) {
	u, ok := userFromContext(ctx)
	if !ok {
		return nil, status.Errorf(codes.Unauthenticated, "missing caller")
	}
	return u, nil
}

// Authenticate exchanges an identity token for an api key. The key is also
// pushed to the device named by messagingToken.
func (s *Server) Authenticate(ctx context.Context, req *chatrpc.AuthenticateRequest) (*chatrpc.AuthenticateResponse, error) {
	cred, user, err := s.svc.Authenticate(ctx, req.MessagingToken, req.AuthToken)
	if err != nil {
		return nil, toStatus(err)
	}
	return &chatrpc.AuthenticateResponse{
		APIKey:    cred.Key,
		UserID:    user.UserID,
		ExpiresAt: data.Millis(cred.ExpiresAt),
	}, nil
}

// SendMessage stores a message for the recipient and pushes it to their devices.
func (s *Server) SendMessage(ctx context.Context, req *chatrpc.SendMessageRequest) (*chatrpc.SendMessageResponse, error) {
	sender, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	msg, err := s.svc.SendMessage(ctx, sender, req.RecipientEmail, data.MessageType(req.MessageType), req.MessageData)
	if err != nil {
		return nil, toStatus(err)
	}
	return &chatrpc.SendMessageResponse{ID: msg.ID, Time: msg.Timestamp}, nil
}

func (s *Server) GetChats(ctx context.Context, req *chatrpc.GetChatsRequest) (*chatrpc.GetChatsResponse, error) {
	user, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	chats, err := s.svc.ListChats(ctx, user, req.Limit)
	if err != nil {
		return nil, toStatus(err)
	}
	return &chatrpc.GetChatsResponse{Chats: chatrpc.FromChats(chats)}, nil
}

func (s *Server) GetMessages(ctx context.Context, req *chatrpc.GetMessagesRequest) (*chatrpc.GetMessagesResponse, error) {
	user, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	msgs, err := s.svc.GetMessages(ctx, user, req.RecipientEmail, req.Limit)
	if err != nil {
		return nil, toStatus(err)
	}
	return &chatrpc.GetMessagesResponse{Messages: chatrpc.FromMessages(msgs)}, nil
}

func (s *Server) GetUser(ctx context.Context, req *chatrpc.GetUserRequest) (*chatrpc.GetUserResponse, error) {
	if _, err := caller(ctx); err != nil {
		return nil, err
	}
	u, err := s.svc.GetUser(ctx, req.UserEmail)
	if err != nil {
		return nil, toStatus(err)
	}
	return &chatrpc.GetUserResponse{Name: u.Name, Email: u.Email, Picture: u.Picture}, nil
}
