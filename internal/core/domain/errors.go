package domain

import "errors"

var (
	ErrChannelNotFound     = errors.New("channel not found")
	ErrRoomNotFound        = errors.New("room not found")
	ErrThreadNotFound      = errors.New("thread not found")
	ErrMessageNotFound     = errors.New("message not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrActorOffline        = errors.New("actor has no live connections")
	ErrConnectionNotFound  = errors.New("connection not found")
)
