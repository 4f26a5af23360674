package api

import (
	"time"

	"parley/cmd/internal/chat"
)

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type createChannelRequest struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Visibility string `json:"visibility,omitempty"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type sendInvitationRequest struct {
	ChannelID string `json:"channel_id"`
	GuestID   string `json:"guest_id"`
	Access    string `json:"access"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type loginResponse struct {
	User    userResponse    `json:"user"`
	Session sessionResponse `json:"session"`
}

type memberResponse struct {
	UserID string `json:"user_id"`
	Access string `json:"access"`
}

type channelResponse struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Kind       string           `json:"kind"`
	OwnerID    string           `json:"owner_id"`
	Visibility string           `json:"visibility,omitempty"`
	GuestID    string           `json:"guest_id,omitempty"`
	Members    []memberResponse `json:"members,omitempty"`
}

type messageResponse struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	SenderID  string    `json:"sender_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type invitationResponse struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	GuestID   string    `json:"guest_id"`
	Access    string    `json:"access"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u chat.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Username: u.Username, CreatedAt: u.CreatedAt}
}

func toChannelResponse(ch chat.Channel) channelResponse {
	switch c := ch.(type) {
	case chat.SingleChannel:
		out := channelResponse{ID: c.ID, Name: c.Name, Kind: "single", OwnerID: c.Owner.ID}
		if c.Guest != nil {
			out.GuestID = c.Guest.ID
		}
		return out
	case chat.GroupChannel:
		out := channelResponse{
			ID:         c.ID,
			Name:       c.Name,
			Kind:       "group",
			OwnerID:    c.Owner.ID,
			Visibility: string(c.Visibility),
		}
		for _, m := range c.Guests {
			out.Members = append(out.Members, memberResponse{UserID: m.User.ID, Access: string(m.Access)})
		}
		return out
	default:
		return channelResponse{ID: ch.ChannelID(), Name: ch.ChannelName(), OwnerID: ch.ChannelOwner().ID}
	}
}

func toMessageResponse(m chat.Message) messageResponse {
	return messageResponse{ID: m.ID, ChannelID: m.ChannelID, SenderID: m.SenderID, Text: m.Text, CreatedAt: m.CreatedAt}
}

func toInvitationResponse(inv chat.Invitation) invitationResponse {
	return invitationResponse{
		ID:        inv.ID,
		ChannelID: inv.ChannelID,
		GuestID:   inv.GuestID,
		Access:    string(inv.Access),
		CreatedBy: inv.CreatedBy,
		CreatedAt: inv.CreatedAt,
	}
}
