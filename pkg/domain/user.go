package domain

// Notification channels.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// User identifies the owner of a token or code and the addresses a
// notification can reach them at. User persistence lives outside this module;
// callers map their own account records into this shape.
type User struct {
	ID    string
	Email string
	Phone string
	Name  string
}

// CanReceive reports whether the user has an address for the given channel.
func (u User) CanReceive(channel string) bool {
	switch channel {
	case ChannelEmail:
		return u.Email != ""
	case ChannelSMS:
		return u.Phone != ""
	default:
		return false
	}
}
