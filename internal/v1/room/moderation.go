package room

import "github.com/parlorchat/parlor/internal/v1/types"

// Moderation bookkeeping on RoomUser records. Callers hold the room lock.
// A length of 0 with the flag set means permanent and never expires.

// ApplyBan marks the user banned as of now.
func ApplyBan(u *types.RoomUser, now int64, length uint64, reason string) {
	u.Banned = true
	u.BanStamp = now
	u.BanLength = length
	u.BanReason = reason
}

// ClearBan resets all ban fields.
func ClearBan(u *types.RoomUser) {
	u.Banned = false
	u.BanStamp = 0
	u.BanLength = 0
	u.BanReason = ""
}

// ApplyMute marks the user muted as of now.
func ApplyMute(u *types.RoomUser, now int64, length uint64, reason string) {
	u.Muted = true
	u.MuteStamp = now
	u.MuteLength = length
	u.MuteReason = reason
}

// ClearMute resets all mute fields.
func ClearMute(u *types.RoomUser) {
	u.Muted = false
	u.MuteStamp = 0
	u.MuteLength = 0
	u.MuteReason = ""
}

// ExpireBan clears a ban whose term has passed and reports whether the
// record changed (and so needs persisting).
func ExpireBan(u *types.RoomUser, now int64) bool {
	if !u.Banned || u.BanLength == 0 {
		return false
	}
	if now < u.BanStamp+int64(u.BanLength) {
		return false
	}
	ClearBan(u)
	return true
}

// ExpireMute clears a mute whose term has passed and reports whether the
// record changed.
func ExpireMute(u *types.RoomUser, now int64) bool {
	if !u.Muted || u.MuteLength == 0 {
		return false
	}
	if now < u.MuteStamp+int64(u.MuteLength) {
		return false
	}
	ClearMute(u)
	return true
}

// BanRemaining returns the seconds left on an active ban; 0 means permanent.
func BanRemaining(u *types.RoomUser, now int64) uint64 {
	if u.BanLength == 0 {
		return 0
	}
	end := u.BanStamp + int64(u.BanLength)
	if now >= end {
		return 0
	}
	return uint64(end - now)
}

// MuteRemaining returns the seconds left on an active mute; 0 means permanent.
func MuteRemaining(u *types.RoomUser, now int64) uint64 {
	if u.MuteLength == 0 {
		return 0
	}
	end := u.MuteStamp + int64(u.MuteLength)
	if now >= end {
		return 0
	}
	return uint64(end - now)
}
