package protocol

import "strings"

// Per-state help text. The in-room variant reflects the caller's granted
// commands so clients never see commands they cannot run.

var alwaysVisible = []string{
	"/help                      Show this help",
	"/ping <ms>                 Latency echo",
	"/status                    Show room, role and online count",
	"/leave                     Leave the current room",
	"/quit                      Disconnect",
}

// HelpGuest is the help text for unauthenticated sessions.
func HelpGuest() string {
	lines := []string{
		"Available commands:",
		"/account register <user> <password> <confirm>",
		"/account login <user> <password>",
		"/help                      Show this help",
		"/ping <ms>                 Latency echo",
		"/quit                      Disconnect",
	}
	return BrightBlue(strings.Join(lines, "\n"))
}

// HelpLoggedIn is the help text for lobby sessions.
func HelpLoggedIn() string {
	lines := []string{
		"Available commands:",
		"/room list                 List visible rooms",
		"/room create <name> [whitelist]",
		"/room join <name>",
		"/room import <file>",
		"/room delete <name> [force]",
		"/account logout|edit|import|export|delete|info",
		"/ignore list|add|remove <user...>",
		"/pubkey <base64-key>       Register your public key",
		"/help                      Show this help",
		"/ping <ms>                 Latency echo",
		"/quit                      Disconnect",
	}
	return BrightBlue(strings.Join(lines, "\n"))
}

// HelpInRoom builds the help text for a room session from the caller's
// granted restricted tokens.
func HelpInRoom(granted []string) string {
	lines := []string{"Available commands:"}
	lines = append(lines, alwaysVisible...)
	lines = append(lines,
		"/ignore list|add|remove <user...>",
		"<text>                     Send a chat message",
	)
	for _, tok := range CommandOrder() {
		if !contains(granted, tok) {
			continue
		}
		lines = append(lines, "/"+strings.ReplaceAll(tok, ".", " ")+strings.Repeat(" ", pad(tok))+Descriptions[tok])
	}
	return BrightBlue(strings.Join(lines, "\n"))
}

func pad(tok string) int {
	const col = 27
	n := col - len(tok) - 2
	if n < 1 {
		return 1
	}
	return n
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
