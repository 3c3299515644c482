package session

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/parlorchat/parlor/internal/v1/events"
	"github.com/parlorchat/parlor/internal/v1/logging"
	"github.com/parlorchat/parlor/internal/v1/metrics"
	"github.com/parlorchat/parlor/internal/v1/protocol"
	"github.com/parlorchat/parlor/internal/v1/store"
	"github.com/parlorchat/parlor/internal/v1/types"
)

// createAccount inserts a new account iff the name is free. The check and
// insert are atomic so two racing registrations cannot both win.
func (h *Hub) createAccount(username string, acct *types.Account) bool {
	h.accountsMu.Lock()
	defer h.accountsMu.Unlock()
	if _, exists := h.accounts[username]; exists {
		return false
	}
	h.accounts[username] = acct
	return true
}

func (h *Hub) handleRegister(ctx context.Context, c *Client, cmd protocol.AccountRegister) Result {
	if !c.AllowAttempt() {
		_ = c.Send(protocol.Yellow("Too many attempts, try again later"))
		return Handled
	}
	if cmd.Password != cmd.Confirm {
		metrics.LoginFailures.Inc()
		_ = c.Send(protocol.Yellow("Error: Passwords don't match"))
		return Handled
	}

	acct := &types.Account{Password: hashPassword(cmd.Password)}
	if !h.createAccount(cmd.Username, acct) {
		metrics.LoginFailures.Inc()
		_ = c.Send(protocol.Yellow("Error: Name is already taken"))
		return Handled
	}
	h.persistUsers(ctx, c)

	c.ToLoggedIn(cmd.Username)
	c.SetIgnoreList(nil)
	_ = c.Send("/LOGIN_OK " + cmd.Username)
	_ = c.Send(protocol.Green("User Registered: " + cmd.Username))

	metrics.LoginsTotal.Inc()
	logging.Info(ctx, "user registered", zap.String("username", cmd.Username))
	h.publish(ctx, events.Event{Type: events.TypeLogin, Actor: cmd.Username, Detail: "registered"})
	return Handled
}

func (h *Hub) handleLogin(ctx context.Context, c *Client, cmd protocol.AccountLogin) Result {
	if !c.AllowAttempt() {
		_ = c.Send(protocol.Yellow("Too many attempts, try again later"))
		return Handled
	}

	acct, ok := h.account(cmd.Username)
	if !ok {
		metrics.LoginFailures.Inc()
		_ = c.Send(protocol.Yellow("Error: Username not found"))
		return Handled
	}
	if other := h.findByUsername(cmd.Username); other != nil {
		metrics.LoginFailures.Inc()
		_ = c.Send(protocol.Yellow("Error: " + cmd.Username + " is already logged in"))
		return Handled
	}
	if acct.Password != hashPassword(cmd.Password) {
		metrics.LoginFailures.Inc()
		_ = c.Send(protocol.Yellow("Error: Incorrect password"))
		return Handled
	}

	c.ToLoggedIn(cmd.Username)
	c.SetIgnoreList(acct.Ignore)
	_ = c.Send("/LOGIN_OK " + cmd.Username)

	metrics.LoginsTotal.Inc()
	logging.Info(ctx, "user logged in", zap.String("username", cmd.Username))
	h.publish(ctx, events.Event{Type: events.TypeLogin, Actor: cmd.Username})
	return Handled
}

func (h *Hub) handleLogout(ctx context.Context, c *Client) Result {
	username := c.State().Username
	h.keys.Drop(username)
	c.ToGuest()
	_ = c.Send("/GUEST_STATE")
	_ = c.Send(protocol.Green("Logged out: " + username))

	logging.Info(ctx, "user logged out", zap.String("username", username))
	h.publish(ctx, events.Event{Type: events.TypeLogout, Actor: username})
	return Handled
}

func (h *Hub) handleEditUsername(ctx context.Context, c *Client, cmd protocol.AccountEditUsername) Result {
	oldName := c.State().Username
	newName := cmd.NewName
	if newName == oldName {
		_ = c.Send(protocol.Yellow("Username is already taken"))
		return Handled
	}

	h.accountsMu.Lock()
	if _, taken := h.accounts[newName]; taken {
		h.accountsMu.Unlock()
		_ = c.Send(protocol.Yellow("Username is already taken"))
		return Handled
	}
	acct := h.accounts[oldName]
	delete(h.accounts, oldName)
	h.accounts[newName] = acct
	h.accountsMu.Unlock()

	h.persistUsers(ctx, c)
	h.keys.Rename(oldName, newName)
	c.ToLoggedIn(newName)

	_ = c.Send("/GUEST_STATE")
	_ = c.Send(protocol.Green("Username changed from " + oldName + " to: " + newName))
	logging.Info(ctx, "username changed",
		zap.String("old", oldName), zap.String("new", newName))
	return Handled
}

func (h *Hub) handleEditPassword(ctx context.Context, c *Client, cmd protocol.AccountEditPassword) Result {
	username := c.State().Username

	h.accountsMu.Lock()
	acct, ok := h.accounts[username]
	if !ok {
		h.accountsMu.Unlock()
		_ = c.Send(protocol.Yellow("Error: Username not found"))
		return Handled
	}
	if acct.Password != hashPassword(cmd.Current) {
		h.accountsMu.Unlock()
		_ = c.Send(protocol.Yellow("Error: Incorrect password"))
		return Handled
	}
	acct.Password = hashPassword(cmd.New)
	h.accountsMu.Unlock()

	h.persistUsers(ctx, c)
	_ = c.Send(protocol.Green("Password updated"))
	return Handled
}

func (h *Hub) handleAccountExport(ctx context.Context, c *Client, cmd protocol.AccountExport) Result {
	username := c.State().Username
	acct, ok := h.account(username)
	if !ok {
		_ = c.Send(protocol.Yellow("Error: Username not found"))
		return Handled
	}
	path, err := h.store.ExportUser(username, acct, cmd.File)
	if err != nil {
		metrics.PersistenceErrors.Inc()
		logging.Error(ctx, "account export failed", zap.Error(err))
		_ = c.Send(protocol.Red("Error: Failed to export account"))
		return Handled
	}
	_ = c.Send(protocol.Green("Account exported to: " + path))
	return Handled
}

func (h *Hub) handleAccountImport(ctx context.Context, c *Client, cmd protocol.AccountImport) Result {
	name, acct, err := h.store.ImportUser(cmd.File)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = c.Send(protocol.Yellow("File not found: " + cmd.File))
		} else {
			logging.Error(ctx, "account import failed", zap.Error(err))
			_ = c.Send(protocol.Red("Error: Failed to import account"))
		}
		return Handled
	}
	if !h.createAccount(name, acct) {
		_ = c.Send(protocol.Yellow("Error: Name is already taken"))
		return Handled
	}
	h.persistUsers(ctx, c)
	_ = c.Send(protocol.Green("Account imported: " + name))
	return Handled
}

func (h *Hub) handleAccountDelete(ctx context.Context, c *Client, cmd protocol.AccountDelete) Result {
	username := c.State().Username

	deleteAction := func() Result {
		h.accountsMu.Lock()
		delete(h.accounts, username)
		h.accountsMu.Unlock()
		h.persistUsers(ctx, c)
		h.keys.Drop(username)

		c.ToGuest()
		_ = c.Send("/GUEST_STATE")
		_ = c.Send(protocol.Green("Account deleted: " + username))
		logging.Info(ctx, "account deleted", zap.String("username", username))
		return Handled
	}

	if cmd.Force {
		return deleteAction()
	}
	prompt := protocol.Red("Delete account '" + username + "'? This cannot be undone. (y/n)")
	c.setPending(prompt, deleteAction)
	_ = c.Send(prompt)
	return Handled
}

func (h *Hub) handlePubkey(ctx context.Context, c *Client, cmd protocol.Pubkey) Result {
	username := c.State().Username
	if !h.keys.Register(username, cmd.Key) {
		_ = c.Send(protocol.Yellow("Public key already registered for this user"))
		return Handled
	}
	_ = c.Send(protocol.Green("Public key registered"))
	return Handled
}

// handleIgnore serves /ignore in the lobby and in rooms; the persisted list
// lives on the account record, the working copy on the session.
func (h *Hub) handleIgnore(ctx context.Context, c *Client, cmd protocol.Ignore) Result {
	username := c.State().Username

	switch cmd.Action {
	case "list":
		list := c.IgnoreList()
		if len(list) == 0 {
			_ = c.Send(protocol.Yellow("You are not ignoring anyone"))
			return Handled
		}
		_ = c.Send(protocol.Cyan("Ignored users: " + strings.Join(list, ", ")))
		return Handled

	case "add":
		var added, already []string
		for _, u := range cmd.Users {
			if u == username {
				continue
			}
			if c.AddIgnore(u) {
				added = append(added, u)
			} else {
				already = append(already, u)
			}
		}
		if len(added) > 0 {
			h.saveIgnoreList(ctx, c, username)
			_ = c.Send(protocol.Green("Now ignoring: " + strings.Join(added, ", ")))
		}
		if len(already) > 0 {
			_ = c.Send(protocol.Yellow("Already ignoring: " + strings.Join(already, ", ")))
		}
		if len(added) == 0 && len(already) == 0 {
			_ = c.Send(protocol.Yellow("No changes made"))
		}
		return Handled

	case "remove":
		var removed, missing []string
		for _, u := range cmd.Users {
			if c.RemoveIgnore(u) {
				removed = append(removed, u)
			} else {
				missing = append(missing, u)
			}
		}
		if len(removed) > 0 {
			h.saveIgnoreList(ctx, c, username)
			_ = c.Send(protocol.Green("No longer ignoring: " + strings.Join(removed, ", ")))
		}
		if len(missing) > 0 {
			_ = c.Send(protocol.Yellow("Not ignoring: " + strings.Join(missing, ", ")))
		}
		return Handled
	}
	return Handled
}

// saveIgnoreList copies the session's working list onto the account record
// and persists it.
func (h *Hub) saveIgnoreList(ctx context.Context, c *Client, username string) {
	list := c.IgnoreList()
	h.accountsMu.Lock()
	if acct, ok := h.accounts[username]; ok {
		acct.Ignore = list
	}
	h.accountsMu.Unlock()
	h.persistUsers(ctx, c)
}
