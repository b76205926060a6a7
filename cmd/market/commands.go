package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/damoang/angple-market/pkg/client"
	"golang.org/x/term"
)

func (c *cli) register(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errUsage
	}
	password, err := c.readPassword("password: ")
	if err != nil {
		return err
	}

	in := client.RegisterInput{Email: args[0], Password: password}
	if len(args) > 1 {
		in.FirstName = args[1]
	}
	if len(args) > 2 {
		in.LastName = args[2]
	}

	res, err := c.api.Register(ctx, in)
	if err != nil {
		if client.IsStatus(err, http.StatusConflict) {
			return errors.New("that email is already registered")
		}
		return err
	}
	if err := c.session.Set(res.Token, res.User); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "welcome %s (user #%d)\n", res.User.DisplayName(), res.User.ID)
	return nil
}

func (c *cli) login(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	password, err := c.readPassword("password: ")
	if err != nil {
		return err
	}

	res, err := c.api.Login(ctx, args[0], password)
	if err != nil {
		if client.IsStatus(err, http.StatusUnauthorized) {
			return errors.New("invalid email or password")
		}
		return err
	}
	if err := c.session.Set(res.Token, res.User); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "signed in as %s, token valid until %s\n",
		res.User.DisplayName(), res.ExpiresAt.Local().Format(time.DateTime))
	return nil
}

func (c *cli) logout() error {
	if err := c.session.Clear(); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "signed out")
	return nil
}

func (c *cli) me(ctx context.Context) error {
	user, err := c.api.Me(ctx)
	if err != nil {
		return c.authError(err)
	}
	fmt.Fprintf(c.out, "#%d %s <%s>\n", user.ID, user.DisplayName(), user.Email)
	return nil
}

func (c *cli) conversations(ctx context.Context) error {
	convs, err := c.api.ListConversations(ctx)
	if err != nil {
		return c.authError(err)
	}
	if len(convs) == 0 {
		fmt.Fprintln(c.out, "no conversations yet, start one with `market contact <userId>`")
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tWITH\tLAST MESSAGE\tUPDATED")
	for _, conv := range convs {
		last := "-"
		if conv.LastMessage != nil {
			last = truncate(conv.LastMessage.Content, 40)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", conv.ID, conv.OtherUser.DisplayName(), last,
			conv.UpdatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func (c *cli) contact(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	userID, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || userID == 0 {
		return fmt.Errorf("invalid user id %q", args[0])
	}

	conv, existing, err := c.api.GetOrCreateConversation(ctx, userID)
	if err != nil {
		return c.authError(err)
	}
	verb := "started"
	if existing {
		verb = "resumed"
	}
	fmt.Fprintf(c.out, "%s conversation #%d with %s, run `market chat %d`\n",
		verb, conv.ID, conv.OtherUser.DisplayName(), conv.ID)
	return nil
}

// authError turns a rejected token into a hint to sign in again
func (c *cli) authError(err error) error {
	if client.IsStatus(err, http.StatusUnauthorized) || client.IsStatus(err, http.StatusForbidden) {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && strings.Contains(strings.ToLower(apiErr.Message), "token") {
			return errors.New("session expired, run `market login <email>` again")
		}
	}
	return err
}

func (c *cli) readPassword(prompt string) (string, error) {
	if f, ok := c.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(c.out, prompt)
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(c.out)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}

	line, err := bufio.NewReader(c.in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
