package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tbourn/go-meal-backend/internal/auth"
	"github.com/tbourn/go-meal-backend/internal/authflow"
	"github.com/tbourn/go-meal-backend/internal/client"
	"github.com/tbourn/go-meal-backend/internal/feed"
	"github.com/tbourn/go-meal-backend/internal/services"
)

var errDeclined = errors.New("terms declined")

// session drives one signed-in user through the auth flow on a terminal.
type session struct {
	client  *client.Client
	manager *authflow.Manager
	in      *bufio.Reader
	out     io.Writer
}

func newSession(c *client.Client, in io.Reader, out io.Writer) *session {
	s := &session{client: c, in: bufio.NewReader(in), out: out}
	s.manager = authflow.NewManager(client.NewReadinessSource(c), termUI{out: out})
	return s
}

// Run signs id in and prompts until the flow reaches a terminal state.
func (s *session) Run(ctx context.Context, id auth.Identity) error {
	if err := s.manager.HandleAuthChange(ctx, &id); err != nil {
		return err
	}
	for !s.manager.Completed() {
		var err error
		switch st := s.manager.State(); st {
		case authflow.NeedsTerms:
			err = s.agree(ctx)
		case authflow.NeedsProfile:
			err = s.profile(ctx)
		default:
			return fmt.Errorf("unexpected state %s", st)
		}
		var ce *client.CallError
		if errors.As(err, &ce) && ce.Code == string(services.CodeInvalidArgument) {
			fmt.Fprintf(s.out, "! %s\n", ce.Message)
			continue
		}
		if err != nil {
			return err
		}
		if err := s.manager.Resume(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) agree(ctx context.Context) error {
	ans, err := s.prompt("Agree to the terms of service? [y/N] ")
	if err != nil {
		return err
	}
	if a := strings.ToLower(ans); a != "y" && a != "yes" {
		return errDeclined
	}
	_, err = s.client.AgreeToTerms(ctx)
	return err
}

func (s *session) profile(ctx context.Context) error {
	nick, err := s.prompt("Nickname: ")
	if err != nil {
		return err
	}
	_, err = s.client.UpdateProfile(ctx, services.ProfileInput{Nickname: nick})
	return err
}

func (s *session) prompt(q string) (string, error) {
	fmt.Fprint(s.out, q)
	line, err := s.in.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Watch prints the feed window after every batch until ctx ends.
func (s *session) Watch(ctx context.Context, limit int) error {
	v := feed.NewView(limit)
	err := s.client.Subscribe(ctx, limit, func(b feed.Batch) error {
		v.Apply(b)
		fmt.Fprintf(s.out, "--- feed (%d)\n", v.Len())
		for _, p := range v.Items() {
			fmt.Fprintf(s.out, "%s  %-16s %-8s %s\n", p.Timestamp.Local().Format("01-02 15:04"), p.UserNickname, p.Type, p.PhotoURL)
		}
		return nil
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// termUI renders the flow's exit actions as terminal lines.
type termUI struct{ out io.Writer }

func (u termUI) ShowTerms(context.Context) {
	fmt.Fprintln(u.out, "The terms of service need your agreement.")
}

func (u termUI) ShowProfile(context.Context) {
	fmt.Fprintln(u.out, "Pick a nickname to finish setting up.")
}

func (termUI) CloseModals(context.Context) {}

func (u termUI) RevealApp(context.Context) { fmt.Fprintln(u.out, "You're in.") }

func (u termUI) Toast(_ context.Context, msg string) { fmt.Fprintf(u.out, "! %s\n", msg) }
