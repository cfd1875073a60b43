package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"agency-chat/internal/clock"
	"agency-chat/internal/gateway"
	"agency-chat/internal/messaging"
	"agency-chat/internal/model"
)

type command func(ctx context.Context, s *session, args []string) error

var commands = map[string]command{
	"register": cmdRegister,
	"projects": cmdProjects,
	"onboard":  cmdOnboard,
	"advance":  cmdAdvance,
	"tail":     cmdTail,
	"send":     cmdSend,
	"image":    cmdImage,
	"voice":    cmdVoice,
	"edit":     cmdEdit,
	"delete":   cmdDelete,
	"unread":   cmdUnread,
	"online":   cmdOnline,
}

func need(args []string, n int, usage string) error {
	if len(args) < n {
		return fmt.Errorf("usage: agencychat %s", usage)
	}
	return nil
}

func cmdRegister(ctx context.Context, s *session, args []string) error {
	if s.opts.username == "" || s.opts.password == "" {
		return errors.New("--user and --password are required")
	}
	if err := s.gw.Register(ctx, s.opts.username, s.opts.password); err != nil {
		return err
	}
	fmt.Printf("registered %s\n", s.opts.username)
	return nil
}

func cmdProjects(ctx context.Context, s *session, args []string) error {
	if err := s.tracker.Start(ctx); err != nil {
		return err
	}
	if err := s.sel.Load(ctx); err != nil {
		return err
	}
	s.sel.SetQuery(strings.Join(args, " "))

	for _, p := range s.sel.Filtered() {
		badge := " "
		unread, err := s.tracker.IsUnread(ctx, p.ID)
		if err != nil {
			return err
		}
		if unread {
			badge = "●"
		}
		fmt.Printf("%s %s  %-10s %-12s %s\n", badge, p.ID, p.Type, p.Status.Label(), p.CreatedAt.Local().Format(time.DateOnly))
	}
	if p, ok := s.sel.Selected(); ok {
		fmt.Printf("\nopened %s (your only project)\n", p.ID)
	}
	return nil
}

func cmdOnboard(ctx context.Context, s *session, args []string) error {
	if err := need(args, 2, "onboard <type> <budget> [description]"); err != nil {
		return err
	}
	budget, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("budget: %w", err)
	}
	p, err := s.gw.CreateProject(ctx, gateway.ProjectRequest{
		Type:        args[0],
		Budget:      budget,
		Description: strings.Join(args[2:], " "),
	})
	if err != nil {
		return err
	}
	fmt.Printf("created %s (%s)\n", p.ID, p.Status.Label())
	return nil
}

func cmdAdvance(ctx context.Context, s *session, args []string) error {
	if err := need(args, 2, "advance <project> <status>"); err != nil {
		return err
	}
	p, err := s.gw.AdvanceStatus(ctx, args[0], model.Status(args[1]))
	if err != nil {
		return err
	}
	fmt.Printf("%s is now %s\n", p.ID, p.Status.Label())
	return nil
}

func cmdTail(ctx context.Context, s *session, args []string) error {
	if err := need(args, 1, "tail <project>"); err != nil {
		return err
	}
	if err := s.open(ctx, args[0]); err != nil {
		return err
	}

	shown := 0
	for {
		msgs := s.store.Messages()
		// Redraw after a deletion; otherwise print only what is new.
		if len(msgs) < shown || shown == 0 {
			printConversation(messaging.Render(msgs, s.actor))
		} else {
			for _, m := range msgs[shown:] {
				printMessage(m, s.actor)
			}
		}
		shown = len(msgs)

		select {
		case <-ctx.Done():
			return nil
		case <-s.store.Updates():
		}
	}
}

func printConversation(groups []messaging.Group) {
	for _, g := range groups {
		who := g.SenderID
		if g.Mine {
			who = "you"
		}
		fmt.Printf("── %s\n", who)
		for _, item := range g.Items {
			fmt.Printf("   %s\n", describe(item.Message))
		}
	}
}

func printMessage(m model.Message, actor model.Actor) {
	who := m.SenderID
	if m.SentBy(actor) {
		who = "you"
	}
	fmt.Printf("%s: %s\n", who, describe(m))
}

func describe(m model.Message) string {
	stamp := m.CreatedAt.Local().Format(time.Kitchen)
	switch m.Kind {
	case model.KindImage:
		return fmt.Sprintf("[%s] %s 🖼  %s", stamp, m.ID, m.Content)
	case model.KindVoice:
		return fmt.Sprintf("[%s] %s 🎤 %s", stamp, m.ID, m.Content)
	}
	return fmt.Sprintf("[%s] %s %s", stamp, m.ID, m.Content)
}

func (s *session) composer(device messaging.AudioDevice) *messaging.Composer {
	return messaging.NewComposer(s.store, device, clock.Real(), s.log.With("component", "composer"))
}

func cmdSend(ctx context.Context, s *session, args []string) error {
	if err := need(args, 2, "send <project> <text...>"); err != nil {
		return err
	}
	if err := s.open(ctx, args[0]); err != nil {
		return err
	}
	c := s.composer(nil)
	c.SetDraft(strings.Join(args[1:], " "))
	return c.SendText(ctx)
}

func cmdImage(ctx context.Context, s *session, args []string) error {
	if err := need(args, 2, "image <project> <file>"); err != nil {
		return err
	}
	data, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}
	if err := s.open(ctx, args[0]); err != nil {
		return err
	}
	return s.composer(nil).SendImage(ctx, filepath.Base(args[1]), data)
}

func cmdVoice(ctx context.Context, s *session, args []string) error {
	if err := need(args, 2, "voice <project> <file>"); err != nil {
		return err
	}
	if err := s.open(ctx, args[0]); err != nil {
		return err
	}
	c := s.composer(&fileDevice{path: args[1]})
	defer c.Close()

	if err := c.StartRecording(ctx); err != nil {
		return err
	}
	if err := c.SendRecording(ctx); err != nil {
		return err
	}
	fmt.Println("voice note sent")
	return nil
}

func cmdEdit(ctx context.Context, s *session, args []string) error {
	if err := need(args, 3, "edit <project> <id> <text...>"); err != nil {
		return err
	}
	if err := s.open(ctx, args[0]); err != nil {
		return err
	}
	m, err := s.find(args[1])
	if err != nil {
		return err
	}
	edit, err := messaging.BeginEdit(m, s.actor)
	if err != nil {
		return err
	}
	edit.SetDraft(strings.Join(args[2:], " "))
	sent, err := edit.Commit(ctx, s.store)
	if err != nil {
		return err
	}
	if !sent {
		fmt.Println("unchanged")
	}
	return nil
}

func cmdDelete(ctx context.Context, s *session, args []string) error {
	if err := need(args, 2, "delete <project> <id>"); err != nil {
		return err
	}
	if err := s.open(ctx, args[0]); err != nil {
		return err
	}
	m, err := s.find(args[1])
	if err != nil {
		return err
	}
	return messaging.Delete(ctx, m, s.actor, s.store)
}

func (s *session) find(id string) (model.Message, error) {
	for _, m := range s.store.Messages() {
		if m.ID == id {
			return m, nil
		}
	}
	return model.Message{}, messaging.ErrUnknownMessage
}

func cmdUnread(ctx context.Context, s *session, args []string) error {
	flagSet := pflag.NewFlagSet("unread", pflag.ContinueOnError)
	check := flagSet.Bool("check", false, "mark everything as checked")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if err := s.tracker.Start(ctx); err != nil {
		return err
	}
	fmt.Printf("%d new message(s)\n", s.tracker.Count())
	if *check {
		return s.tracker.MarkChecked(ctx)
	}
	return nil
}

func cmdOnline(ctx context.Context, s *session, args []string) error {
	if err := s.gw.Heartbeat(ctx); err != nil {
		return err
	}
	ids, err := s.gw.Online(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		marker := ""
		if id == s.actor.ID {
			marker = " (you)"
		}
		fmt.Printf("%s%s\n", id, marker)
	}
	return nil
}
