package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/screenbreakers/internal/session"
	"github.com/jason-s-yu/screenbreakers/internal/usage"
)

const helpText = `commands:
  authorize        grant usage access; replays a held join
  usage <minutes>  report today's minutes
  tick             record one more minute of usage
  share            print the share link, creating a leaderboard if needed
  join <id|link>   join a leaderboard
  name <name>      set your player name
  rename <name>    rename the current leaderboard
  refresh          refetch the leaderboard
  show             print the current state
  quit             exit
`

var errQuit = errors.New("quit")

// shell runs one text command at a time against the session controller.
type shell struct {
	ctrl     *session.Controller
	recorder *usage.Recorder
	out      io.Writer
	logger   logrus.FieldLogger
}

// exec runs line. It returns errQuit when the user asked to exit.
func (s *shell) exec(ctx context.Context, line string) error {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "":
		return nil
	case "help", "?":
		fmt.Fprint(s.out, helpText)
	case "quit", "exit":
		return errQuit
	case "authorize":
		return s.ctrl.Authorized(ctx)
	case "usage":
		minutes, err := strconv.Atoi(arg)
		if err != nil || minutes < 0 {
			return fmt.Errorf("usage: usage <minutes>")
		}
		s.ctrl.UsageChanged(minutes)
	case "tick":
		minutes, err := s.recorder.RecordMinute(ctx)
		if err != nil {
			return err
		}
		s.ctrl.UsageChanged(minutes)
	case "share":
		link, err := s.ctrl.Share(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, link)
	case "join":
		if arg == "" {
			return fmt.Errorf("usage: join <id|link>")
		}
		var err error
		if strings.Contains(arg, "://") {
			_, err = s.ctrl.HandleDeepLink(ctx, arg)
		} else {
			_, err = s.ctrl.Join(ctx, arg)
		}
		if errors.Is(err, session.ErrJoinPending) {
			fmt.Fprintln(s.out, "join held until you authorize")
			return nil
		}
		return err
	case "name":
		if arg == "" {
			return fmt.Errorf("usage: name <name>")
		}
		return s.ctrl.SetPlayerName(ctx, arg)
	case "rename":
		if arg == "" {
			return fmt.Errorf("usage: rename <name>")
		}
		return s.ctrl.SetLeaderboardName(ctx, arg)
	case "refresh":
		_, err := s.ctrl.Refresh(ctx)
		return err
	case "show":
		snap, err := s.ctrl.Snapshot(ctx)
		if err != nil {
			return err
		}
		fmt.Fprint(s.out, renderSnapshot(snap))
	default:
		return fmt.Errorf("unknown command %q, try \"help\"", cmd)
	}
	return nil
}

// run executes lines until the input ends, the user quits or ctx is done.
func (s *shell) run(ctx context.Context, lines <-chan string) error {
	fmt.Fprint(s.out, "type \"help\" for commands\n")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err := s.exec(ctx, line)
			switch {
			case errors.Is(err, errQuit):
				return nil
			case err != nil:
				s.logger.WithError(err).WithField("command", line).Debug("command failed")
				fmt.Fprintf(s.out, "error: %v\n", err)
			}
		}
	}
}
