package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/PabloGalante/blue-shark/internal/app/conversation"
	"github.com/PabloGalante/blue-shark/internal/domain"
	"github.com/PabloGalante/blue-shark/internal/observability"
)

type chatOptions struct {
	mode      string
	sessionID string
	imagePath string
	copyReply bool
	plain     bool
}

func newChatCmd(c *cli) *cobra.Command {
	opts := &chatOptions{}

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat from the terminal",
		Long: `Without arguments chat reads one message per line from stdin until EOF or /quit.
With arguments the joined arguments are sent as a single message.
Type /new to start a fresh session.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, c.cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if opts.mode != "" && !a.catalog.Has(domain.Mode(strings.ToUpper(opts.mode))) {
				return fmt.Errorf("unknown mode %q, see blueshark modes", opts.mode)
			}

			s, err := newChatSession(a.svc, opts, newPrinter(cmd.OutOrStdout(), opts.plain))
			if err != nil {
				return err
			}

			if len(args) > 0 {
				return s.send(ctx, strings.Join(args, " "))
			}
			return s.loop(ctx, cmd)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.mode, "mode", "m", "", "mode for a new session (see blueshark modes)")
	f.StringVarP(&opts.sessionID, "session", "s", "", "continue an existing session")
	f.StringVar(&opts.imagePath, "image", "", "attach an image to the first message")
	f.BoolVar(&opts.copyReply, "copy", false, "copy every settled reply to the clipboard")
	f.BoolVar(&opts.plain, "plain", false, "stream raw text even on a terminal")
	return cmd
}

type chatSession struct {
	svc   *conversation.Service
	opts  *chatOptions
	out   *printer
	id    domain.SessionID
	mode  domain.Mode
	image *domain.Image
}

func newChatSession(svc *conversation.Service, opts *chatOptions, out *printer) (*chatSession, error) {
	s := &chatSession{
		svc:  svc,
		opts: opts,
		out:  out,
		id:   domain.SessionID(opts.sessionID),
		mode: domain.Mode(strings.ToUpper(opts.mode)).Normalize(),
	}
	if opts.imagePath != "" {
		img, err := loadImage(opts.imagePath)
		if err != nil {
			return nil, err
		}
		s.image = img
	}
	return s, nil
}

func (s *chatSession) loop(ctx context.Context, cmd *cobra.Command) error {
	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for {
		fmt.Fprint(cmd.ErrOrStderr(), "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/new":
			s.id = ""
			fmt.Fprintln(cmd.ErrOrStderr(), "started a new session")
			continue
		}

		if err := s.send(ctx, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		}
	}
}

func (s *chatSession) send(ctx context.Context, text string) error {
	in := conversation.SendMessageInput{
		SessionID: s.id,
		Mode:      s.mode,
		Text:      text,
		Image:     s.image,
	}
	streamed := false
	if s.out.streaming() {
		in.OnFragment = func(f string) {
			streamed = true
			s.out.fragment(f)
		}
	}

	out, err := s.svc.SendMessage(ctx, in)
	if err != nil {
		return err
	}
	s.id = out.SessionID
	s.image = nil

	reply := out.ModelMessage
	s.out.reply(reply, reply.SecondaryContent != "", streamed && !reply.Failed)

	if s.opts.copyReply && !reply.Failed {
		text := reply.Content
		if reply.SecondaryContent != "" {
			text += "\n\n" + reply.SecondaryContent
		}
		if err := clipboard.WriteAll(text); err != nil {
			observability.LoggerFromContext(ctx).Warn().Err(err).Msg("copying reply to clipboard")
		}
	}
	return nil
}

func loadImage(path string) (*domain.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("%s is not an image (%s)", path, mime)
	}
	return &domain.Image{Data: data, MIMEType: mime}, nil
}
