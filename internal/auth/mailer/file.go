package mailer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aussiebroadwan/sessionauth/pkg/idx"
	"github.com/aussiebroadwan/sessionauth/pkg/slogx"
)

// FileSender writes each message as an HTML file into Dir. It is meant for
// development, where no relay is configured.
type FileSender struct {
	Dir string
}

func (s *FileSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return fmt.Errorf("mailer: create dir: %w", err)
	}

	name := filepath.Join(s.Dir, idx.New().String()+"-"+msg.Kind+".html")
	body := fmt.Sprintf("<!-- To: %s -->\n<!-- Subject: %s -->\n%s", msg.To, msg.Subject, msg.HTML)
	if err := os.WriteFile(name, []byte(body), 0o600); err != nil {
		return fmt.Errorf("mailer: write message: %w", err)
	}

	slogx.FromContext(ctx).Info("email written to file", "kind", msg.Kind, "path", name)
	return nil
}
