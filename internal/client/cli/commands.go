package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/stagekeeper/internal/server/auth"
	"github.com/google/uuid"
)

func (a *App) ping(ctx context.Context) error {
	s, err := a.client.Ping(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, s)
	return nil
}

func (a *App) token(sessionID string) error {
	if a.config.SecretKey == "" {
		return fmt.Errorf("%w: token needs -s <secret>", ErrUsage)
	}
	if sessionID == "new" {
		sessionID = uuid.NewString()
	}
	t, err := auth.GenerateToken(sessionID, []byte(a.config.SecretKey), a.config.TokenValidity)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, t)
	return nil
}

func (a *App) stage(ctx context.Context, path string) error {
	var r io.Reader = a.stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	id, err := a.client.StageStream(ctx, r, a.config.ChunkSize)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, id)
	return nil
}

func (a *App) load(ctx context.Context, id, path string) error {
	var w io.Writer = a.stdout
	if path != "-" {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	_, err := a.client.Load(ctx, id, w)
	return err
}

func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *App) describe(ctx context.Context, id, name string) error {
	d, err := a.client.Describe(ctx, id, name)
	if err != nil {
		return err
	}
	return a.printJSON(d.AsMap())
}

func (a *App) relay(ctx context.Context, id, name string) error {
	if err := a.client.Relay(ctx, id, name); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, "relayed")
	return nil
}

func (a *App) archive(ctx context.Context, id, name string) error {
	key, url, err := a.client.Archive(ctx, id, name)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, key)
	if url != "" {
		fmt.Fprintln(a.stdout, url)
	}
	return nil
}

func (a *App) delete(ctx context.Context, id string) error {
	return a.client.Delete(ctx, id)
}

func (a *App) list(ctx context.Context) error {
	l, err := a.client.List(ctx)
	if err != nil {
		return err
	}
	return a.printJSON(l.AsSlice())
}

func (a *App) sweep(ctx context.Context) error {
	n, err := a.client.Sweep(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "evicted %d\n", n)
	return nil
}
