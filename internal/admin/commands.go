package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/userauth/internal/common"
	"github.com/dmitrijs2005/userauth/internal/server/models"
	"github.com/dmitrijs2005/userauth/internal/server/users"
)

func (a *App) stats() error {
	st := a.store.Stats()
	fmt.Fprintf(a.out, "total users:  %d\nactive users: %d\n", st.TotalUsers, st.ActiveUsers)
	return nil
}

func (a *App) list(ctx context.Context) error {
	all, err := a.store.List(ctx)
	if err != nil {
		return err
	}
	if len(all) == 0 {
		fmt.Fprintln(a.out, "no users")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL\tNAME\tACTIVE\tLAST LOGIN\tCREATED")
	for _, u := range all {
		last := "never"
		if u.LastLoginAt != nil {
			last = u.LastLoginAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s %s\t%t\t%s\t%s\n",
			u.ID, u.Email, u.FirstName, u.LastName, u.IsActive, last, u.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func (a *App) create(ctx context.Context) error {
	var f users.Fields
	var err error

	prompts := []struct {
		label string
		dst   *string
	}{
		{"First name", &f.FirstName},
		{"Last name", &f.LastName},
		{"Email", &f.Email},
	}
	for _, p := range prompts {
		if *p.dst, err = GetSimpleText(a.reader, p.label, a.out); err != nil {
			return err
		}
	}

	if f.Password, err = GetPassword(a.reader, "Password", a.out); err != nil {
		return err
	}
	confirm, err := GetPassword(a.reader, "Repeat password", a.out)
	if err != nil {
		return err
	}
	if confirm != f.Password {
		return errors.New("passwords do not match")
	}

	if _, err := a.store.FindByEmail(ctx, f.Email); err == nil {
		return common.ErrDuplicateEmail
	}

	u, err := users.New(f, a.hasher, a.now())
	if err != nil {
		return err
	}
	created, err := a.store.Insert(ctx, u)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "created %s (%s)\n", created.Email, created.ID)
	return nil
}

func (a *App) setActive(ctx context.Context, args []string, active bool) error {
	u, err := a.find(ctx, args)
	if err != nil {
		return err
	}

	verb := "disabled"
	if active {
		verb = "enabled"
	}
	if u.IsActive == active {
		fmt.Fprintf(a.out, "%s is already %s\n", u.Email, verb)
		return nil
	}

	if _, err := a.store.Update(ctx, u.ID, models.UserPatch{IsActive: &active}); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s %s\n", verb, u.Email)
	return nil
}

func (a *App) delete(ctx context.Context, args []string) error {
	u, err := a.find(ctx, args)
	if err != nil {
		return err
	}

	ok, err := a.store.Delete(ctx, u.ID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %s: %w", u.ID, common.ErrorNotFound)
	}
	fmt.Fprintf(a.out, "deleted %s (%s)\n", u.Email, u.ID)
	return nil
}

func (a *App) clear(ctx context.Context) error {
	n := a.store.Stats().TotalUsers
	answer, err := GetSimpleText(a.reader, fmt.Sprintf("Delete all %d users? Type 'yes' to confirm", n), a.out)
	if err != nil {
		return err
	}
	if answer != "yes" {
		fmt.Fprintln(a.out, "aborted")
		return nil
	}

	if err := a.store.Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted %d users\n", n)
	return nil
}

// find resolves a single <email|id> argument.
func (a *App) find(ctx context.Context, args []string) (*models.User, error) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return nil, errors.New("expected exactly one <email|id> argument")
	}
	who := strings.TrimSpace(args[0])

	var (
		u   *models.User
		err error
	)
	if users.ValidEmail(who) {
		u, err = a.store.FindByEmail(ctx, who)
	} else {
		u, err = a.store.FindByID(ctx, who)
	}
	if errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("user %q: %w", who, common.ErrorNotFound)
	}
	return u, err
}
